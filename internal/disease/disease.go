package disease

import (
	"fmt"
	"strings"
)

// ID identifies one of the fixed eye conditions the classifier can report.
type ID string

const (
	Normal                        ID = "normal"
	DiabeticRetinopathy           ID = "diabetic_retinopathy"
	Glaucoma                      ID = "glaucoma"
	Cataract                      ID = "cataract"
	AgeRelatedMacularDegeneration ID = "age_related_macular_degeneration"
	HypertensiveRetinopathy       ID = "hypertensive_retinopathy"
	Myopia                        ID = "myopia"
	Hypermetropia                 ID = "hypermetropia"
)

var all = []ID{
	Normal,
	DiabeticRetinopathy,
	Glaucoma,
	Cataract,
	AgeRelatedMacularDegeneration,
	HypertensiveRetinopathy,
	Myopia,
	Hypermetropia,
}

// All returns every identifier, Normal first.
func All() []ID {
	out := make([]ID, len(all))
	copy(out, all)
	return out
}

// Abnormal returns every identifier except Normal, in catalog order.
func Abnormal() []ID {
	return All()[1:]
}

// Valid reports whether id belongs to the closed identifier set.
func (id ID) Valid() bool {
	_, ok := catalog[id]
	return ok
}

func (id ID) String() string {
	return string(id)
}

// ParseID accepts either the identifier slug ("diabetic_retinopathy") or the
// human label ("Diabetic Retinopathy"), case-insensitively.
func ParseID(value string) (ID, error) {
	needle := strings.ToLower(strings.TrimSpace(value))
	for _, id := range all {
		if needle == string(id) || needle == strings.ToLower(catalog[id].Name) {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown disease identifier %q", value)
}
