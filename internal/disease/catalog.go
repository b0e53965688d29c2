package disease

// Record is the static educational content shown for a condition.
type Record struct {
	ID          ID       `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Symptoms    []string `json:"symptoms"`
	Treatments  []string `json:"treatments"`
	Prevention  []string `json:"prevention"`
	RiskFactors []string `json:"risk_factors"`
}

// Lookup returns the record for id. ok is false for identifiers outside the
// closed set; callers choose their own policy for that case.
func Lookup(id ID) (Record, bool) {
	rec, ok := catalog[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Resolve returns the record for id, falling back to the Normal record for
// identifiers outside the closed set. fellBack reports that the fallback was used
// so the caller can surface it.
func Resolve(id ID) (rec Record, fellBack bool) {
	if rec, ok := Lookup(id); ok {
		return rec, false
	}
	return catalog[Normal].clone(), true
}

// Records returns every record in catalog order.
func Records() []Record {
	out := make([]Record, 0, len(all))
	for _, id := range all {
		out = append(out, catalog[id].clone())
	}
	return out
}

// Featured returns the conditions highlighted in the information section.
func Featured() []Record {
	out := make([]Record, 0, len(featured))
	for _, id := range featured {
		out = append(out, catalog[id].clone())
	}
	return out
}

func (r Record) clone() Record {
	r.Symptoms = append([]string(nil), r.Symptoms...)
	r.Treatments = append([]string(nil), r.Treatments...)
	r.Prevention = append([]string(nil), r.Prevention...)
	r.RiskFactors = append([]string(nil), r.RiskFactors...)
	return r
}

var featured = []ID{DiabeticRetinopathy, Glaucoma, Cataract, AgeRelatedMacularDegeneration}

var catalog = map[ID]Record{
	Normal: {
		ID:          Normal,
		Name:        "Normal",
		Description: "No eye disease detected. Your eye appears healthy based on the scan provided.",
		Symptoms:    []string{"No symptoms of eye disease"},
		Treatments:  []string{"Regular eye check-ups to maintain eye health"},
		Prevention: []string{
			"Regular eye examinations",
			"Wearing sunglasses to protect from UV rays",
			"Maintaining a healthy diet rich in vitamins A, C, and E",
			"Taking regular breaks from screens to reduce eye strain",
		},
		RiskFactors: []string{
			"Age (over 60)",
			"Family history of eye diseases",
			"Smoking",
			"Diabetes",
			"High blood pressure",
		},
	},
	DiabeticRetinopathy: {
		ID:          DiabeticRetinopathy,
		Name:        "Diabetic Retinopathy",
		Description: "A diabetes complication that affects the eyes. It's caused by damage to the blood vessels of the light-sensitive tissue at the back of the eye (retina).",
		Symptoms: []string{
			"Spots or dark strings floating in your vision (floaters)",
			"Blurred vision",
			"Fluctuating vision",
			"Dark or empty areas in your vision",
			"Vision loss",
		},
		Treatments: []string{
			"Managing diabetes through medication, diet, and exercise",
			"Anti-VEGF therapy to reduce swelling",
			"Laser treatment to seal leaking blood vessels",
			"Vitrectomy surgery for advanced cases",
		},
		Prevention: []string{
			"Managing blood sugar levels",
			"Regular eye examinations",
			"Maintaining healthy blood pressure and cholesterol levels",
			"Not smoking",
		},
		RiskFactors: []string{
			"Duration of diabetes",
			"Poor blood sugar control",
			"High blood pressure",
			"High cholesterol",
			"Pregnancy",
			"Smoking",
		},
	},
	Glaucoma: {
		ID:          Glaucoma,
		Name:        "Glaucoma",
		Description: "A group of eye conditions that damage the optic nerve, often caused by abnormally high pressure in the eye.",
		Symptoms: []string{
			"Patchy blind spots in peripheral or central vision",
			"Tunnel vision in advanced stages",
			"Severe headache",
			"Eye pain",
			"Nausea and vomiting",
			"Blurred vision",
			"Halos around lights",
		},
		Treatments: []string{
			"Eye drops to reduce pressure",
			"Oral medications",
			"Laser therapy",
			"Surgery to improve fluid drainage",
		},
		Prevention: []string{
			"Regular eye examinations",
			"Knowing your family's eye health history",
			"Exercising safely",
			"Taking prescribed eye drops regularly",
		},
		RiskFactors: []string{
			"Elevated internal eye pressure",
			"Age (over 60)",
			"Family history of glaucoma",
			"Medical conditions like diabetes, heart disease, high blood pressure",
			"Eye injuries",
			"Nearsightedness",
		},
	},
	Cataract: {
		ID:          Cataract,
		Name:        "Cataract",
		Description: "A clouding of the lens in the eye that affects vision. Cataracts are common in older adults.",
		Symptoms: []string{
			"Clouded, blurred or dim vision",
			"Increasing difficulty with vision at night",
			"Sensitivity to light and glare",
			"Need for brighter light for reading",
			"Seeing halos around lights",
			"Frequent changes in eyeglass or contact lens prescription",
		},
		Treatments: []string{
			"New eyeglasses",
			"Brighter lighting",
			"Anti-glare sunglasses",
			"Magnifying lenses",
			"Cataract surgery to replace the cloudy lens",
		},
		Prevention: []string{
			"Regular eye examinations",
			"Quitting smoking",
			"Wearing sunglasses to block ultraviolet rays",
			"Managing other health problems like diabetes",
			"Maintaining a healthy diet rich in fruits and vegetables",
		},
		RiskFactors: []string{
			"Aging",
			"Diabetes",
			"Smoking",
			"Excessive alcohol consumption",
			"Prolonged sunlight exposure",
			"Obesity",
			"High blood pressure",
			"Previous eye injury or inflammation",
			"Prolonged use of corticosteroid medications",
		},
	},
	AgeRelatedMacularDegeneration: {
		ID:          AgeRelatedMacularDegeneration,
		Name:        "Age-related Macular Degeneration",
		Description: "A common eye condition and a leading cause of vision loss among people aged 50 and older, causing damage to the macula, a small spot near the center of the retina.",
		Symptoms: []string{
			"Visual distortions, such as straight lines seeming bent",
			"Reduced central vision in one or both eyes",
			"The need for brighter light when reading or doing close work",
			"Difficulty adapting to low light levels",
			"Increased blurriness of printed words",
			"Decreased intensity or brightness of colors",
		},
		Treatments: []string{
			"Anti-angiogenic drugs to stop new blood vessels from forming",
			"Laser therapy to destroy abnormal blood vessels",
			"Photodynamic therapy to damage abnormal blood vessels",
			"Vision rehabilitation",
			"Dietary supplements like vitamins C and E, zinc, copper, and beta-carotene",
		},
		Prevention: []string{
			"Regular eye examinations",
			"Not smoking",
			"Regular exercise",
			"Maintaining normal blood pressure and cholesterol levels",
			"Eating a diet rich in fruits and vegetables, particularly dark leafy greens",
		},
		RiskFactors: []string{
			"Age (over 50)",
			"Family history",
			"Smoking",
			"Obesity",
			"Cardiovascular disease",
			"High blood pressure",
			"High cholesterol",
		},
	},
	HypertensiveRetinopathy: {
		ID:          HypertensiveRetinopathy,
		Name:        "Hypertensive Retinopathy",
		Description: "Damage to the retina and its blood vessels due to high blood pressure.",
		Symptoms: []string{
			"Usually no symptoms in early stages",
			"Reduced vision",
			"Double vision",
			"Headache",
			"Visual impairment",
		},
		Treatments: []string{
			"Blood pressure control through medication",
			"Lifestyle changes including diet and exercise",
			"Regular monitoring of blood pressure",
			"Laser surgery for severe cases",
		},
		Prevention: []string{
			"Regular blood pressure checks",
			"Maintaining a healthy diet low in salt",
			"Regular exercise",
			"Not smoking",
			"Limiting alcohol intake",
		},
		RiskFactors: []string{
			"Hypertension (high blood pressure)",
			"Diabetes",
			"Smoking",
			"Being overweight or obese",
			"Stress",
			"Family history of high blood pressure",
		},
	},
	Myopia: {
		ID:          Myopia,
		Name:        "Myopia",
		Description: "Also known as nearsightedness, myopia is a common vision condition in which near objects are seen clearly, but objects farther away appear blurred.",
		Symptoms: []string{
			"Distant objects appear blurry",
			"Need to squint to see clearly",
			"Eyestrain",
			"Headaches",
			"Difficulty seeing while driving, especially at night",
		},
		Treatments: []string{
			"Eyeglasses",
			"Contact lenses",
			"LASIK or PRK (laser surgeries)",
			"Orthokeratology (specially designed contact lenses worn only at night)",
			"Atropine eye drops (for children to slow progression)",
		},
		Prevention: []string{
			"Spending more time outdoors in childhood",
			"Taking breaks from close-up work",
			"Limiting screen time",
			"Ensuring proper lighting for reading",
		},
		RiskFactors: []string{
			"Genetics (having parents with myopia)",
			"Extended time spent on close-up work or screen time",
			"Limited outdoor activities in childhood",
			"Ethnicity (more common in Asian populations)",
		},
	},
	Hypermetropia: {
		ID:          Hypermetropia,
		Name:        "Hypermetropia",
		Description: "Also known as farsightedness, hypermetropia is a common vision condition in which nearby objects appear blurry, but distant objects can be seen more clearly.",
		Symptoms: []string{
			"Nearby objects appear blurry",
			"Need to squint to see clearly",
			"Eyestrain",
			"Headaches",
			"Aching or burning eyes",
			"Fatigue when working at close range",
		},
		Treatments: []string{
			"Eyeglasses",
			"Contact lenses",
			"LASIK or other refractive surgeries",
		},
		Prevention: []string{
			"Regular eye examinations",
			"Protecting eyes from injury",
		},
		RiskFactors: []string{
			"Genetics (often inherited)",
			"Age (common in young children, often corrects itself as they grow)",
			"Associated with certain medical conditions like microphthalmia or tumors",
		},
	},
}
