package disease

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupIsTotal(t *testing.T) {
	ids := All()
	require.Len(t, ids, 8)

	for _, id := range ids {
		rec, ok := Lookup(id)
		require.True(t, ok, id)
		require.Equal(t, id, rec.ID)
		require.NotEmpty(t, rec.Name, id)
		require.NotEmpty(t, rec.Description, id)
		require.NotEmpty(t, rec.Symptoms, id)
		require.NotEmpty(t, rec.Treatments, id)
		require.NotEmpty(t, rec.Prevention, id)
		require.NotEmpty(t, rec.RiskFactors, id)
	}
}

func TestResolveFallsBackExplicitly(t *testing.T) {
	rec, fellBack := Resolve(Glaucoma)
	require.False(t, fellBack)
	require.Equal(t, "Glaucoma", rec.Name)

	rec, fellBack = Resolve(ID("retinal_detachment"))
	require.True(t, fellBack)
	require.Equal(t, Normal, rec.ID)

	_, ok := Lookup(ID("retinal_detachment"))
	require.False(t, ok)
}

func TestLookupReturnsCopies(t *testing.T) {
	rec, _ := Lookup(Cataract)
	rec.Symptoms[0] = "changed"

	again, _ := Lookup(Cataract)
	require.Equal(t, "Clouded, blurred or dim vision", again.Symptoms[0])
}

func TestParseID(t *testing.T) {
	id, err := ParseID("Age-related Macular Degeneration")
	require.NoError(t, err)
	require.Equal(t, AgeRelatedMacularDegeneration, id)

	id, err = ParseID(" hypertensive_retinopathy ")
	require.NoError(t, err)
	require.Equal(t, HypertensiveRetinopathy, id)

	_, err = ParseID("pink eye")
	require.Error(t, err)
}

func TestAbnormalExcludesNormal(t *testing.T) {
	ids := Abnormal()
	require.Len(t, ids, 7)
	require.NotContains(t, ids, Normal)
}

func TestFeatured(t *testing.T) {
	recs := Featured()
	require.Len(t, recs, 4)
	require.Equal(t, DiabeticRetinopathy, recs[0].ID)
	require.Equal(t, AgeRelatedMacularDegeneration, recs[3].ID)
}
