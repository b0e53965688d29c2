// Package render turns a classification result into what the results panel shows.
package render

import (
	"fmt"
	"math"

	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/disease"
)

// Severity is a display-only bucket derived from confidence.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	highThreshold   = 0.80
	mediumThreshold = 0.65
)

// Tone is the badge colour family.
type Tone string

const (
	ToneHealthy Tone = "green"
	ToneHigh    Tone = "red"
	ToneMedium  Tone = "amber"
	ToneLow     Tone = "blue"
)

// ProfessionalAdviceNote is shown with every non-Normal result.
const ProfessionalAdviceNote = "This is an AI-assisted analysis and should not replace professional medical advice. " +
	"Please consult with an ophthalmologist for proper diagnosis and treatment."

// DisplayPayload is the rendered result.
type DisplayPayload struct {
	Disease           disease.ID `json:"disease"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Symptoms          []string   `json:"symptoms"`
	Treatments        []string   `json:"treatments"`
	Prevention        []string   `json:"prevention"`
	RiskFactors       []string   `json:"risk_factors"`
	Confidence        float64    `json:"confidence"`
	ConfidencePercent int        `json:"confidence_percent"`
	Severity          Severity   `json:"severity"`
	Healthy           bool       `json:"healthy"`
	Badge             string     `json:"badge"`
	BadgeTone         Tone       `json:"badge_tone"`
	Note              string     `json:"note,omitempty"`
	// CatalogFallback is set when the disease had no catalog entry and the
	// Normal record was shown instead.
	CatalogFallback bool `json:"catalog_fallback,omitempty"`
	Simulated       bool `json:"simulated"`
}

// SeverityFor buckets a confidence score. Thresholds are inclusive at the lower bound.
func SeverityFor(confidence float64) Severity {
	switch {
	case confidence >= highThreshold:
		return SeverityHigh
	case confidence >= mediumThreshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Percent renders confidence as a whole percentage, rounding halves up.
func Percent(confidence float64) int {
	return int(math.Floor(confidence*100 + 0.5))
}

// Render never fails. Unknown diseases fall back to the Normal record.
func Render(res classifier.Result) DisplayPayload {
	rec, fellBack := disease.Resolve(res.Disease)
	severity := SeverityFor(res.Confidence)

	p := DisplayPayload{
		Disease:           rec.ID,
		Name:              rec.Name,
		Description:       rec.Description,
		Symptoms:          rec.Symptoms,
		Treatments:        rec.Treatments,
		Prevention:        rec.Prevention,
		RiskFactors:       rec.RiskFactors,
		Confidence:        res.Confidence,
		ConfidencePercent: Percent(res.Confidence),
		Severity:          severity,
		CatalogFallback:   fellBack,
		Simulated:         res.Simulated,
	}

	if rec.ID == disease.Normal {
		p.Healthy = true
		p.Badge = "Healthy"
		p.BadgeTone = ToneHealthy
		return p
	}

	p.Badge = fmt.Sprintf("%d%% Confidence", p.ConfidencePercent)
	p.Note = ProfessionalAdviceNote
	switch severity {
	case SeverityHigh:
		p.BadgeTone = ToneHigh
	case SeverityMedium:
		p.BadgeTone = ToneMedium
	default:
		p.BadgeTone = ToneLow
	}
	return p
}
