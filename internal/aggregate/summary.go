package aggregate

import (
	"strings"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
)

// ConfidenceBand buckets an average confidence for display.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
	BandNone   ConfidenceBand = "none"
)

// BandFor returns the band of a confidence in [0,1].
func BandFor(confidence float64) ConfidenceBand {
	switch {
	case confidence > 0.8:
		return BandHigh
	case confidence > 0.6:
		return BandMedium
	default:
		return BandLow
	}
}

// Summary reports how much of a template a record fills.
type Summary struct {
	Extracted         int            `json:"extracted" yaml:"extracted"`
	Total             int            `json:"total" yaml:"total"`
	AverageConfidence *float64       `json:"average_confidence" yaml:"average_confidence"`
	Band              ConfidenceBand `json:"band" yaml:"band"`
}

// Summarize counts the template fields rec fills and averages the
// confidence of those that carry one.
func Summarize(rec *Record, t *schema.Template) Summary {
	s := Summary{Total: len(t.Fields), Band: BandNone}
	if rec == nil {
		return s
	}

	var sum float64
	var n int
	for _, f := range t.Fields {
		if strings.TrimSpace(rec.Values[f.ID]) == "" {
			continue
		}
		s.Extracted++
		if c := rec.Confidence[f.ID]; c != nil {
			sum += *c
			n++
		}
	}
	if n > 0 {
		avg := sum / float64(n)
		s.AverageConfidence = &avg
		s.Band = BandFor(avg)
	}
	return s
}
