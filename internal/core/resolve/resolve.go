// Package resolve reconciles conflicting field candidates into one
// resolved value per field, and assembles the resolved fields into the
// structured document. Every extraction source contributes candidates to
// the same pool; there is no order-dependent "current best" overwrite.
package resolve

import (
	"sort"

	"github.com/antonkurs/docextract/internal/core/domain"
)

// Resolve produces exactly one ResolvedField per distinct field name.
// The result is symmetric under candidate reordering: candidates are
// sorted before any combination happens.
func Resolve(candidates []domain.FieldCandidate) []domain.ResolvedField {
	byField := make(map[string][]domain.FieldCandidate)
	names := make([]string, 0)
	for _, c := range candidates {
		if _, ok := byField[c.FieldName]; !ok {
			names = append(names, c.FieldName)
		}
		byField[c.FieldName] = append(byField[c.FieldName], c)
	}
	sort.Strings(names)

	out := make([]domain.ResolvedField, 0, len(names))
	for _, name := range names {
		out = append(out, resolveField(name, byField[name]))
	}
	return out
}

func resolveField(name string, cands []domain.FieldCandidate) domain.ResolvedField {
	sorted := make([]domain.FieldCandidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		if a, b := sorted[i].Value.Normalized(), sorted[j].Value.Normalized(); a != b {
			return a < b
		}
		return sorted[i].SourceBBox.Y < sorted[j].SourceBBox.Y
	})

	best := sorted[0]
	agree := true
	for _, c := range sorted[1:] {
		if !c.Value.Equal(best.Value) {
			agree = false
			break
		}
	}

	field := domain.ResolvedField{
		FieldName:  name,
		Value:      best.Value,
		Candidates: sorted,
	}
	if agree {
		// Probabilistic OR: independent agreeing witnesses reinforce.
		disbelief := 1.0
		for _, c := range sorted {
			disbelief *= 1 - clamp01(c.Confidence)
		}
		field.Confidence = clamp01(1 - disbelief)
		return field
	}

	// Disagreement: the strongest candidate wins, penalized by the
	// spread among the proposals, floored at half its own confidence.
	penalty := 0.5 * clamp01(valueSpread(sorted))
	field.Confidence = clamp01(best.Confidence * (1 - penalty))
	return field
}

// valueSpread measures how far apart the candidate values lie, in [0,1].
// For amounts it is the numeric range normalized by the largest
// magnitude; otherwise the fraction of candidates disagreeing with the
// most confident one.
func valueSpread(sorted []domain.FieldCandidate) float64 {
	allAmounts := true
	for _, c := range sorted {
		if c.Value.Kind != domain.ValueAmount {
			allAmounts = false
			break
		}
	}

	if allAmounts {
		minV, maxV := sorted[0].Value.Amount, sorted[0].Value.Amount
		for _, c := range sorted[1:] {
			minV = min(minV, c.Value.Amount)
			maxV = max(maxV, c.Value.Amount)
		}
		scale := max(abs(minV), abs(maxV))
		if scale < 1 {
			scale = 1
		}
		return (maxV - minV) / scale
	}

	best := sorted[0].Value
	disagree := 0
	for _, c := range sorted {
		if !c.Value.Equal(best) {
			disagree++
		}
	}
	return float64(disagree) / float64(len(sorted))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
