package recommender

import "sort"

// normEpsilon guards min-max normalization against a zero-range score set:
// all-equal scores normalize to ~0 instead of NaN.
const normEpsilon = 1e-6

// FusedCandidate carries both signal scores plus their weighted combination.
type FusedCandidate struct {
	ItemIndex    int
	CollabScore  float64
	ContentScore float64
	FusedScore   float64
	// HasContent distinguishes a computed content score from the bypass
	// path taken when the user has no profile.
	HasContent bool
}

// Fuse combines collaborative candidate scores with content similarity
// against the user profile: both signals are independently min-max
// normalized across the candidate set, then mixed as
// alpha*collab + (1-alpha)*content.
//
// A nil profile bypasses fusion entirely and passes collaborative scores
// through unmodified; treating a missing profile as a zero vector would
// bias every fused score toward content=0.
func Fuse(candidates []ScoredItem, cm *ContentMatrix, profile []float64, alpha float64) []FusedCandidate {
	if len(candidates) == 0 {
		return nil
	}
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}

	fused := make([]FusedCandidate, len(candidates))

	if profile == nil || cm == nil {
		for i, c := range candidates {
			fused[i] = FusedCandidate{
				ItemIndex:   c.ItemIndex,
				CollabScore: c.Score,
				FusedScore:  c.Score,
			}
		}
		return fused
	}

	collab := make([]float64, len(candidates))
	content := make([]float64, len(candidates))
	for i, c := range candidates {
		collab[i] = c.Score
		content[i] = cm.CosineSimilarity(profile, c.ItemIndex)
	}

	normCollab := minMaxNormalize(collab)
	normContent := minMaxNormalize(content)

	for i, c := range candidates {
		fused[i] = FusedCandidate{
			ItemIndex:    c.ItemIndex,
			CollabScore:  c.Score,
			ContentScore: content[i],
			HasContent:   true,
			FusedScore:   alpha*normCollab[i] + (1-alpha)*normContent[i],
		}
	}

	// Stable sort keeps the original candidate order on ties.
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FusedScore > fused[j].FusedScore
	})

	return fused
}

func minMaxNormalize(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	span := hi - lo + normEpsilon
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = (x - lo) / span
	}
	return out
}
