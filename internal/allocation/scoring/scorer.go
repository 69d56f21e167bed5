// internal/allocation/scoring/scorer.go

// Package scoring ranks eligible candidates by a weighted sum of their
// performance metrics. Ranking is deterministic: the same inputs always
// produce the same order, and every non-winner carries reasons explaining
// why it lost to the winner.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/models"
)

// boostCapFraction bounds the additive priority boost to a tenth of the
// largest primary weight, so a preference signal can break near-ties but
// never outvote the performance metrics.
const boostCapFraction = 0.10

// scoreEpsilon treats final scores within a billionth as equal, pushing the
// comparison onto the deterministic tie-breakers.
const scoreEpsilon = 1e-9

// Input is one candidate entering the ranking.
type Input struct {
	Candidate     *models.Candidate
	LocationMatch models.LocationMatchType
	Available     int
}

// Score computes the weighted sub-scores for one candidate.
func Score(cand *models.Candidate, w models.ScoringWeights) models.SubScores {
	s := models.SubScores{
		Quality:    w.QualityScore * cand.QualityScore,
		Completion: w.CompletionRate * cand.CompletionRate,
		Ontime:     w.OntimeRate * cand.OntimeCompletionRate,
		Acceptance: w.AcceptanceRate * cand.AcceptanceRate,
	}

	boost := cand.PriorityBoost
	if limit := boostCapFraction * w.Max(); boost > limit {
		boost = limit
	}
	if boost < 0 {
		boost = 0
	}
	s.PriorityBoost = boost

	s.Final = s.Quality + s.Completion + s.Ontime + s.Acceptance + s.PriorityBoost
	return s
}

// Rank scores and orders the inputs. Order: final score descending, then
// remaining capacity descending, then active cases ascending, then
// candidate id ascending. The winner is element zero; every other element
// gets rejection reasons relative to the winner.
func Rank(inputs []Input, w models.ScoringWeights) []*models.ScoredCandidate {
	ranked := make([]*models.ScoredCandidate, 0, len(inputs))
	for _, in := range inputs {
		ranked = append(ranked, &models.ScoredCandidate{
			Candidate:     in.Candidate,
			Scores:        Score(in.Candidate, w),
			LocationMatch: in.LocationMatch,
			Available:     in.Available,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})

	if len(ranked) > 1 {
		winner := ranked[0]
		for _, sc := range ranked[1:] {
			sc.RejectionReasons = reasonsAgainst(sc, winner)
		}
	}
	return ranked
}

func less(a, b *models.ScoredCandidate) bool {
	if math.Abs(a.Scores.Final-b.Scores.Final) > scoreEpsilon {
		return a.Scores.Final > b.Scores.Final
	}
	if a.Available != b.Available {
		return a.Available > b.Available
	}
	if a.Candidate.ActiveCasesCount != b.Candidate.ActiveCasesCount {
		return a.Candidate.ActiveCasesCount < b.Candidate.ActiveCasesCount
	}
	return a.Candidate.ID < b.Candidate.ID
}

func reasonsAgainst(loser, winner *models.ScoredCandidate) []string {
	var reasons []string

	if winner.Scores.Final-loser.Scores.Final > scoreEpsilon {
		reasons = append(reasons, fmt.Sprintf("lower weighted score (%.3f vs %.3f)",
			loser.Scores.Final, winner.Scores.Final))
		return reasons
	}

	if loser.Available < winner.Available {
		reasons = append(reasons, fmt.Sprintf("tied score, less remaining capacity (%d vs %d)",
			loser.Available, winner.Available))
		return reasons
	}

	if loser.Candidate.ActiveCasesCount > winner.Candidate.ActiveCasesCount {
		reasons = append(reasons, fmt.Sprintf("tied score and capacity, more active cases (%d vs %d)",
			loser.Candidate.ActiveCasesCount, winner.Candidate.ActiveCasesCount))
		return reasons
	}

	reasons = append(reasons, "tied on all signals, later candidate id")
	return reasons
}
