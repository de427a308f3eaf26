package metrics

import (
	"github.com/ZanzyTHEbar/team-pulse/internal/types"
)

// RankSeries collects the ranks code received on dim across assessments,
// in input order. Assessments without a map for dim, or without an entry
// for code, are skipped.
func RankSeries(assessments []types.Assessment, code string, dim types.Dimension) []int {
	series := make([]int, 0, len(assessments))
	for i := range assessments {
		if r, ok := assessments[i].Ranking(dim).Rank(code); ok {
			series = append(series, r)
		}
	}
	return series
}
