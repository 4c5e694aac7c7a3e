package detector

import (
	"math"
	"strings"
)

var (
	syntheticKeywords = []string{"fake", "ai", "generated", "artificial", "deepfake"}
	authenticKeywords = []string{"real", "authentic", "human", "natural"}
)

// syntheticScore collapses heterogeneous classifier labels into a
// single probability that the media is synthetic. Each label falls into
// the synthetic bucket, the authentic bucket, or neither, by substring
// match; the maximum score within each bucket wins. A model that only
// reports authenticity ("human": 0.7) yields 1 - 0.7.
func syntheticScore(results []LabelScore) float64 {
	aiScore := 0.0
	realScore := 0.0

	for _, r := range results {
		label := strings.ToLower(r.Label)
		if matchesAny(label, syntheticKeywords) {
			aiScore = math.Max(aiScore, r.Score)
		}
		if matchesAny(label, authenticKeywords) {
			realScore = math.Max(realScore, r.Score)
		}
	}

	if aiScore == 0 && realScore > 0 {
		aiScore = 1 - realScore
	}
	return aiScore
}

func matchesAny(label string, keywords []string) bool {
	for _, w := range keywords {
		if strings.Contains(label, w) {
			return true
		}
	}
	return false
}

// round4 matches the score precision the service has always reported.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
