// Package monitor implements the task-result monitor: the validator's single
// periodic loop that polls miners for worker judgements and aggregates them
// back onto stored completions.
package monitor

import (
	"github.com/deckarep/golang-set/v2"

	"github.com/dojonet/subnet/internal/domain"
)

// Aggregate holds the computed rank/score for one real model id.
type Aggregate struct {
	RankID *int
	Score  *float64
}

// CalculateAverages takes a set of TaskResults and the obfuscated->real
// de-obfuscation map, sums ranks (RANKING_CRITERIA) and scores
// (MULTI_SCORE) per real model id, then divides each sum by the TOTAL count
// of workers reporting that criteria type — not the per-model count. This
// is an intentional quirk: a worker that abstains on one model still shifts
// every model's mean in that worker's report, so the denominator is shared
// across all models for a given criteria type. See DESIGN.md Part 2.
func CalculateAverages(results []domain.TaskResult, obfuscatedToReal map[string]string) map[string]Aggregate {
	rankSums := map[string]float64{}
	scoreSums := map[string]float64{}
	rankingWorkers := mapset.NewSet[string]()
	scoreWorkers := mapset.NewSet[string]()

	for _, tr := range results {
		if tr.Status != domain.ResultCompleted {
			continue
		}
		for _, r := range tr.ResultData {
			switch r.Type {
			case domain.CriteriaRanking:
				rankingWorkers.Add(tr.WorkerID)
				for obfModel, rank := range r.Value {
					real := deobfuscate(obfModel, obfuscatedToReal)
					rankSums[real] += rank
				}
			case domain.CriteriaMultiScore:
				scoreWorkers.Add(tr.WorkerID)
				for obfModel, score := range r.Value {
					real := deobfuscate(obfModel, obfuscatedToReal)
					scoreSums[real] += score
				}
			}
		}
	}

	rankDenom := float64(rankingWorkers.Cardinality())
	scoreDenom := float64(scoreWorkers.Cardinality())

	out := map[string]Aggregate{}
	for model, sum := range rankSums {
		if rankDenom == 0 {
			continue
		}
		avg := sum / rankDenom
		rank := int(avg)
		agg := out[model]
		agg.RankID = &rank
		out[model] = agg
	}
	for model, sum := range scoreSums {
		if scoreDenom == 0 {
			continue
		}
		avg := sum / scoreDenom
		agg := out[model]
		agg.Score = &avg
		out[model] = agg
	}
	return out
}

// deobfuscate resolves obfModel through the map, falling through to the
// obfuscated id itself when the entry is missing.
func deobfuscate(obfModel string, m map[string]string) string {
	if real, ok := m[obfModel]; ok {
		return real
	}
	return obfModel
}
