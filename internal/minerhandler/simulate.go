package minerhandler

import (
	"context"
	"math"
	"math/rand"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
)

// simBehavior is the outcome a simulated human worker rolls for a task.
type simBehavior int

const (
	behaviorNormal simBehavior = iota
	behaviorNoResponse
	behaviorTimeout
)

// SimConfig parameterizes the simulated-miner's worker behavior, standing
// in for real human labor in devnets.
type SimConfig struct {
	NormalProb     float64
	NoResponseProb float64
	TimeoutProb    float64
	MinTimeout     time.Duration
	MaxTimeout     time.Duration
	Seed           int64
}

// DefaultSimConfig matches the documented {normal: 0.8, no_response: 0.1,
// timeout: 0.1} split with a 5-10s timeout-behavior sleep.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		NormalProb:     0.8,
		NoResponseProb: 0.1,
		TimeoutProb:    0.1,
		MinTimeout:     5 * time.Second,
		MaxTimeout:     10 * time.Second,
	}
}

// NewSimulated constructs a Handler whose ForwardTaskResultRequest fabricates
// worker judgements instead of relaying a real worker-platform response —
// used by the miner binary's --simulate flag so the whole pipeline can be
// exercised without a live worker platform.
func NewSimulated(cache requestCache, feedbackTTL time.Duration, selfHotkey string, sim SimConfig) (*Handler, error) {
	idx, err := lru.New(requestIndexSize)
	if err != nil {
		return nil, err
	}
	if sim.Seed == 0 {
		sim.Seed = time.Now().UnixNano()
	}
	return &Handler{
		cache:       cache,
		feedbackTTL: feedbackTTL,
		index:       idx,
		selfHotkey:  selfHotkey,
		simulated:   true,
		sim:         sim,
	}, nil
}

// simulateResult rolls a behavior for stored and produces the corresponding
// TaskSynapse. no_response returns an empty, FAILED result set immediately.
// timeout sleeps U[MinTimeout, MaxTimeout] then also returns FAILED/empty —
// from the caller's perspective the two are observationally different only
// in latency. normal produces one synthetic score per criterion per
// completion via the formula in simulatedScore.
func (h *Handler) simulateResult(ctx context.Context, stored domain.TaskSynapse) (domain.TaskSynapse, error) {
	rng := rand.New(rand.NewSource(h.sim.Seed ^ int64(stored.RequestID.ID())))
	switch rollBehavior(rng, h.sim) {
	case behaviorNoResponse:
		log.Debug("minerhandler: simulated worker no_response", "request_id", stored.RequestID)
		stored.TaskResults = []domain.TaskResult{failedResult(stored.RequestID)}
		return stored, nil
	case behaviorTimeout:
		d := h.sim.MinTimeout + time.Duration(rng.Float64()*float64(h.sim.MaxTimeout-h.sim.MinTimeout))
		log.Debug("minerhandler: simulated worker timeout", "request_id", stored.RequestID, "delay", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return domain.TaskSynapse{}, ctx.Err()
		}
		stored.TaskResults = []domain.TaskResult{failedResult(stored.RequestID)}
		return stored, nil
	default:
		stored.TaskResults = buildSimulatedResults(stored, rng)
		return stored, nil
	}
}

func rollBehavior(rng *rand.Rand, sim SimConfig) simBehavior {
	r := rng.Float64()
	switch {
	case r < sim.NoResponseProb:
		return behaviorNoResponse
	case r < sim.NoResponseProb+sim.TimeoutProb:
		return behaviorTimeout
	default:
		return behaviorNormal
	}
}

func failedResult(requestID uuid.UUID) domain.TaskResult {
	return domain.TaskResult{
		ID:       uuid.New(),
		Status:   domain.ResultFailed,
		WorkerID: "sim-worker-" + uuid.NewString(),
		TaskID:   requestID,
	}
}

// buildSimulatedResults mirrors buildCompletedResults: CompletionResponses is
// cleared before stored is cached, so the criteria list and model ids come
// from stored.CriteriaTypes and the keys of stored.GroundTruth instead.
func buildSimulatedResults(stored domain.TaskSynapse, rng *rand.Rand) []domain.TaskResult {
	var results []domain.TaskResult
	for _, ct := range stored.CriteriaTypes {
		values := make(map[string]float64, len(stored.GroundTruth))
		for model := range stored.GroundTruth {
			values[model] = simulatedScore(rng)
		}
		results = append(results, domain.TaskResult{
			ID:       uuid.New(),
			Status:   domain.ResultCompleted,
			WorkerID: "sim-worker-" + uuid.NewString(),
			TaskID:   stored.RequestID,
			ResultData: []domain.Result{{
				Type:  ct,
				Value: values,
			}},
		})
	}
	return results
}

// simulatedScore draws v uniformly in [1,9], jitters by U[-0.5,0.5], floors,
// and rescales to the 1-100 worker-score range: clamp(1, 100,
// floor(floor(v+U[-0.5,0.5])/9 * 99 + 1)).
func simulatedScore(rng *rand.Rand) float64 {
	v := 1 + rng.Float64()*8
	jittered := math.Floor(v + (rng.Float64() - 0.5))
	score := math.Floor(jittered/9*99 + 1)
	if score < 1 {
		score = 1
	}
	if score > 100 {
		score = 100
	}
	return score
}
