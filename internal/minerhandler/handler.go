package minerhandler

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/workerplatform"
)

// requestIndexSize bounds the in-memory hotkey->request index so a miner
// under request-volume load can't be OOM'd by an unbounded map.
const requestIndexSize = 8192

// defaultMaxResults is the worker-platform result cap used when a Handler is
// constructed with maxResults <= 0.
const defaultMaxResults = 1

// Handler implements the miner-side RPC surface: ForwardFeedbackRequest and
// ForwardTaskResultRequest. A Handler is constructed once per miner process
// and exposed over github.com/ethereum/go-ethereum/rpc.
type Handler struct {
	cache       requestCache
	feedbackTTL time.Duration
	index       *lru.Cache // hotkey -> dojo task id
	selfHotkey  string
	simulated   bool
	sim         SimConfig

	// platform is the real worker-platform client. Nil means no live
	// platform is configured — ForwardFeedbackRequest/ForwardTaskResultRequest
	// then fall back to the RequestID/ground-truth-derived convention used
	// in devnet and in tests that don't stand up a fake platform server.
	platform   *workerplatform.Client
	maxResults int
}

// New constructs a real (non-simulated) Handler. feedbackTTL must be at
// least taskDeadline+pollSkew — New returns an error rather than silently
// accepting a TTL that could evict a request before the validator polls it.
// platform may be nil, in which case ForwardFeedbackRequest/
// ForwardTaskResultRequest use the RequestID/ground-truth fallback instead of
// calling out to a live worker platform.
func New(cache requestCache, feedbackTTL, taskDeadline, pollSkew time.Duration, selfHotkey string, platform *workerplatform.Client, maxResults int) (*Handler, error) {
	if feedbackTTL < taskDeadline+pollSkew {
		return nil, fmt.Errorf("minerhandler: feedbackTTL %s is shorter than taskDeadline+pollSkew %s", feedbackTTL, taskDeadline+pollSkew)
	}
	idx, err := lru.New(requestIndexSize)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Handler{cache: cache, feedbackTTL: feedbackTTL, index: idx, selfHotkey: selfHotkey, platform: platform, maxResults: maxResults}, nil
}

// ForwardFeedbackRequest stores synapse in the TTL cache under
// feedback:{request_id} and returns a scrubbed copy (ground_truth cleared,
// dojo_task_id filled) for the validator. Rejects (returns the input
// unmodified) if dendrite.hotkey or completion_responses are missing. When a
// worker platform is configured, CreateTask is called first so dojo_task_id
// is the platform's own id rather than the RequestID fallback.
func (h *Handler) ForwardFeedbackRequest(ctx context.Context, synapse domain.TaskSynapse) (domain.TaskSynapse, error) {
	if synapse.Dendrite.Hotkey == "" || len(synapse.CompletionResponses) == 0 {
		return synapse, nil
	}

	dojoTaskID := synapse.RequestID // simulator/fallback convention
	if h.platform != nil {
		ids, err := h.platform.CreateTask(ctx, synapse, h.maxResults)
		if err != nil {
			log.Error("minerhandler: CreateTask failed", "request_id", synapse.RequestID, "err", err)
			return synapse, err
		}
		if len(ids) > 0 {
			dojoTaskID = ids[0]
		}
	}

	stored := synapse
	stored.CompletionResponses = nil
	stored.DojoTaskID = dojoTaskID
	payload, err := encodeSynapse(stored)
	if err != nil {
		return synapse, err
	}
	if err := h.cache.Set(ctx, feedbackKey(synapse.RequestID.String()), payload, h.feedbackTTL); err != nil {
		log.Error("minerhandler: failed to cache feedback request", "request_id", synapse.RequestID, "err", err)
		return synapse, err
	}

	out := synapse
	out.DojoTaskID = dojoTaskID
	out.GroundTruth = map[string]int{}
	h.index.Add(synapse.Dendrite.Hotkey, out.DojoTaskID)
	return out, nil
}

// ForwardTaskResultRequest looks up the stored request by task id. With a
// worker platform configured, it polls GetTaskResultsByTaskId and wraps the
// flat results it returns into one TaskResult per result entry; otherwise it
// builds one TaskResult per criterion with status COMPLETED from the
// retained criteria/ground-truth fields. The cache entry is deleted
// afterwards — results are consumed exactly once.
func (h *Handler) ForwardTaskResultRequest(ctx context.Context, taskID uuid.UUID) (domain.TaskSynapse, error) {
	key := feedbackKey(taskID.String())
	raw, ok, err := h.cache.Get(ctx, key)
	if err != nil {
		return domain.TaskSynapse{}, err
	}
	if !ok {
		return domain.TaskSynapse{TaskResults: nil}, nil
	}
	stored, err := decodeSynapse(raw)
	if err != nil {
		return domain.TaskSynapse{}, err
	}
	defer func() { _ = h.cache.Del(ctx, key) }()

	if h.simulated {
		return h.simulateResult(ctx, stored)
	}

	if h.platform != nil {
		results, err := h.platform.GetTaskResultsByTaskId(ctx, stored.DojoTaskID)
		if err != nil {
			return domain.TaskSynapse{}, err
		}
		stored.TaskResults = wrapPlatformResults(stored.RequestID, results)
		return stored, nil
	}

	stored.TaskResults = buildCompletedResults(stored)
	return stored, nil
}

// wrapPlatformResults wraps each flat platform domain.Result into its own
// TaskResult with a distinct WorkerID, since CalculateAverages's denominator
// counts distinct WorkerIDs and the platform's flat response shape carries no
// per-worker identity of its own.
func wrapPlatformResults(taskID uuid.UUID, results []domain.Result) []domain.TaskResult {
	out := make([]domain.TaskResult, 0, len(results))
	for i, r := range results {
		out = append(out, domain.TaskResult{
			ID:         uuid.New(),
			Status:     domain.ResultCompleted,
			WorkerID:   fmt.Sprintf("platform-worker-%d", i),
			TaskID:     taskID,
			ResultData: []domain.Result{r},
		})
	}
	return out
}

// buildCompletedResults builds one TaskResult per criterion type. Since
// ForwardFeedbackRequest clears CompletionResponses before caching the
// request, the model ids and criteria list are recovered from the fields it
// retains: stored.CriteriaTypes and the keys of stored.GroundTruth.
func buildCompletedResults(stored domain.TaskSynapse) []domain.TaskResult {
	var results []domain.TaskResult
	for _, ct := range stored.CriteriaTypes {
		values := make(map[string]float64, len(stored.GroundTruth))
		for model := range stored.GroundTruth {
			values[model] = 0
		}
		results = append(results, domain.TaskResult{
			ID:       uuid.New(),
			Status:   domain.ResultCompleted,
			WorkerID: "worker-" + uuid.NewString(),
			TaskID:   stored.RequestID,
			ResultData: []domain.Result{{
				Type:  ct,
				Value: values,
			}},
		})
	}
	return results
}
