package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/dojonet/subnet/internal/domain"
	"github.com/dojonet/subnet/internal/metricset"
	"github.com/dojonet/subnet/internal/orm"
	"github.com/dojonet/subnet/internal/rpcpeer"
	"github.com/dojonet/subnet/internal/store"
	"github.com/dojonet/subnet/internal/taskerr"
)

// TaskProcessedEvent is published after a task's completions are
// successfully updated and it is marked processed.
type TaskProcessedEvent struct {
	TaskID uuid.UUID
}

// AggregationFailedEvent is published when polling or persisting a task's
// aggregated results fails.
type AggregationFailedEvent struct {
	TaskID uuid.UUID
	Err    error
}

// ResultTimeout is the per-miner RPC timeout for TaskResultRequest.
const ResultTimeout = 12 * time.Second

// PollInterval is the sleep between outer loop iterations.
const PollInterval = 30 * time.Second

// BatchSize is the page size passed to ORM.GetUnexpiredTasks.
const BatchSize = 10

// dialFunc abstracts rpcpeer.Dial so tests can substitute an in-memory peer.
type dialFunc func(ctx context.Context, endpoint string) (*rpcpeer.Client, error)

// Monitor is the validator's single task-result polling loop. It holds its
// own explicit handles rather than reaching for process-wide singleton
// state, so multiple Monitors (e.g. in tests) never contend over globals.
type Monitor struct {
	ORM          *orm.ORM
	Resolver     *rpcpeer.Resolver
	Dial         dialFunc
	SelfHotkey   string
	InitialDelay time.Duration

	// ProcessedFeed and FailedFeed let callers (e.g. a monitor status
	// stream) observe the loop's per-task outcomes without polling the
	// store themselves.
	ProcessedFeed event.Feed
	FailedFeed    event.Feed

	stopping atomic.Bool
}

// New constructs a Monitor. initialDelay is DOJO_TASK_MONITORING seconds,
// waited once before the first tick; the first tick is handled exactly like
// every later one.
func New(o *orm.ORM, r *rpcpeer.Resolver, dial dialFunc, selfHotkey string, initialDelay time.Duration) *Monitor {
	if dial == nil {
		dial = rpcpeer.Dial
	}
	return &Monitor{ORM: o, Resolver: r, Dial: dial, SelfHotkey: selfHotkey, InitialDelay: initialDelay}
}

// Stop requests the loop exit after its current iteration.
func (m *Monitor) Stop() { m.stopping.Store(true) }

// Run blocks until ctx is cancelled or Stop is called, driving the periodic
// poll-and-aggregate loop. All unexpected per-iteration errors
// are logged and swallowed — the loop itself must never exit except via ctx
// cancellation or Stop, since the monitor is the only path that finalizes
// scores for a validator.
func (m *Monitor) Run(ctx context.Context) {
	select {
	case <-time.After(m.InitialDelay):
	case <-ctx.Done():
		return
	}

	for !m.stopping.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.tick(ctx); err != nil {
			if taskerr.IsBenignIteratorError(err) {
				log.Debug("monitor: nothing to process this iteration", "err", err)
			} else {
				log.Error("monitor: iteration failed", "err", err)
			}
		}

		select {
		case <-time.After(PollInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) tick(ctx context.Context) error {
	batches, err := m.ORM.GetUnexpiredTasks(ctx, []string{m.SelfHotkey}, BatchSize)
	if err != nil {
		return err
	}
	for batch := range batches {
		for i := range batch.Tasks {
			m.processTask(ctx, &batch.Tasks[i])
		}
	}
	return nil
}

func (m *Monitor) processTask(ctx context.Context, task *store.ValidatorTaskRow) {
	realModelIds, err := m.ORM.GetRealModelIds(ctx, task.ID)
	if err != nil {
		log.Error("monitor: GetRealModelIds failed", "task_id", task.ID, "err", err)
		return
	}

	var results []domain.TaskResult
	for _, mr := range task.MinerResponses {
		if mr.Hotkey == "" || mr.DojoTaskID == uuid.Nil {
			log.Debug("monitor: invalid miner response, skipping", "task_id", task.ID, "miner_response_id", mr.ID)
			continue
		}
		taskResults := m.pollMiner(ctx, mr)
		if len(taskResults) == 0 {
			continue
		}
		results = append(results, taskResults...)
	}
	if len(results) == 0 {
		return
	}

	start := time.Now()
	averages := CalculateAverages(results, realModelIds)
	metricset.AggregationLatency.UpdateSince(start)

	completions := applyAverages(task.Completions, averages, realModelIds)
	if err := m.ORM.UpdateMinerCompletions(ctx, task.ID, completions); err != nil {
		log.Error("monitor: UpdateMinerCompletions failed", "task_id", task.ID, "err", err)
		m.FailedFeed.Send(AggregationFailedEvent{TaskID: task.ID, Err: err})
		return
	}
	if err := m.ORM.MarkValidatorTaskAsProcessed(ctx, []uuid.UUID{task.ID}); err != nil {
		log.Error("monitor: MarkValidatorTaskAsProcessed failed", "task_id", task.ID, "err", err)
		m.FailedFeed.Send(AggregationFailedEvent{TaskID: task.ID, Err: err})
		return
	}
	m.ProcessedFeed.Send(TaskProcessedEvent{TaskID: task.ID})
}

func (m *Monitor) pollMiner(ctx context.Context, mr store.MinerResponseRow) []domain.TaskResult {
	addr, err := m.Resolver.Address(mr.Hotkey)
	if err != nil {
		log.Debug("monitor: no peer address for hotkey", "hotkey", mr.Hotkey, "err", err)
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, ResultTimeout)
	defer cancel()
	client, err := m.Dial(rctx, addr)
	if err != nil {
		metricset.MinerRPCFailures.Inc(1)
		log.Debug("monitor: dial failed", "hotkey", mr.Hotkey, "addr", addr, "err", err)
		return nil
	}
	defer client.Close()
	synapse, err := client.ForwardTaskResultRequest(rctx, mr.DojoTaskID)
	if err != nil {
		metricset.MinerRPCFailures.Inc(1)
		log.Debug("monitor: ForwardTaskResultRequest failed", "hotkey", mr.Hotkey, "err", err)
		return nil
	}
	return synapse.TaskResults
}

// applyAverages maps each completion's (obfuscated) Model through
// realModelIds before looking it up in averages, since CompletionRow.Model
// is stored as the obfuscated id handed to miners while averages is keyed
// by real model id.
func applyAverages(completions []store.CompletionRow, averages map[string]Aggregate, realModelIds map[string]string) []store.CompletionRow {
	out := make([]store.CompletionRow, len(completions))
	for i, c := range completions {
		realID := deobfuscate(c.Model, realModelIds)
		if agg, ok := averages[realID]; ok {
			if agg.RankID != nil {
				c.RankID = agg.RankID
			}
			if agg.Score != nil {
				c.Score = agg.Score
			}
		}
		out[i] = c
	}
	return out
}
