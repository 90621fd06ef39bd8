// Package metricset centralizes the metrics.Registry counters/timers the
// rest of the subnet increments, all registered against the shared
// github.com/ethereum/go-ethereum/metrics default registry.
package metricset

import "github.com/ethereum/go-ethereum/metrics"

var (
	// TasksSaved counts ValidatorTask rows successfully persisted by SaveTask.
	TasksSaved = metrics.NewRegisteredCounter("subnet/tasks/saved", nil)

	// TasksProcessed counts ValidatorTask rows matched by
	// MarkValidatorTaskAsProcessed; re-marking an already-processed row
	// counts it again.
	TasksProcessed = metrics.NewRegisteredCounter("subnet/tasks/processed", nil)

	// MinerResponsesDropped counts miner responses dropped during SaveTask
	// due to InvalidMinerResponse.
	MinerResponsesDropped = metrics.NewRegisteredCounter("subnet/miner_responses/dropped", nil)

	// MinerRPCFailures counts failed/timed-out RPCs to a miner peer during
	// the monitor loop.
	MinerRPCFailures = metrics.NewRegisteredCounter("subnet/monitor/rpc_failures", nil)

	// AggregationLatency times one CalculateAverages call.
	AggregationLatency = metrics.NewRegisteredTimer("subnet/monitor/aggregation_latency", nil)

	// WorkerPlatformRetries counts retry attempts issued by the
	// worker-platform client (CreateTask + GetTaskResultsByTaskId combined).
	WorkerPlatformRetries = metrics.NewRegisteredCounter("subnet/workerplatform/retries", nil)

	// ObfuscationTimeouts counts Obfuscate calls that hit the wall-clock
	// timeout and fell back to returning the input unchanged.
	ObfuscationTimeouts = metrics.NewRegisteredCounter("subnet/obfuscate/timeouts", nil)
)
