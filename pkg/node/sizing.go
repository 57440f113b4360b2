package node

import (
	"time"

	"github.com/fluxsec/pipeline/pkg/element"
)

// Buffer sizing per element kind (spec §4.3.1).
const (
	eventsMaxBatchSize = 64 * 1024        // 64 Ki rows
	eventsMinBatchSize = 8 * 1024         // 8 Ki rows, the request floor
	eventsMaxBuffered  = 254 * 1024       // 254 Ki rows
	bytesMaxBatchSize  = 1 * 1024 * 1024  // 1 Mi bytes
	bytesMinBatchSize  = 128 * 1024       // 128 Ki bytes
	bytesMaxBuffered   = 4 * 1024 * 1024  // 4 Mi bytes
)

// MaxBatchTimeout bounds how long a pull demand may wait before a partial
// delivery is acceptable (spec §4.3.1).
const MaxBatchTimeout = 250 * time.Millisecond

// MaxAdvancesPerRun bounds how many times the operator sequence is
// advanced in a single scheduler turn, preserving fairness and
// async-await safety for suspending operators (spec §4.3.1, §5).
const MaxAdvancesPerRun = 1

// MaxBatchSize returns max_batch_size for kind.
func MaxBatchSize(kind element.Kind) int {
	if kind == element.KindBytes {
		return bytesMaxBatchSize
	}
	return eventsMaxBatchSize
}

// MinBatchSize returns min_batch_size (the request floor) for kind.
func MinBatchSize(kind element.Kind) int {
	if kind == element.KindBytes {
		return bytesMinBatchSize
	}
	return eventsMinBatchSize
}

// MaxBuffered returns max_buffered for kind.
func MaxBuffered(kind element.Kind) int {
	if kind == element.KindBytes {
		return bytesMaxBuffered
	}
	return eventsMaxBuffered
}
