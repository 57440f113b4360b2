package node

import "time"

// demand is a downstream request for up to BatchSize elements by
// BatchTimeout (spec §3 "Demand"). It is stored on the upstream node that
// must fulfill it.
type demand struct {
	sink      *Node // the downstream node to push(head) to
	batchSize int
	deadline  time.Time
	ongoing   bool // not set or read anywhere in this package
}

func (d *demand) expired(now time.Time) bool { return !now.Before(d.deadline) }
