package flush

import "time"

// State is a pool's position in the drain lifecycle.
type State string

const (
	StateReady    State = "ready"
	StateClaimed  State = "claimed"
	StateDraining State = "draining"
	StateReleased State = "released"
	StateStuck    State = "stuck"
)

// Status is the outcome of one drain.
type Status string

const (
	// StatusNoop means nothing was claimable or the claimed pool was empty.
	StatusNoop     Status = "noop"
	StatusReleased Status = "released"
	StatusStuck    Status = "stuck"
)

// Result describes one drain.
type Result struct {
	Pool     string
	DrainID  string
	Status   Status
	Count    int
	Bytes    int64
	Duration time.Duration
}
