package state

import "sync/atomic"

// EventFlags is the only state shared between signal producers and the
// dispatch loop. Producers only set flags (Signal*), the loop only clears
// them (Take*, Tick). Every field is a single atomic word, so no locks are
// needed and a producer never blocks.
type EventFlags struct {
	pending    [MaxSlots]atomic.Bool
	anyPending atomic.Bool
	request    atomic.Bool
	tick       chan struct{}
	overruns   atomic.Uint64
	n          int
}

func NewEventFlags(slots int) *EventFlags {
	if slots < 0 || slots > MaxSlots {
		slots = MaxSlots
	}
	return &EventFlags{
		n:    slots,
		tick: make(chan struct{}, 1),
	}
}

// SignalChange marks a slot for re-poll. Repeated signals before the next
// drain coalesce into one entry. Unknown ids are ignored.
func (f *EventFlags) SignalChange(id int) {
	if id < 0 || id >= f.n {
		return
	}
	f.pending[id].Store(true)
	f.anyPending.Store(true)
}

// SignalRequest posts a user request. It returns false when a request is
// already pending, in which case this one is dropped.
func (f *EventFlags) SignalRequest() bool {
	return f.request.CompareAndSwap(false, true)
}

// SignalTick raises the tick flag. A tick raised while the previous one is
// still unconsumed is folded into it and counted as an overrun.
func (f *EventFlags) SignalTick() {
	select {
	case f.tick <- struct{}{}:
	default:
		f.overruns.Add(1)
	}
}

// Tick is received from by the loop; the receive clears the flag.
func (f *EventFlags) Tick() <-chan struct{} {
	return f.tick
}

// TakePending clears and returns the set of slots awaiting re-poll as a
// bitmask indexed by slot id. A signal that lands during the take is either
// included now or left set for the next take; it is never lost.
func (f *EventFlags) TakePending() uint16 {
	if !f.anyPending.Swap(false) {
		return 0
	}
	var mask uint16
	for i := 0; i < f.n; i++ {
		if f.pending[i].Swap(false) {
			mask |= 1 << i
		}
	}
	return mask
}

// TakeRequest clears the request mailbox and reports whether it was set.
func (f *EventFlags) TakeRequest() bool {
	return f.request.Swap(false)
}

func (f *EventFlags) Overruns() uint64 {
	return f.overruns.Load()
}
