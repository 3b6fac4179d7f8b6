// Package dispatch is the controller's single worker. Signal producers only
// raise flags in state.EventFlags; the Dispatcher consumes them once per tick
// and is the only code that touches the sensor bus, the display and the lot.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/elijahnyp/parking_controller/state"
	"github.com/elijahnyp/parking_controller/util"
	"github.com/rs/zerolog"
)

// Reporter receives a snapshot whenever the lot, the attention target or the
// blink state changes. Called from the loop, so it must not block.
type Reporter interface {
	Publish(snap *state.Snapshot)
}

type Config struct {
	Slots         []state.SlotConfig
	BusTimeout    time.Duration
	BlinkInterval int
	BlinkCount    int
	BusRetries    int
	FailurePolicy state.FailurePolicy
}

type Dispatcher struct {
	lot       *state.Lot
	flags     *state.EventFlags
	link      state.SensorLink
	display   state.Display
	blink     *Blinker
	reporters []Reporter
	snapshot  atomic.Pointer[state.Snapshot]
	cfg       Config
	attention int
	overruns  uint64
	now       func() time.Time
}

func New(cfg Config, flags *state.EventFlags, link state.SensorLink, display state.Display, reporters ...Reporter) (*Dispatcher, error) {
	lot, err := state.NewLot(cfg.Slots)
	if err != nil {
		return nil, err
	}
	if flags == nil || link == nil || display == nil {
		return nil, errors.New("dispatcher needs flags, a sensor link and a display")
	}
	d := &Dispatcher{
		lot:       lot,
		flags:     flags,
		link:      link,
		display:   display,
		blink:     NewBlinker(cfg.BlinkInterval, cfg.BlinkCount),
		reporters: reporters,
		cfg:       cfg,
		attention: -1,
		now:       time.Now,
	}
	d.snapshot.Store(lot.Snapshot(-1, false, d.now()))
	return d, nil
}

// Snapshot is safe to call from any goroutine.
func (d *Dispatcher) Snapshot() *state.Snapshot {
	return d.snapshot.Load()
}

// logger is looked up per call so a log level reload reaches the loop.
func (d *Dispatcher) logger() *zerolog.Logger {
	l := util.Component("dispatch")
	return &l
}

func (d *Dispatcher) busCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.BusTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.cfg.BusTimeout)
}

// poll reads one slot, applying retries and then the failure policy.
func (d *Dispatcher) poll(ctx context.Context, id int) bool {
	slot := d.lot.Slot(id)
	var err error
	for attempt := 0; attempt <= d.cfg.BusRetries; attempt++ {
		bctx, cancel := d.busCtx(ctx)
		var present bool
		present, err = d.link.QueryPresence(bctx, slot.Address)
		cancel()
		if err == nil {
			util.SensorPollsTotal.WithLabelValues(slot.Name, "ok").Inc()
			return present
		}
	}
	util.SensorPollsTotal.WithLabelValues(slot.Name, "error").Inc()
	resolved := d.cfg.FailurePolicy.Resolve(slot.Occupied)
	d.logger().Warn().Err(err).Str("slot", slot.Name).Msgf("sensor 0x%02X unreachable, policy %s reads occupied=%v", slot.Address, d.cfg.FailurePolicy, resolved)
	return resolved
}

func (d *Dispatcher) symbol() uint8 {
	return d.lot.Occupancy().Symbol()
}

func (d *Dispatcher) publish() {
	snap := d.lot.Snapshot(d.attention, d.blink.Active(), d.now())
	d.snapshot.Store(snap)
	for _, r := range d.reporters {
		r.Publish(snap)
	}
}

func (d *Dispatcher) showOccupancy() {
	view := d.lot.Occupancy()
	util.SlotsOccupied.Set(float64(view.Occupied))
	util.SlotsAvailable.Set(float64(view.Available()))
	// a dark blink phase picks up the new symbol when it turns back on
	if !d.blink.Dark() {
		d.display.Render(view.Symbol())
	}
}

// Init polls every slot once and shows the result.
func (d *Dispatcher) Init(ctx context.Context) {
	for id := 0; id < d.lot.Count(); id++ {
		d.lot.Set(id, d.poll(ctx, id))
	}
	d.showOccupancy()
	d.publish()
	view := d.lot.Occupancy()
	d.logger().Info().Msgf("initial occupancy %d/%d", view.Occupied, view.Total)
}

// Cycle is one tick of work.
func (d *Dispatcher) Cycle(ctx context.Context) {
	util.TicksTotal.Inc()
	d.noteOverruns()
	dirty := false

	if mask := d.flags.TakePending(); mask != 0 {
		changed := false
		for id := 0; id < d.lot.Count(); id++ {
			if mask&(1<<id) == 0 {
				continue
			}
			occupied := d.poll(ctx, id)
			if d.lot.Set(id, occupied) {
				changed = true
				d.logger().Debug().Str("slot", d.lot.Slot(id).Name).Msgf("occupied=%v", occupied)
			}
		}
		if changed {
			d.showOccupancy()
			d.releaseAttention(ctx)
			dirty = true
		}
	}

	if d.flags.TakeRequest() {
		if d.serviceRequest(ctx) {
			dirty = true
		}
	}

	if d.blink.Active() && d.blink.Step(d.display, d.symbol()) {
		util.BlinkToggleTotal.Inc()
		if !d.blink.Active() {
			d.logger().Debug().Msg("blink finished")
			dirty = true
		}
	}

	if dirty {
		d.publish()
	}
}

func (d *Dispatcher) noteOverruns() {
	n := d.flags.Overruns()
	if n > d.overruns {
		util.TickOverrunsTotal.Add(float64(n - d.overruns))
		d.logger().Warn().Msgf("%d tick(s) overran the dispatch cycle", n-d.overruns)
		d.overruns = n
	}
}

// serviceRequest points the user at the lowest-id vacant slot, or starts the
// blinker when there is none. It reports whether anything visible changed.
func (d *Dispatcher) serviceRequest(ctx context.Context) bool {
	if d.lot.Occupancy().Full() {
		if d.blink.Start() {
			util.UserRequestsTotal.WithLabelValues("blink").Inc()
			d.logger().Info().Msg("lot full, blinking display")
			return true
		}
		util.UserRequestsTotal.WithLabelValues("already_blinking").Inc()
		return false
	}
	id, _ := d.lot.FirstVacant()
	return d.directAttention(ctx, id)
}

func (d *Dispatcher) directAttention(ctx context.Context, id int) bool {
	slot := d.lot.Slot(id)
	if d.attention >= 0 && d.attention != id {
		d.setAttention(ctx, d.attention, false)
		d.attention = -1
	}

	bctx, cancel := d.busCtx(ctx)
	on, err := d.link.QueryBlinkState(bctx, slot.Address)
	cancel()
	if err == nil && on {
		util.UserRequestsTotal.WithLabelValues("attention_held").Inc()
		changed := d.attention != id
		d.attention = id
		return changed
	}

	if err := d.setAttention(ctx, id, true); err != nil {
		util.UserRequestsTotal.WithLabelValues("error").Inc()
		return false
	}
	util.UserRequestsTotal.WithLabelValues("attention").Inc()
	d.logger().Info().Str("slot", slot.Name).Msg("directing attention")
	d.attention = id
	return true
}

// releaseAttention turns the indicator off once its slot has been taken.
func (d *Dispatcher) releaseAttention(ctx context.Context) {
	if d.attention < 0 || !d.lot.Slot(d.attention).Occupied {
		return
	}
	if err := d.setAttention(ctx, d.attention, false); err == nil {
		d.logger().Debug().Str("slot", d.lot.Slot(d.attention).Name).Msg("attention released")
	}
	d.attention = -1
}

func (d *Dispatcher) setAttention(ctx context.Context, id int, on bool) error {
	slot := d.lot.Slot(id)
	bctx, cancel := d.busCtx(ctx)
	defer cancel()
	if err := d.link.SetAttention(bctx, slot.Address, on); err != nil {
		err = fmt.Errorf("attention %v on %s: %w", on, slot.Name, err)
		d.logger().Warn().Err(err).Msg("sensor command failed")
		return err
	}
	return nil
}

// Run polls every slot, then does one Cycle per tick until ctx is done.
// Cycles run on the calling goroutine, so they never overlap.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.Init(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.flags.Tick():
			d.Cycle(ctx)
		}
	}
}

// RunTicker raises a tick every period until ctx is done.
func RunTicker(ctx context.Context, period time.Duration, flags *state.EventFlags) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			flags.SignalTick()
		}
	}
}
