package dispatch

import "github.com/elijahnyp/parking_controller/state"

// Blinker flashes the display a fixed number of times to say the lot is
// full, then stops on its own. It belongs to the dispatch loop.
type Blinker struct {
	interval int
	cycles   int
	timer    int
	left     int
	active   bool
	phaseOn  bool
}

// NewBlinker toggles every interval ticks, cycles times.
func NewBlinker(interval, cycles int) *Blinker {
	if interval < 1 {
		interval = 1
	}
	if cycles < 1 {
		cycles = 1
	}
	return &Blinker{interval: interval, cycles: cycles, phaseOn: true}
}

// Start moves Idle to Active. It reports false if already active.
func (b *Blinker) Start() bool {
	if b.active {
		return false
	}
	b.active = true
	b.phaseOn = true
	b.timer = b.interval
	b.left = b.cycles
	return true
}

func (b *Blinker) Active() bool {
	return b.active
}

// Dark reports whether the display is currently blanked by the blinker.
// Renders should wait while it is.
func (b *Blinker) Dark() bool {
	return b.active && !b.phaseOn
}

// Step advances one tick and reports whether the phase toggled. symbol is
// re-rendered on every On phase and on exit, so the display never stays dark
// once the blinker is idle.
func (b *Blinker) Step(d state.Display, symbol uint8) bool {
	if !b.active {
		return false
	}
	b.timer--
	if b.timer > 0 {
		return false
	}
	b.timer = b.interval
	b.phaseOn = !b.phaseOn
	b.left--
	if b.phaseOn {
		d.Render(symbol)
	} else {
		d.Blank()
	}
	if b.left == 0 {
		b.active = false
		if !b.phaseOn {
			b.phaseOn = true
			d.Render(symbol)
		}
	}
	return true
}
