// Package display drives the seven-segment "slots available" digit.
package display

import (
	"sync"

	"github.com/elijahnyp/parking_controller/state"
	"github.com/elijahnyp/parking_controller/util"
)

// Segment bits, a..g from bit 0.
const (
	SegA uint8 = 1 << iota
	SegB
	SegC
	SegD
	SegE
	SegF
	SegG
)

// Patterns maps a digit to its lit segments.
var Patterns = [...]uint8{
	0x3F, // 0
	0x06, // 1
	0x5B, // 2
	0x4F, // 3
	0x66, // 4
	0x6D, // 5
	0x7D, // 6
	0x07, // 7
	0x7F, // 8
	0x6F, // 9
}

// ErrorPattern is shown for a symbol outside the table: a lone middle bar.
const ErrorPattern = SegG

// Pattern looks up a symbol. ok is false for symbols outside the table.
func Pattern(symbol uint8) (uint8, bool) {
	if int(symbol) >= len(Patterns) {
		return ErrorPattern, false
	}
	return Patterns[symbol], true
}

// Port is one output the segment pattern is written to: pins, a broker topic,
// the web mirror.
type Port interface {
	Write(pattern uint8)
}

// SegmentDisplay implements state.Display over any number of ports. Writes
// come from the dispatch loop; State may be read from anywhere.
type SegmentDisplay struct {
	ports   []Port
	mu      sync.RWMutex
	pattern uint8
	symbol  uint8
	lit     bool
}

var _ state.Display = (*SegmentDisplay)(nil)

func NewSegmentDisplay(ports ...Port) *SegmentDisplay {
	return &SegmentDisplay{ports: ports}
}

func (d *SegmentDisplay) write(pattern uint8) {
	for _, p := range d.ports {
		p.Write(pattern)
	}
}

func (d *SegmentDisplay) Render(symbol uint8) {
	pattern, ok := Pattern(symbol)
	if !ok {
		util.Logger.Warn().Msgf("symbol %d has no segment pattern", symbol)
	}
	d.mu.Lock()
	d.pattern = pattern
	d.symbol = symbol
	d.lit = true
	d.mu.Unlock()
	d.write(pattern)
}

func (d *SegmentDisplay) Blank() {
	d.mu.Lock()
	d.pattern = 0
	d.lit = false
	d.mu.Unlock()
	d.write(0)
}

// State returns the pattern on the display, the last rendered symbol and
// whether the display is lit.
func (d *SegmentDisplay) State() (pattern uint8, symbol uint8, lit bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pattern, d.symbol, d.lit
}
