package sensor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/elijahnyp/parking_controller/state"
	"github.com/elijahnyp/parking_controller/util"
)

type simSensor struct {
	queries   int
	present   bool
	attention bool
	failing   bool
}

// SimLink is an in-memory bus. Flipping a sensor's presence raises the
// change callback the way the sensor's interrupt line would.
type SimLink struct {
	sensors  map[uint8]*simSensor
	onChange func(addr uint8)
	mu       sync.Mutex
}

var _ state.SensorLink = (*SimLink)(nil)

func NewSimLink(addrs ...uint8) *SimLink {
	l := &SimLink{sensors: make(map[uint8]*simSensor, len(addrs))}
	for _, a := range addrs {
		l.sensors[a] = &simSensor{}
	}
	return l
}

// OnChange registers the edge callback. It runs on the caller of SetPresent.
func (l *SimLink) OnChange(fn func(addr uint8)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

func (l *SimLink) sensor(addr uint8) (*simSensor, error) {
	s, ok := l.sensors[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no sensor at 0x%02X", ErrTimeout, addr)
	}
	if s.failing {
		return nil, fmt.Errorf("%w: sensor 0x%02X not answering", ErrTimeout, addr)
	}
	return s, nil
}

// SetPresent changes what the sensor detects and fires the change callback
// when the value actually flips.
func (l *SimLink) SetPresent(addr uint8, present bool) {
	l.mu.Lock()
	s, ok := l.sensors[addr]
	changed := ok && s.present != present
	if changed {
		s.present = present
	}
	fn := l.onChange
	l.mu.Unlock()
	if changed && fn != nil {
		fn(addr)
	}
}

// SetFailing makes the sensor stop answering.
func (l *SimLink) SetFailing(addr uint8, failing bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sensors[addr]; ok {
		s.failing = failing
	}
}

func (l *SimLink) Attention(addr uint8) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sensors[addr]
	return ok && s.attention
}

// Queries returns how many presence queries the sensor has answered or failed.
func (l *SimLink) Queries(addr uint8) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sensors[addr]; ok {
		return s.queries
	}
	return 0
}

func (l *SimLink) QueryPresence(ctx context.Context, addr uint8) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sensors[addr]; ok {
		s.queries++
	}
	s, err := l.sensor(addr)
	if err != nil {
		return false, err
	}
	return s.present, nil
}

func (l *SimLink) QueryBlinkState(ctx context.Context, addr uint8) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.sensor(addr)
	if err != nil {
		return false, err
	}
	return s.attention, nil
}

func (l *SimLink) SetAttention(ctx context.Context, addr uint8, on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.sensor(addr)
	if err != nil {
		return err
	}
	s.attention = on
	return nil
}

// Wander flips a random sensor every interval until ctx is done. Used when
// running without hardware. A car parking on a bay clears its indicator.
func (l *SimLink) Wander(ctx context.Context, interval time.Duration) {
	addrs := make([]uint8, 0, len(l.sensors))
	for a := range l.sensors {
		addrs = append(addrs, a)
	}
	if len(addrs) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			addr := addrs[rand.IntN(len(addrs))]
			l.mu.Lock()
			present := !l.sensors[addr].present
			if present {
				l.sensors[addr].attention = false
			}
			l.mu.Unlock()
			util.Logger.Debug().Msgf("simulated sensor 0x%02X present=%v", addr, present)
			l.SetPresent(addr, present)
		}
	}
}
