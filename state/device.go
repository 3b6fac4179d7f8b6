package state

import "context"

// SensorLink is the request/response contract of the shared sensor bus.
// Calls are blocking bus transactions and must only be made from the
// dispatch loop.
type SensorLink interface {
	QueryPresence(ctx context.Context, addr uint8) (bool, error)
	QueryBlinkState(ctx context.Context, addr uint8) (bool, error)
	SetAttention(ctx context.Context, addr uint8, on bool) error
}

// Display shows one symbol from a fixed table, or nothing.
type Display interface {
	Render(symbol uint8)
	Blank()
}
