package main

import (
	"fmt"

	"github.com/elijahnyp/parking_controller/dispatch"
	"github.com/elijahnyp/parking_controller/display"
	"github.com/elijahnyp/parking_controller/state"
	. "github.com/elijahnyp/parking_controller/util"
)

// controller ties the loop to its signal sources and read-only surfaces.
type controller struct {
	flags      *state.EventFlags
	dispatcher *dispatch.Dispatcher
	display    *display.SegmentDisplay
	mirror     *display.Mirror
	hub        *WSHub
	slotByAddr map[uint8]int
	settings   LotSettings
}

func slotConfigs(settings LotSettings) []state.SlotConfig {
	slots := make([]state.SlotConfig, len(settings.Slots))
	for i, s := range settings.Slots {
		slots[i] = state.SlotConfig{Name: s.Name, Address: uint8(s.Address)}
	}
	return slots
}

func newController(settings LotSettings, link state.SensorLink, ports []display.Port, reporters ...dispatch.Reporter) (*controller, error) {
	policy, err := state.ParseFailurePolicy(settings.FailurePolicy)
	if err != nil {
		return nil, err
	}
	c := &controller{
		flags:      state.NewEventFlags(len(settings.Slots)),
		mirror:     display.NewMirror(),
		hub:        NewHub(),
		slotByAddr: make(map[uint8]int, len(settings.Slots)),
		settings:   settings,
	}
	c.display = display.NewSegmentDisplay(append(ports, c.mirror)...)
	for i, s := range settings.Slots {
		c.slotByAddr[uint8(s.Address)] = i
	}

	cfg := dispatch.Config{
		Slots:         slotConfigs(settings),
		BusTimeout:    settings.BusTimeout,
		BlinkInterval: settings.BlinkInterval,
		BlinkCount:    settings.BlinkCount,
		BusRetries:    settings.BusRetries,
		FailurePolicy: policy,
	}
	c.dispatcher, err = dispatch.New(cfg, c.flags, link, c.display, append(reporters, c.hub)...)
	if err != nil {
		return nil, fmt.Errorf("building dispatcher: %w", err)
	}
	// set before the hub runs; every later broadcast is newer
	c.hub.latest = &WebSocketMessage{Type: "lot_status", Data: c.dispatcher.Snapshot()}
	Logger.Info().Msgf("lot of %d slots, tick %v, failure policy %s", len(settings.Slots), settings.TickPeriod, policy)
	return c, nil
}

// signalAddr is the change-line handler for the simulated bus.
func (c *controller) signalAddr(addr uint8) {
	if id, ok := c.slotByAddr[addr]; ok {
		c.flags.SignalChange(id)
	}
}
