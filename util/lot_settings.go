package util

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elijahnyp/parking_controller/state"
)

type SlotSettings struct {
	Name    string `mapstructure:"name"`
	Address int    `mapstructure:"address"`
}

// LotSettings is everything the controller needs at start-up. It is read once;
// later config file changes do not reach a running lot.
type LotSettings struct {
	Slots         []SlotSettings
	TopicPrefix   string
	TickPeriod    time.Duration
	BusTimeout    time.Duration
	StartupDelay  time.Duration
	BlinkInterval int
	BlinkCount    int
	BusRetries    int
	FailurePolicy string
	Simulate      bool
}

var ErrInvalidSettings = errors.New("invalid lot settings")

func LoadLotSettings() (LotSettings, error) {
	var s LotSettings
	if err := Config.UnmarshalKey("slots", &s.Slots); err != nil {
		return s, fmt.Errorf("error unmarshaling slots: %w", err)
	}
	s.TopicPrefix = strings.Trim(Config.GetString("topic_prefix"), "/")
	s.TickPeriod = Config.GetDuration("tick_period")
	s.BusTimeout = Config.GetDuration("bus_timeout")
	s.StartupDelay = Config.GetDuration("startup_delay")
	s.BlinkInterval = Config.GetInt("blink_interval")
	s.BlinkCount = Config.GetInt("blink_count")
	s.BusRetries = Config.GetInt("bus_retries")
	s.FailurePolicy = strings.ToLower(Config.GetString("sensor_failure_policy"))
	s.Simulate = Config.GetBool("simulate")
	return s, s.Validate()
}

func (s LotSettings) Validate() error {
	if len(s.Slots) == 0 || len(s.Slots) > state.MaxSlots {
		return fmt.Errorf("%w: slot count %d outside 1..%d", ErrInvalidSettings, len(s.Slots), state.MaxSlots)
	}
	seen := make(map[int]string, len(s.Slots))
	for i, slot := range s.Slots {
		if slot.Name == "" {
			return fmt.Errorf("%w: slot %d has no name", ErrInvalidSettings, i)
		}
		if slot.Address < 0 || slot.Address > 0x7F {
			return fmt.Errorf("%w: slot %s address 0x%X is not a 7-bit bus address", ErrInvalidSettings, slot.Name, slot.Address)
		}
		if other, ok := seen[slot.Address]; ok {
			return fmt.Errorf("%w: slots %s and %s share address 0x%X", ErrInvalidSettings, other, slot.Name, slot.Address)
		}
		seen[slot.Address] = slot.Name
	}
	if s.TickPeriod <= 0 {
		return fmt.Errorf("%w: tick_period must be positive", ErrInvalidSettings)
	}
	// a poll has to fit inside one tick
	if s.BusTimeout <= 0 || s.BusTimeout >= s.TickPeriod {
		return fmt.Errorf("%w: bus_timeout %v must be positive and below tick_period %v", ErrInvalidSettings, s.BusTimeout, s.TickPeriod)
	}
	if s.BlinkInterval <= 0 || s.BlinkCount <= 0 {
		return fmt.Errorf("%w: blink_interval and blink_count must be positive", ErrInvalidSettings)
	}
	if s.BusRetries < 0 {
		return fmt.Errorf("%w: bus_retries must not be negative", ErrInvalidSettings)
	}
	if _, err := state.ParseFailurePolicy(s.FailurePolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}
