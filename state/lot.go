package state

import (
	"fmt"
	"time"
)

// MaxSlots bounds the fixed slot arrays; the display shows a single digit.
const MaxSlots = 9

type Slot struct {
	Name     string
	ID       int
	Address  uint8
	Occupied bool
}

type SlotConfig struct {
	Name    string
	Address uint8
}

// Lot is the fixed set of slots. It is owned by the dispatch loop and is not
// safe for concurrent use; readers use Snapshot.
type Lot struct {
	slots [MaxSlots]Slot
	n     int
}

func NewLot(cfg []SlotConfig) (*Lot, error) {
	if len(cfg) == 0 || len(cfg) > MaxSlots {
		return nil, fmt.Errorf("slot count %d outside 1..%d", len(cfg), MaxSlots)
	}
	l := &Lot{n: len(cfg)}
	for i, c := range cfg {
		l.slots[i] = Slot{ID: i, Name: c.Name, Address: c.Address}
	}
	return l, nil
}

func (l *Lot) Count() int {
	return l.n
}

func (l *Lot) Slot(id int) Slot {
	return l.slots[id]
}

// Set records a poll result and reports whether the slot changed.
func (l *Lot) Set(id int, occupied bool) bool {
	if l.slots[id].Occupied == occupied {
		return false
	}
	l.slots[id].Occupied = occupied
	return true
}

// Occupancy counts from the slot array every time; nothing is cached.
func (l *Lot) Occupancy() OccupancyView {
	v := OccupancyView{Total: l.n}
	for i := 0; i < l.n; i++ {
		if l.slots[i].Occupied {
			v.Occupied++
		}
	}
	return v
}

// FirstVacant returns the lowest-id vacant slot.
func (l *Lot) FirstVacant() (int, bool) {
	for i := 0; i < l.n; i++ {
		if !l.slots[i].Occupied {
			return i, true
		}
	}
	return -1, false
}

type OccupancyView struct {
	Occupied int
	Total    int
}

func (v OccupancyView) Available() int {
	return v.Total - v.Occupied
}

func (v OccupancyView) Full() bool {
	return v.Occupied == v.Total
}

// Symbol is the digit shown on the display: the number of vacant slots.
func (v OccupancyView) Symbol() uint8 {
	return uint8(v.Available())
}

type SlotStatus struct {
	Name      string `json:"name"`
	ID        int    `json:"id"`
	Address   uint8  `json:"address"`
	Occupied  bool   `json:"occupied"`
	Attention bool   `json:"attention"`
}

// Snapshot is an immutable copy of the lot handed to readers outside the loop.
type Snapshot struct {
	UpdatedAt time.Time    `json:"updated_at"`
	Slots     []SlotStatus `json:"slots"`
	Occupied  int          `json:"occupied"`
	Available int          `json:"available"`
	Total     int          `json:"total"`
	Blinking  bool         `json:"blinking"`
}

// Snapshot copies the lot. attention is the slot id under attention or -1.
func (l *Lot) Snapshot(attention int, blinking bool, now time.Time) *Snapshot {
	v := l.Occupancy()
	s := &Snapshot{
		UpdatedAt: now,
		Slots:     make([]SlotStatus, l.n),
		Occupied:  v.Occupied,
		Available: v.Available(),
		Total:     v.Total,
		Blinking:  blinking,
	}
	for i := 0; i < l.n; i++ {
		slot := l.slots[i]
		s.Slots[i] = SlotStatus{
			ID:        slot.ID,
			Name:      slot.Name,
			Address:   slot.Address,
			Occupied:  slot.Occupied,
			Attention: i == attention,
		}
	}
	return s
}
