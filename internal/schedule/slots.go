// Package schedule computes the next available publish slot for an
// account's chain of scheduled posts. Slots are a fixed daily set of times
// in one canonical timezone; callers convert at the boundary.
package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Slot is one daily publish time.
type Slot struct {
	Hour   int
	Minute int
}

func (s Slot) before(other Slot) bool {
	if s.Hour != other.Hour {
		return s.Hour < other.Hour
	}
	return s.Minute < other.Minute
}

// SlotTable holds the ordered daily slot set and its canonical timezone.
type SlotTable struct {
	loc   *time.Location
	slots []Slot
}

// NewSlotTable builds a table from "15:04" style entries. The input order
// does not matter, the table sorts defensively.
func NewSlotTable(timezone string, times []string) (*SlotTable, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("slot table needs at least one slot")
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid slot timezone %q: %w", timezone, err)
	}

	slots := make([]Slot, 0, len(times))
	for _, raw := range times {
		t, err := time.Parse("15:04", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid slot time %q: %w", raw, err)
		}
		slots = append(slots, Slot{Hour: t.Hour(), Minute: t.Minute()})
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].before(slots[j]) })

	return &SlotTable{loc: loc, slots: slots}, nil
}

// Location returns the canonical timezone of the table.
func (t *SlotTable) Location() *time.Location { return t.loc }

// Next returns the next available slot for a chain.
//
// With no chain tail it is the earliest slot strictly after now, falling
// over to the first slot of the next day. With a tail it is the earliest
// slot strictly after the tail, so the chain only ever advances: two posts
// never share a slot and the chain never moves backward even when now has
// overtaken the tail. A reference instant landing exactly on a slot counts
// as already passed.
func (t *SlotTable) Next(chainTail *time.Time, now time.Time) time.Time {
	ref := now
	if chainTail != nil {
		ref = *chainTail
	}
	ref = ref.In(t.loc)

	for _, s := range t.slots {
		candidate := time.Date(ref.Year(), ref.Month(), ref.Day(), s.Hour, s.Minute, 0, 0, t.loc)
		if candidate.After(ref) {
			return candidate
		}
	}

	first := t.slots[0]
	next := ref.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), first.Hour, first.Minute, 0, 0, t.loc)
}
