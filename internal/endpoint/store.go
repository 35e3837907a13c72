// Package endpoint implements the device side of the link: a local slot
// store, a debounced pending-edit queue, and the session state machine
// driven on a fixed tick.
package endpoint

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rl1809/shelfsync/internal/core/domain"
)

// Store holds the endpoint's local inventory, persisted as a JSON file so
// counts survive a power cycle. Counts mutate optimistically; the next
// config sync reconciles any divergence from the record store.
type Store struct {
	path  string
	slots []domain.SlotConfig
}

func NewStore(path string) *Store {
	s := &Store{path: path}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var slots []domain.SlotConfig
	if err := json.Unmarshal(data, &slots); err != nil {
		return
	}
	s.slots = slots
}

func (s *Store) Persist() error {
	data, err := json.Marshal(s.slots)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("persist inventory: %w", err)
	}
	return nil
}

func (s *Store) All() []domain.SlotConfig {
	out := make([]domain.SlotConfig, len(s.slots))
	copy(out, s.slots)
	return out
}

func (s *Store) Get(label string) (domain.SlotConfig, bool) {
	for _, slot := range s.slots {
		if slot.Label == label {
			return slot, true
		}
	}
	return domain.SlotConfig{}, false
}

// Adjust applies a clamped delta to a slot's count and returns the new
// value.
func (s *Store) Adjust(label string, delta int) (int, bool) {
	for i := range s.slots {
		if s.slots[i].Label == label {
			s.slots[i].Count = domain.ClampCount(s.slots[i].Count + delta)
			return s.slots[i].Count, true
		}
	}
	return 0, false
}

// Relabel renames one slot after the counterpart corrected its identifier.
func (s *Store) Relabel(old, new string) {
	if old == new {
		return
	}
	for i := range s.slots {
		if s.slots[i].Label == old {
			s.slots[i].Label = new
			return
		}
	}
}

// Replace swaps in a full inventory from a config push. Application is
// wholesale, never a diff.
func (s *Store) Replace(data []domain.SlotConfig) {
	s.slots = make([]domain.SlotConfig, len(data))
	copy(s.slots, data)
}

func (s *Store) Len() int { return len(s.slots) }
