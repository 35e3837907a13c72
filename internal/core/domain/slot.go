package domain

import (
	"fmt"
	"time"
)

const (
	MinCount = 0
	MaxCount = 99
)

// InventorySlot is one tracked storage position. The label encodes the grid
// cell the slot lives in ("R2-E1-K4") and doubles as the slot identifier on
// the wire.
type InventorySlot struct {
	Label        string
	Name         string
	Count        int
	MinThreshold int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s InventorySlot) BelowThreshold() bool {
	return s.Count < s.MinThreshold
}

// ClampCount forces v into the displayable [MinCount, MaxCount] range.
func ClampCount(v int) int {
	if v < MinCount {
		return MinCount
	}
	if v > MaxCount {
		return MaxCount
	}
	return v
}

// FormatLabel renders the canonical location label for a grid cell.
func FormatLabel(row, level, box int) string {
	return fmt.Sprintf("R%d-E%d-K%d", row, level, box)
}

// ParseLabel is the inverse of FormatLabel.
func ParseLabel(label string) (row, level, box int, err error) {
	n, err := fmt.Sscanf(label, "R%d-E%d-K%d", &row, &level, &box)
	if err != nil || n != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrBadLabel, label)
	}
	return row, level, box, nil
}
