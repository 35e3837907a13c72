package domain

import (
	"fmt"
	"time"
)

// Grid bounds. Rows are shelf rows; each row is a levels-by-boxes surface.
const (
	MaxRows   = 6
	MaxLevels = 4
	MaxBoxes  = 6

	// RowUnassigned marks a device that could not be placed anywhere and
	// waits for manual positioning. Unassigned devices occupy no cells.
	RowUnassigned = 0
)

// Size is a device footprint layout as height x width in grid cells.
type Size struct {
	Height int
	Width  int
}

// AllowedSizes lists the touch-zone layouts the device firmware ships.
var AllowedSizes = map[Size]bool{
	{1, 1}: true,
	{2, 2}: true,
	{2, 3}: true,
	{2, 4}: true,
}

// Cell is one discrete grid position.
type Cell struct {
	Row   int
	Level int
	Box   int
}

// Footprint is the block of cells a device occupies. BottomLevel and LeftBox
// locate the block's bottom-left origin; the block extends Height levels up
// and Width boxes right. Row 0 means unassigned.
type Footprint struct {
	Row         int
	BottomLevel int
	LeftBox     int
	Height      int
	Width       int
}

func (f Footprint) Size() Size {
	return Size{Height: f.Height, Width: f.Width}
}

// Cells enumerates every grid cell the footprint covers. An unassigned
// footprint covers nothing.
func (f Footprint) Cells() []Cell {
	if f.Row == RowUnassigned {
		return nil
	}
	cells := make([]Cell, 0, f.Height*f.Width)
	for level := f.BottomLevel; level < f.BottomLevel+f.Height; level++ {
		for box := f.LeftBox; box < f.LeftBox+f.Width; box++ {
			cells = append(cells, Cell{Row: f.Row, Level: level, Box: box})
		}
	}
	return cells
}

// ProvisionCells enumerates the footprint's cells in the order placeholder
// slots are assigned at registration: top level first, left to right, then
// the next level down.
func (f Footprint) ProvisionCells() []Cell {
	if f.Row == RowUnassigned {
		return nil
	}
	cells := make([]Cell, 0, f.Height*f.Width)
	for level := f.BottomLevel + f.Height - 1; level >= f.BottomLevel; level-- {
		for box := f.LeftBox; box < f.LeftBox+f.Width; box++ {
			cells = append(cells, Cell{Row: f.Row, Level: level, Box: box})
		}
	}
	return cells
}

// ProvisionLabels returns the location labels for the footprint's cells in
// provisioning order. Unassigned footprints get synthetic temp labels until
// the device is placed manually.
func (f Footprint) ProvisionLabels() []string {
	if f.Row == RowUnassigned {
		labels := make([]string, f.Height*f.Width)
		for i := range labels {
			labels[i] = fmt.Sprintf("temp_%d", i+1)
		}
		return labels
	}
	cells := f.ProvisionCells()
	labels := make([]string, len(cells))
	for i, cell := range cells {
		labels[i] = FormatLabel(cell.Row, cell.Level, cell.Box)
	}
	return labels
}

// Overlaps reports whether two footprints claim any common cell.
func (f Footprint) Overlaps(other Footprint) bool {
	if f.Row == RowUnassigned || other.Row == RowUnassigned || f.Row != other.Row {
		return false
	}
	if f.BottomLevel+f.Height <= other.BottomLevel || other.BottomLevel+other.Height <= f.BottomLevel {
		return false
	}
	if f.LeftBox+f.Width <= other.LeftBox || other.LeftBox+other.Width <= f.LeftBox {
		return false
	}
	return true
}

// InBounds reports whether the whole block lies inside the grid.
func (f Footprint) InBounds() bool {
	if f.Row == RowUnassigned {
		return true
	}
	return f.Row >= 1 && f.Row <= MaxRows &&
		f.BottomLevel >= 1 && f.BottomLevel+f.Height-1 <= MaxLevels &&
		f.LeftBox >= 1 && f.LeftBox+f.Width-1 <= MaxBoxes
}

// Device is one registered endpoint and its grid placement.
type Device struct {
	MAC       string
	Footprint Footprint
	Battery   int
	LastSeen  time.Time
	CreatedAt time.Time
}
