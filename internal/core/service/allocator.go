package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/port"
)

// Allocator places device footprints in the storage grid and resolves
// reposition conflicts. All mutations run under one mutex so two concurrent
// registrations can never claim overlapping cells.
type Allocator struct {
	mu   sync.Mutex
	repo port.DeviceRepository
}

func NewAllocator(repo port.DeviceRepository) *Allocator {
	return &Allocator{repo: repo}
}

// Register assigns the first free origin for a footprint of the given size
// and persists the device. Scan order is fixed: rows ascending, then bottom
// level ascending, then left box ascending. A full grid yields row 0.
func (a *Allocator) Register(ctx context.Context, dev domain.Device, size domain.Size) (domain.Footprint, error) {
	if !domain.AllowedSizes[size] {
		return domain.Footprint{}, fmt.Errorf("%w: %dx%d", domain.ErrInvalidPlacement, size.Height, size.Width)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	existing, err := a.repo.ListDevices(ctx)
	if err != nil {
		return domain.Footprint{}, fmt.Errorf("list devices: %w", err)
	}

	fp := firstFit(existing, size)
	dev.Footprint = fp
	if err := a.repo.CreateDevice(ctx, dev); err != nil {
		return domain.Footprint{}, fmt.Errorf("create device: %w", err)
	}
	return fp, nil
}

// Reposition moves a device to the requested origin. If the target block is
// free the move is applied atomically. If the target is exactly one other
// device's block, the two devices swap atomically and the swapped device's
// MAC is returned. Any other overlap is
// rejected with a ConflictError and nothing changes.
func (a *Allocator) Reposition(ctx context.Context, mac string, row, bottomLevel, leftBox int) (swappedWith string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	devices, err := a.repo.ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}

	var mover *domain.Device
	for i := range devices {
		if devices[i].MAC == mac {
			mover = &devices[i]
			break
		}
	}
	if mover == nil {
		return "", domain.ErrDeviceNotFound
	}

	target := domain.Footprint{
		Row:         row,
		BottomLevel: bottomLevel,
		LeftBox:     leftBox,
		Height:      mover.Footprint.Height,
		Width:       mover.Footprint.Width,
	}
	if target.Row == domain.RowUnassigned || !target.InBounds() {
		return "", fmt.Errorf("%w: R%d E%d K%d", domain.ErrInvalidPlacement, row, bottomLevel, leftBox)
	}

	var blockers []domain.Device
	for _, other := range devices {
		if other.MAC == mac {
			continue
		}
		if target.Overlaps(other.Footprint) {
			blockers = append(blockers, other)
		}
	}

	switch {
	case len(blockers) == 0:
		if err := a.repo.MoveDevice(ctx, mac, target); err != nil {
			return "", fmt.Errorf("move device: %w", err)
		}
		return "", nil

	case len(blockers) == 1 && blockers[0].Footprint == target:
		// True two-way swap: the target is exactly the obstructor's
		// block, so the obstructor takes the mover's original block and
		// both positions exchange atomically.
		other := blockers[0]
		if err := a.repo.SwapDevices(ctx, mac, target, other.MAC, mover.Footprint); err != nil {
			return "", fmt.Errorf("swap devices: %w", err)
		}
		return other.MAC, nil

	default:
		return "", &domain.ConflictError{BlockingMAC: blockers[0].MAC}
	}
}

// firstFit scans the grid in the fixed order and returns the first origin
// whose full block is free, or an unassigned footprint when no row has room.
func firstFit(existing []domain.Device, size domain.Size) domain.Footprint {
	for row := 1; row <= domain.MaxRows; row++ {
		for level := 1; level+size.Height-1 <= domain.MaxLevels; level++ {
			for box := 1; box+size.Width-1 <= domain.MaxBoxes; box++ {
				candidate := domain.Footprint{
					Row:         row,
					BottomLevel: level,
					LeftBox:     box,
					Height:      size.Height,
					Width:       size.Width,
				}
				if !overlapsAny(candidate, existing) {
					return candidate
				}
			}
		}
	}
	return domain.Footprint{Row: domain.RowUnassigned, Height: size.Height, Width: size.Width}
}

func overlapsAny(fp domain.Footprint, devices []domain.Device) bool {
	for _, dev := range devices {
		if fp.Overlaps(dev.Footprint) {
			return true
		}
	}
	return false
}
