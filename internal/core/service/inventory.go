package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/port"
)

// DefaultSize is the footprint newly registered endpoints receive. It
// matches the six-tile layout the device firmware renders.
var DefaultSize = domain.Size{Height: 2, Width: 3}

const (
	maxBattery      = 100
	placeholderName = "Placeholder %d"
)

// InventoryService owns registration, update validation and the slot data
// the config sync engine fingerprints.
type InventoryService struct {
	repo  port.DeviceRepository
	alloc *Allocator
	log   *slog.Logger
}

func NewInventoryService(repo port.DeviceRepository, alloc *Allocator, log *slog.Logger) *InventoryService {
	return &InventoryService{repo: repo, alloc: alloc, log: log}
}

// Register returns the slot list for a MAC, allocating a grid footprint and
// provisioning placeholder slots when the MAC is new. Re-registration of a
// known device returns its current slots unchanged.
func (s *InventoryService) Register(ctx context.Context, mac string) ([]domain.SlotConfig, error) {
	dev, err := s.repo.GetDevice(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	if dev != nil {
		return s.Inventory(ctx, mac)
	}

	now := time.Now()
	fp, err := s.alloc.Register(ctx, domain.Device{MAC: mac, CreatedAt: now}, DefaultSize)
	if err != nil {
		return nil, err
	}
	if fp.Row == domain.RowUnassigned {
		s.log.Warn("grid full, device left unassigned", "mac", mac)
	} else {
		s.log.Info("device placed",
			"mac", mac, "row", fp.Row, "level", fp.BottomLevel, "box", fp.LeftBox)
	}

	slots := placeholderSlots(fp, now)
	if err := s.repo.CreateSlots(ctx, mac, slots); err != nil {
		return nil, fmt.Errorf("provision slots: %w", err)
	}
	return slotConfigs(slots), nil
}

// ApplyUpdate validates and persists one inventory update. When the label
// is stale but the name still matches one of the device's slots, the update
// lands on that slot and its current label is returned so the endpoint can
// fix itself. Nothing is mutated on a validation failure.
func (s *InventoryService) ApplyUpdate(ctx context.Context, mac string, upd domain.InventoryUpdate) (correctedLabel string, err error) {
	if upd.Count < domain.MinCount || upd.Count > domain.MaxCount {
		return "", fmt.Errorf("%w: %d", domain.ErrInvalidCount, upd.Count)
	}
	if upd.Battery < 0 || upd.Battery > maxBattery {
		return "", fmt.Errorf("%w: %d", domain.ErrInvalidBattery, upd.Battery)
	}

	slot, err := s.repo.GetSlot(ctx, mac, upd.Label)
	if err != nil {
		return "", fmt.Errorf("get slot: %w", err)
	}
	if slot == nil && upd.Name != "" {
		slot, err = s.repo.GetSlotByName(ctx, mac, upd.Name)
		if err != nil {
			return "", fmt.Errorf("get slot by name: %w", err)
		}
		if slot != nil {
			correctedLabel = slot.Label
			s.log.Info("resolved stale label",
				"mac", mac, "reported", upd.Label, "corrected", slot.Label)
		}
	}
	if slot == nil {
		return "", domain.ErrSlotNotFound
	}

	if err := s.repo.UpdateSlotCount(ctx, mac, slot.Label, upd.Count); err != nil {
		return "", fmt.Errorf("update slot: %w", err)
	}
	if err := s.repo.UpdateTelemetry(ctx, mac, upd.Battery, time.Now()); err != nil {
		return "", fmt.Errorf("update telemetry: %w", err)
	}
	if upd.Count < slot.MinThreshold {
		s.log.Warn("slot below threshold",
			"mac", mac, "label", slot.Label, "count", upd.Count, "min", slot.MinThreshold)
	}
	return correctedLabel, nil
}

// Inventory returns a device's slots in config-push form.
func (s *InventoryService) Inventory(ctx context.Context, mac string) ([]domain.SlotConfig, error) {
	dev, err := s.repo.GetDevice(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	if dev == nil {
		return nil, domain.ErrDeviceNotFound
	}
	slots, err := s.repo.SlotsByDevice(ctx, mac)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slotConfigs(slots), nil
}

// Reposition moves a device to the requested origin, resolving a true
// two-way swap when possible.
func (s *InventoryService) Reposition(ctx context.Context, mac string, row, bottomLevel, leftBox int) (swappedWith string, err error) {
	return s.alloc.Reposition(ctx, mac, row, bottomLevel, leftBox)
}

// placeholderSlots builds one placeholder per footprint cell, assigned in
// top-level-left-to-right-then-down order.
func placeholderSlots(fp domain.Footprint, now time.Time) []domain.InventorySlot {
	labels := fp.ProvisionLabels()
	slots := make([]domain.InventorySlot, len(labels))
	for i, label := range labels {
		slots[i] = domain.InventorySlot{
			Label:        label,
			Name:         fmt.Sprintf(placeholderName, i+1),
			Count:        1,
			MinThreshold: 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	return slots
}

func slotConfigs(slots []domain.InventorySlot) []domain.SlotConfig {
	configs := make([]domain.SlotConfig, len(slots))
	for i, s := range slots {
		configs[i] = domain.SlotConfig{
			Label:        s.Label,
			Name:         s.Name,
			Count:        s.Count,
			MinThreshold: s.MinThreshold,
		}
	}
	return configs
}
