package port

import (
	"context"
	"time"

	"github.com/rl1809/shelfsync/internal/core/domain"
)

type DeviceRepository interface {
	// GetDevice returns the device for a MAC, or nil if unknown.
	GetDevice(ctx context.Context, mac string) (*domain.Device, error)

	// ListDevices returns every registered device.
	ListDevices(ctx context.Context) ([]domain.Device, error)

	// CreateDevice persists a newly registered device and its footprint.
	CreateDevice(ctx context.Context, dev domain.Device) error

	// MoveDevice rewrites a device's footprint and relabels its slots to
	// the new cells in a single transaction.
	MoveDevice(ctx context.Context, mac string, to domain.Footprint) error

	// SwapDevices exchanges two devices' footprints atomically, relabeling
	// both slot sets in the same transaction.
	SwapDevices(ctx context.Context, macA string, toA domain.Footprint, macB string, toB domain.Footprint) error

	// SlotsByDevice returns a device's slots ordered by label.
	SlotsByDevice(ctx context.Context, mac string) ([]domain.InventorySlot, error)

	// CreateSlots bulk-inserts the placeholder slots provisioned at
	// registration.
	CreateSlots(ctx context.Context, mac string, slots []domain.InventorySlot) error

	// GetSlot returns one slot by label, or nil if the device has no slot
	// with that label.
	GetSlot(ctx context.Context, mac, label string) (*domain.InventorySlot, error)

	// GetSlotByName returns one slot by display name, or nil. Used to
	// resolve updates that arrive under a stale label.
	GetSlotByName(ctx context.Context, mac, name string) (*domain.InventorySlot, error)

	// UpdateSlotCount sets a slot's count.
	UpdateSlotCount(ctx context.Context, mac, label string, count int) error

	// UpdateTelemetry records battery level and last-seen time for a device.
	UpdateTelemetry(ctx context.Context, mac string, battery int, seen time.Time) error
}
