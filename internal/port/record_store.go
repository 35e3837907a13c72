package port

import (
	"context"

	"github.com/rl1809/shelfsync/internal/core/domain"
)

// UpdateResult is the record store's verdict on one inventory update.
type UpdateResult struct {
	Ack            bool
	CorrectedLabel string
	Error          string
}

// RecordStore is what the bridge sees of the central record store.
type RecordStore interface {
	// Register announces an endpoint and returns its full slot list,
	// provisioning placeholders if the MAC is new.
	Register(ctx context.Context, mac string) ([]domain.SlotConfig, error)

	// Update forwards one inventory update. A rejection is reported in
	// the result, not as an error; errors are transport-level only.
	Update(ctx context.Context, mac string, upd domain.InventoryUpdate) (UpdateResult, error)

	// Inventory returns the endpoint's current slot list for config
	// fingerprint comparison.
	Inventory(ctx context.Context, mac string) ([]domain.SlotConfig, error)
}
