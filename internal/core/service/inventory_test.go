package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/shelfsync/internal/core/domain"
)

func newTestInventory(t *testing.T) (*InventoryService, *mockDeviceRepo) {
	t.Helper()
	repo := newMockDeviceRepo()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewInventoryService(repo, NewAllocator(repo), log), repo
}

func TestRegisterProvisionsPlaceholders(t *testing.T) {
	svc, _ := newTestInventory(t)

	slots, err := svc.Register(context.Background(), "aa:01")
	require.NoError(t, err)
	require.Len(t, slots, 6)

	// 2x3 block at row 1, levels 1-2, boxes 1-3: top level first.
	wantLabels := []string{
		"R1-E2-K1", "R1-E2-K2", "R1-E2-K3",
		"R1-E1-K1", "R1-E1-K2", "R1-E1-K3",
	}
	for i, s := range slots {
		assert.Equal(t, wantLabels[i], s.Label)
		assert.Equal(t, 1, s.Count)
		assert.Equal(t, 1, s.MinThreshold)
	}
	assert.Equal(t, "Placeholder 1", slots[0].Name)
	assert.Equal(t, "Placeholder 6", slots[5].Name)
}

func TestRegisterIdempotent(t *testing.T) {
	svc, repo := newTestInventory(t)

	first, err := svc.Register(context.Background(), "aa:01")
	require.NoError(t, err)

	// Mutate one slot, then re-register: the stored state must come back.
	require.NoError(t, repo.UpdateSlotCount(context.Background(), "aa:01", first[0].Label, 42))

	second, err := svc.Register(context.Background(), "aa:01")
	require.NoError(t, err)
	require.Len(t, second, 6)
	assert.Equal(t, 42, second[0].Count)

	devices, err := repo.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestApplyUpdateByLabel(t *testing.T) {
	svc, repo := newTestInventory(t)
	_, err := svc.Register(context.Background(), "aa:01")
	require.NoError(t, err)

	corrected, err := svc.ApplyUpdate(context.Background(), "aa:01", domain.InventoryUpdate{
		Op: domain.OpInventoryUpdate, Label: "R1-E2-K1", Name: "Placeholder 1", Count: 7, Battery: 88,
	})
	require.NoError(t, err)
	assert.Empty(t, corrected)

	slot, err := repo.GetSlot(context.Background(), "aa:01", "R1-E2-K1")
	require.NoError(t, err)
	assert.Equal(t, 7, slot.Count)

	dev, err := repo.GetDevice(context.Background(), "aa:01")
	require.NoError(t, err)
	assert.Equal(t, 88, dev.Battery)
	assert.False(t, dev.LastSeen.IsZero())
}

func TestApplyUpdateStaleLabelResolvedByName(t *testing.T) {
	svc, _ := newTestInventory(t)
	_, err := svc.Register(context.Background(), "aa:01")
	require.NoError(t, err)

	// The endpoint reports a label from before the device was moved; the
	// name still identifies the slot.
	corrected, err := svc.ApplyUpdate(context.Background(), "aa:01", domain.InventoryUpdate{
		Op: domain.OpInventoryUpdate, Label: "R9-E9-K9", Name: "Placeholder 3", Count: 2, Battery: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "R1-E2-K3", corrected)
}

func TestApplyUpdateUnknownSlot(t *testing.T) {
	svc, _ := newTestInventory(t)
	_, err := svc.Register(context.Background(), "aa:01")
	require.NoError(t, err)

	_, err = svc.ApplyUpdate(context.Background(), "aa:01", domain.InventoryUpdate{
		Op: domain.OpInventoryUpdate, Label: "R9-E9-K9", Name: "No Such Item", Count: 2, Battery: 50,
	})
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)
}

func TestApplyUpdateValidation(t *testing.T) {
	svc, repo := newTestInventory(t)
	_, err := svc.Register(context.Background(), "aa:01")
	require.NoError(t, err)

	_, err = svc.ApplyUpdate(context.Background(), "aa:01", domain.InventoryUpdate{
		Op: domain.OpInventoryUpdate, Label: "R1-E2-K1", Count: 100, Battery: 50,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCount)

	_, err = svc.ApplyUpdate(context.Background(), "aa:01", domain.InventoryUpdate{
		Op: domain.OpInventoryUpdate, Label: "R1-E2-K1", Count: -1, Battery: 50,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCount)

	_, err = svc.ApplyUpdate(context.Background(), "aa:01", domain.InventoryUpdate{
		Op: domain.OpInventoryUpdate, Label: "R1-E2-K1", Count: 5, Battery: 101,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBattery)

	// Rejected updates leave the slot untouched.
	slot, err := repo.GetSlot(context.Background(), "aa:01", "R1-E2-K1")
	require.NoError(t, err)
	assert.Equal(t, 1, slot.Count)
}

func TestInventoryUnknownDevice(t *testing.T) {
	svc, _ := newTestInventory(t)
	_, err := svc.Inventory(context.Background(), "no:pe")
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}

func TestRepositionRelabelsSlots(t *testing.T) {
	svc, _ := newTestInventory(t)
	_, err := svc.Register(context.Background(), "aa:01")
	require.NoError(t, err)

	swapped, err := svc.Reposition(context.Background(), "aa:01", 4, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, swapped)

	slots, err := svc.Inventory(context.Background(), "aa:01")
	require.NoError(t, err)
	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = s.Label
	}
	assert.ElementsMatch(t, []string{
		"R4-E2-K2", "R4-E2-K3", "R4-E2-K4",
		"R4-E1-K2", "R4-E1-K3", "R4-E1-K4",
	}, labels)
}
