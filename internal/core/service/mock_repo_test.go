package service

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/shelfsync/internal/core/domain"
)

// mockDeviceRepo is an in-memory DeviceRepository for service tests.
type mockDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]domain.Device
	slots   map[string][]domain.InventorySlot
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{
		devices: make(map[string]domain.Device),
		slots:   make(map[string][]domain.InventorySlot),
	}
}

func (m *mockDeviceRepo) GetDevice(_ context.Context, mac string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[mac]
	if !ok {
		return nil, nil
	}
	return &dev, nil
}

func (m *mockDeviceRepo) ListDevices(_ context.Context) ([]domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Device, 0, len(m.devices))
	for _, dev := range m.devices {
		out = append(out, dev)
	}
	return out, nil
}

func (m *mockDeviceRepo) CreateDevice(_ context.Context, dev domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[dev.MAC] = dev
	return nil
}

func (m *mockDeviceRepo) MoveDevice(_ context.Context, mac string, to domain.Footprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.move(mac, to)
	return nil
}

func (m *mockDeviceRepo) SwapDevices(_ context.Context, macA string, toA domain.Footprint, macB string, toB domain.Footprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.move(macA, toA)
	m.move(macB, toB)
	return nil
}

// move rewrites the footprint and relabels slots cell-for-cell, mirroring
// what the MySQL adapter does transactionally.
func (m *mockDeviceRepo) move(mac string, to domain.Footprint) {
	dev, ok := m.devices[mac]
	if !ok {
		return
	}
	oldLabels := dev.Footprint.ProvisionLabels()
	newLabels := to.ProvisionLabels()
	relabel := make(map[string]string, len(oldLabels))
	for i := range oldLabels {
		relabel[oldLabels[i]] = newLabels[i]
	}
	slots := m.slots[mac]
	for i := range slots {
		if next, ok := relabel[slots[i].Label]; ok {
			slots[i].Label = next
		}
	}
	dev.Footprint = to
	m.devices[mac] = dev
}

func (m *mockDeviceRepo) SlotsByDevice(_ context.Context, mac string) ([]domain.InventorySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.InventorySlot, len(m.slots[mac]))
	copy(out, m.slots[mac])
	return out, nil
}

func (m *mockDeviceRepo) CreateSlots(_ context.Context, mac string, slots []domain.InventorySlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[mac] = append(m.slots[mac], slots...)
	return nil
}

func (m *mockDeviceRepo) GetSlot(_ context.Context, mac, label string) (*domain.InventorySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots[mac] {
		if s.Label == label {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *mockDeviceRepo) GetSlotByName(_ context.Context, mac, name string) (*domain.InventorySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots[mac] {
		if s.Name == name {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *mockDeviceRepo) UpdateSlotCount(_ context.Context, mac, label string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots := m.slots[mac]
	for i := range slots {
		if slots[i].Label == label {
			slots[i].Count = count
			slots[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (m *mockDeviceRepo) UpdateTelemetry(_ context.Context, mac string, battery int, seen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[mac]
	if !ok {
		return nil
	}
	dev.Battery = battery
	dev.LastSeen = seen
	m.devices[mac] = dev
	return nil
}
