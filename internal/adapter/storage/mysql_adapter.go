package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/shelfsync/internal/core/domain"
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetDevice(ctx context.Context, mac string) (*domain.Device, error) {
	var (
		dev      domain.Device
		lastSeen sql.NullTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT mac, grid_row, bottom_level, left_box, height, width, battery, last_seen, created_at
		FROM devices WHERE mac = ?`, mac,
	).Scan(&dev.MAC, &dev.Footprint.Row, &dev.Footprint.BottomLevel,
		&dev.Footprint.LeftBox, &dev.Footprint.Height, &dev.Footprint.Width,
		&dev.Battery, &lastSeen, &dev.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query device: %w", err)
	}
	if lastSeen.Valid {
		dev.LastSeen = lastSeen.Time
	}
	return &dev, nil
}

func (m *MySQLAdapter) ListDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT mac, grid_row, bottom_level, left_box, height, width, battery, last_seen, created_at
		FROM devices ORDER BY mac`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		var (
			dev      domain.Device
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&dev.MAC, &dev.Footprint.Row, &dev.Footprint.BottomLevel,
			&dev.Footprint.LeftBox, &dev.Footprint.Height, &dev.Footprint.Width,
			&dev.Battery, &lastSeen, &dev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		if lastSeen.Valid {
			dev.LastSeen = lastSeen.Time
		}
		devices = append(devices, dev)
	}
	return devices, rows.Err()
}

func (m *MySQLAdapter) CreateDevice(ctx context.Context, dev domain.Device) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO devices (mac, grid_row, bottom_level, left_box, height, width, battery, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dev.MAC, dev.Footprint.Row, dev.Footprint.BottomLevel, dev.Footprint.LeftBox,
		dev.Footprint.Height, dev.Footprint.Width, dev.Battery, dev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) MoveDevice(ctx context.Context, mac string, to domain.Footprint) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := moveDeviceTx(ctx, tx, mac, to); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) SwapDevices(ctx context.Context, macA string, toA domain.Footprint, macB string, toB domain.Footprint) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := moveDeviceTx(ctx, tx, macA, toA); err != nil {
		return err
	}
	if err := moveDeviceTx(ctx, tx, macB, toB); err != nil {
		return err
	}
	return tx.Commit()
}

// moveDeviceTx rewrites one device's footprint and relabels its slots to the
// new cells. Relabeling goes through a temporary prefix so the (mac, label)
// unique key never collides when the old and new footprints overlap.
func moveDeviceTx(ctx context.Context, tx *sql.Tx, mac string, to domain.Footprint) error {
	var from domain.Footprint
	err := tx.QueryRowContext(ctx, `
		SELECT grid_row, bottom_level, left_box, height, width
		FROM devices WHERE mac = ? FOR UPDATE`, mac,
	).Scan(&from.Row, &from.BottomLevel, &from.LeftBox, &from.Height, &from.Width)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDeviceNotFound
	}
	if err != nil {
		return fmt.Errorf("lock device: %w", err)
	}

	// Affected-row counts are unreliable for no-op moves, so existence is
	// established by the FOR UPDATE select above, not checked here.
	if _, err := tx.ExecContext(ctx, `
		UPDATE devices
		SET grid_row = ?, bottom_level = ?, left_box = ?
		WHERE mac = ?`,
		to.Row, to.BottomLevel, to.LeftBox, mac,
	); err != nil {
		return fmt.Errorf("update footprint: %w", err)
	}

	oldLabels := from.ProvisionLabels()
	newLabels := to.ProvisionLabels()
	if len(oldLabels) != len(newLabels) {
		return fmt.Errorf("footprint size changed during move: %d -> %d cells",
			len(oldLabels), len(newLabels))
	}

	for i, old := range oldLabels {
		if _, err := tx.ExecContext(ctx, `
			UPDATE slots SET label = CONCAT('mv:', ?) WHERE device_mac = ? AND label = ?`,
			newLabels[i], mac, old,
		); err != nil {
			return fmt.Errorf("stage slot label: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE slots SET label = SUBSTRING(label, 4), updated_at = NOW()
		WHERE device_mac = ? AND label LIKE 'mv:%'`, mac,
	); err != nil {
		return fmt.Errorf("commit slot labels: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) SlotsByDevice(ctx context.Context, mac string) ([]domain.InventorySlot, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT label, name, count, min_threshold, created_at, updated_at
		FROM slots WHERE device_mac = ? ORDER BY label`, mac)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var slots []domain.InventorySlot
	for rows.Next() {
		var s domain.InventorySlot
		if err := rows.Scan(&s.Label, &s.Name, &s.Count, &s.MinThreshold,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (m *MySQLAdapter) CreateSlots(ctx context.Context, mac string, slots []domain.InventorySlot) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, s := range slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO slots (device_mac, label, name, count, min_threshold, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			mac, s.Label, s.Name, s.Count, s.MinThreshold, s.CreatedAt, s.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert slot %s: %w", s.Label, err)
		}
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetSlot(ctx context.Context, mac, label string) (*domain.InventorySlot, error) {
	return m.querySlot(ctx, `
		SELECT label, name, count, min_threshold, created_at, updated_at
		FROM slots WHERE device_mac = ? AND label = ?`, mac, label)
}

func (m *MySQLAdapter) GetSlotByName(ctx context.Context, mac, name string) (*domain.InventorySlot, error) {
	return m.querySlot(ctx, `
		SELECT label, name, count, min_threshold, created_at, updated_at
		FROM slots WHERE device_mac = ? AND name = ? LIMIT 1`, mac, name)
}

func (m *MySQLAdapter) querySlot(ctx context.Context, query string, args ...any) (*domain.InventorySlot, error) {
	var s domain.InventorySlot
	err := m.db.QueryRowContext(ctx, query, args...).Scan(
		&s.Label, &s.Name, &s.Count, &s.MinThreshold, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query slot: %w", err)
	}
	return &s, nil
}

func (m *MySQLAdapter) UpdateSlotCount(ctx context.Context, mac, label string, count int) error {
	if _, err := m.db.ExecContext(ctx, `
		UPDATE slots SET count = ?, updated_at = NOW()
		WHERE device_mac = ? AND label = ?`,
		count, mac, label,
	); err != nil {
		return fmt.Errorf("update slot count: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateTelemetry(ctx context.Context, mac string, battery int, seen time.Time) error {
	if _, err := m.db.ExecContext(ctx, `
		UPDATE devices SET battery = ?, last_seen = ? WHERE mac = ?`,
		battery, seen, mac,
	); err != nil {
		return fmt.Errorf("update telemetry: %w", err)
	}
	return nil
}
