package tests

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/shelfsync/internal/adapter/handler"
	"github.com/rl1809/shelfsync/internal/adapter/recordstore"
	"github.com/rl1809/shelfsync/internal/adapter/rpc"
	"github.com/rl1809/shelfsync/internal/adapter/storage"
	"github.com/rl1809/shelfsync/internal/adapter/transport"
	"github.com/rl1809/shelfsync/internal/bridge"
	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/core/service"
	"github.com/rl1809/shelfsync/internal/endpoint"
)

// memRepo is an in-memory device repository so the end-to-end path runs
// without external services.
type memRepo struct {
	mu      sync.Mutex
	devices map[string]domain.Device
	slots   map[string][]domain.InventorySlot
}

func newMemRepo() *memRepo {
	return &memRepo{
		devices: make(map[string]domain.Device),
		slots:   make(map[string][]domain.InventorySlot),
	}
}

func (m *memRepo) GetDevice(_ context.Context, mac string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dev, ok := m.devices[mac]
	if !ok {
		return nil, nil
	}
	return &dev, nil
}

func (m *memRepo) ListDevices(_ context.Context) ([]domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Device, 0, len(m.devices))
	for _, dev := range m.devices {
		out = append(out, dev)
	}
	return out, nil
}

func (m *memRepo) CreateDevice(_ context.Context, dev domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[dev.MAC] = dev
	return nil
}

func (m *memRepo) MoveDevice(_ context.Context, mac string, to domain.Footprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.move(mac, to)
	return nil
}

func (m *memRepo) SwapDevices(_ context.Context, macA string, toA domain.Footprint, macB string, toB domain.Footprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.move(macA, toA)
	m.move(macB, toB)
	return nil
}

func (m *memRepo) move(mac string, to domain.Footprint) {
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

func (m *memRepo) SlotsByDevice(_ context.Context, mac string) ([]domain.InventorySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.InventorySlot, len(m.slots[mac]))
	copy(out, m.slots[mac])
	return out, nil
}

func (m *memRepo) CreateSlots(_ context.Context, mac string, slots []domain.InventorySlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[mac] = append(m.slots[mac], slots...)
	return nil
}

func (m *memRepo) GetSlot(_ context.Context, mac, label string) (*domain.InventorySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots[mac] {
		if s.Label == label {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetSlotByName(_ context.Context, mac, name string) (*domain.InventorySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots[mac] {
		if s.Name == name {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *memRepo) UpdateSlotCount(_ context.Context, mac, label string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots := m.slots[mac]
	for i := range slots {
		if slots[i].Label == label {
			slots[i].Count = count
			slots[i].UpdatedAt = time.Now()
			break
		}
	}
	return nil
}

func (m *memRepo) UpdateTelemetry(_ context.Context, mac string, battery int, seen time.Time) error {
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

// memCache keeps fingerprints in-process.
type memCache struct {
	mu sync.Mutex
	fp map[string]string
}

func newMemCache() *memCache { return &memCache{fp: make(map[string]string)} }

func (c *memCache) GetFingerprint(_ context.Context, mac string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fp[mac], nil
}

func (c *memCache) SetFingerprint(_ context.Context, mac, fingerprint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fp[mac] = fingerprint
	return nil
}

func (c *memCache) ClearFingerprint(_ context.Context, mac string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.fp, mac)
	return nil
}

func (c *memCache) MarkSeen(_ context.Context, _ string) error { return nil }

// TestIntegration_EndToEndSync exercises the whole chain in process:
// endpoint agent <-> pipe <-> bridge session <-> gRPC over bufconn <->
// record store service.
func TestIntegration_EndToEndSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemRepo()
	svc := service.NewInventoryService(repo, service.NewAllocator(repo), log)

	// Record store server on an in-memory listener.
	grpcServer := grpc.NewServer()
	rpc.RegisterRecordStoreServer(grpcServer, handler.NewGRPCHandler(svc))
	lis := bufconn.Listen(1 << 20)
	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	defer conn.Close()

	// Bridge session on one pipe end.
	bridgeEnd, deviceEnd := transport.NewPipe(183)
	dialer := transport.NewPipeDialer()
	dialer.Register("pipe:ep", bridgeEnd)
	sess := bridge.NewSession("pipe:ep", dialer, recordstore.NewGRPCClient(conn), newMemCache(), time.Hour, log)
	go sess.Run(ctx)

	// Endpoint agent on the other.
	mac := "aa:bb:cc:00:11:22"
	agent := endpoint.NewAgent(endpoint.Config{
		Identity:            "PaperS3-Inventory-e2e",
		MAC:                 mac,
		TickInterval:        2 * time.Millisecond,
		AckTimeout:          2 * time.Second,
		Debounce:            30 * time.Millisecond,
		ConfigCheckInterval: 150 * time.Millisecond,
	}, endpoint.NewStore(filepath.Join(t.TempDir(), "inventory.json")), log)
	go agent.RunConn(ctx, deviceEnd)

	// Registration provisions six placeholders and pushes them down.
	waitFor(t, 5*time.Second, func() bool {
		slots := agent.Slots()
		return len(slots) == 6 && slots[0].Label == "R1-E2-K1"
	}, "agent never received the provisioned inventory")

	// Local taps debounce into one update that lands in the record store.
	agent.Tap("R1-E2-K1", +1)
	agent.Tap("R1-E2-K1", +1)
	waitFor(t, 5*time.Second, func() bool {
		slot, err := repo.GetSlot(ctx, mac, "R1-E2-K1")
		return err == nil && slot != nil && slot.Count == 3
	}, "update never reached the record store")

	// A reposition on the server side relabels slots; the endpoint picks
	// the new labels up through its periodic config check.
	if _, err := svc.Reposition(ctx, mac, 4, 1, 2); err != nil {
		t.Fatalf("reposition: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		for _, s := range agent.Slots() {
			if strings.HasPrefix(s.Label, "R4-") {
				return true
			}
		}
		return false
	}, "endpoint never saw the relabeled inventory")

	// The moved count followed its slot.
	slot, err := repo.GetSlot(ctx, mac, "R4-E2-K2")
	if err != nil || slot == nil {
		t.Fatalf("relabeled slot missing: %v", err)
	}
	if slot.Count != 3 {
		t.Errorf("expected count 3 after relabel, got %d", slot.Count)
	}
}

// TestIntegration_LiveRecordFlow runs the service layer against real MySQL
// and Redis when they are reachable.
func TestIntegration_LiveRecordFlow(t *testing.T) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/shelfsync?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer rdb.Close()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS devices (
			mac VARCHAR(32) PRIMARY KEY,
			grid_row INT NOT NULL,
			bottom_level INT NOT NULL,
			left_box INT NOT NULL,
			height INT NOT NULL,
			width INT NOT NULL,
			battery INT NOT NULL DEFAULT 0,
			last_seen DATETIME NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			device_mac VARCHAR(32) NOT NULL,
			label VARCHAR(32) NOT NULL,
			name VARCHAR(255) NOT NULL,
			count INT NOT NULL,
			min_threshold INT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (device_mac, label)
		)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("schema setup failed: %v", err)
		}
	}

	cleanup := func(mac string) {
		db.ExecContext(ctx, `DELETE FROM slots WHERE device_mac = ?`, mac)
		db.ExecContext(ctx, `DELETE FROM devices WHERE mac = ?`, mac)
	}
	macA, macB := "itest-live-a", "itest-live-b"
	cleanup(macA)
	cleanup(macB)
	defer cleanup(macA)
	defer cleanup(macB)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := storage.NewMySQLAdapter(db)
	svc := service.NewInventoryService(repo, service.NewAllocator(repo), log)
	cache := storage.NewRedisAdapter(rdb)

	slotsA, err := svc.Register(ctx, macA)
	if err != nil {
		t.Fatalf("register A: %v", err)
	}
	if len(slotsA) != 6 {
		t.Fatalf("expected 6 provisioned slots, got %d", len(slotsA))
	}
	if _, err := svc.Register(ctx, macB); err != nil {
		t.Fatalf("register B: %v", err)
	}

	// The fingerprint changes exactly when the inventory does.
	fpBefore := service.Fingerprint(slotsA)
	if err := cache.SetFingerprint(ctx, macA, fpBefore); err != nil {
		t.Fatalf("cache fingerprint: %v", err)
	}
	defer cache.ClearFingerprint(ctx, macA)

	corrected, err := svc.ApplyUpdate(ctx, macA, domain.InventoryUpdate{
		Op: domain.OpInventoryUpdate, Label: slotsA[0].Label, Count: 9, Battery: 70,
	})
	if err != nil {
		t.Fatalf("apply update: %v", err)
	}
	if corrected != "" {
		t.Errorf("unexpected corrected label %q", corrected)
	}

	after, err := svc.Inventory(ctx, macA)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if service.Fingerprint(after) == fpBefore {
		t.Error("fingerprint unchanged after a count update")
	}

	// B occupies A's requested block exactly, so the move swaps.
	devA, _ := repo.GetDevice(ctx, macA)
	devB, _ := repo.GetDevice(ctx, macB)
	swapped, err := svc.Reposition(ctx, macA, devB.Footprint.Row, devB.Footprint.BottomLevel, devB.Footprint.LeftBox)
	if err != nil {
		t.Fatalf("reposition: %v", err)
	}
	if swapped != macB {
		t.Errorf("expected swap with %s, got %q", macB, swapped)
	}

	movedA, _ := repo.GetDevice(ctx, macA)
	movedB, _ := repo.GetDevice(ctx, macB)
	if movedA.Footprint != devB.Footprint || movedB.Footprint != devA.Footprint {
		t.Error("swap did not exchange footprints")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
