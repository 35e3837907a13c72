// Package config loads per-binary settings from the environment. Defaults
// mirror the deployment the system was built for: one server, one bridge
// host, endpoints on a known port.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Server struct {
	GRPCAddr string `env:"SHELFSYNC_GRPC_ADDR" envDefault:":50051"`
	HTTPAddr string `env:"SHELFSYNC_HTTP_ADDR" envDefault:":8080"`
	MySQLDSN string `env:"SHELFSYNC_MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/shelfsync?parseTime=true"`
}

type Bridge struct {
	ServerAddr     string        `env:"SHELFSYNC_SERVER_ADDR" envDefault:"localhost:50051"`
	RedisAddr      string        `env:"SHELFSYNC_REDIS_ADDR" envDefault:"localhost:6379"`
	ScanTargets    []string      `env:"SHELFSYNC_SCAN_TARGETS" envSeparator:","`
	IdentityPrefix string        `env:"SHELFSYNC_IDENTITY_PREFIX" envDefault:"PaperS3-Inventory"`
	ScanInterval   time.Duration `env:"SHELFSYNC_SCAN_INTERVAL" envDefault:"5s"`
	PollInterval   time.Duration `env:"SHELFSYNC_POLL_INTERVAL" envDefault:"30s"`
	RestartBackoff time.Duration `env:"SHELFSYNC_RESTART_BACKOFF" envDefault:"5s"`
	DialTimeout    time.Duration `env:"SHELFSYNC_DIAL_TIMEOUT" envDefault:"20s"`
	LinkMTU        int           `env:"SHELFSYNC_LINK_MTU" envDefault:"0"`
}

type Endpoint struct {
	ListenAddr    string        `env:"SHELFSYNC_LISTEN_ADDR" envDefault:":9100"`
	Identity      string        `env:"SHELFSYNC_IDENTITY" envDefault:"PaperS3-Inventory-sim"`
	MAC           string        `env:"SHELFSYNC_MAC"`
	InventoryFile string        `env:"SHELFSYNC_INVENTORY_FILE" envDefault:"inventory.json"`
	Debounce      time.Duration `env:"SHELFSYNC_DEBOUNCE" envDefault:"10s"`
	CheckInterval time.Duration `env:"SHELFSYNC_CHECK_INTERVAL" envDefault:"10s"`
	// InactivityTimeout stops the agent after this long without local
	// edits; 0 keeps it running.
	InactivityTimeout time.Duration `env:"SHELFSYNC_INACTIVITY_TIMEOUT" envDefault:"0"`
	LinkMTU           int           `env:"SHELFSYNC_LINK_MTU" envDefault:"0"`
}

func LoadServer() (Server, error) {
	cfg, err := env.ParseAs[Server]()
	if err != nil {
		return Server{}, fmt.Errorf("load server config: %w", err)
	}
	return cfg, nil
}

func LoadBridge() (Bridge, error) {
	cfg, err := env.ParseAs[Bridge]()
	if err != nil {
		return Bridge{}, fmt.Errorf("load bridge config: %w", err)
	}
	return cfg, nil
}

func LoadEndpoint() (Endpoint, error) {
	cfg, err := env.ParseAs[Endpoint]()
	if err != nil {
		return Endpoint{}, fmt.Errorf("load endpoint config: %w", err)
	}
	return cfg, nil
}
