// Package transport owns the pooled HTTP connections and the short-TTL
// metadata cache shared by all protocol clients.
package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/odata-gateway/go/internal/constants"
)

// PoolConfig bounds the shared connection pool.
type PoolConfig struct {
	Timeout         time.Duration
	MaxConnections  int
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// DefaultPoolConfig returns the default transport limits.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Timeout:         constants.DefaultTimeout * time.Second,
		MaxConnections:  constants.DefaultMaxConnections,
		MaxIdleConns:    constants.DefaultMaxIdleConns,
		IdleConnTimeout: constants.DefaultIdleConnTimeout * time.Second,
	}
}

// Manager owns the process-wide HTTP client. Construct once at startup,
// share across concurrent calls, Close on shutdown.
type Manager struct {
	cfg    PoolConfig
	once   sync.Once
	client *http.Client
}

// NewManager creates a connection manager. The underlying client is built
// lazily on first use.
func NewManager(cfg PoolConfig) *Manager {
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultTimeout * time.Second
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = constants.DefaultMaxConnections
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = constants.DefaultMaxIdleConns
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = constants.DefaultIdleConnTimeout * time.Second
	}
	return &Manager{cfg: cfg}
}

// Client returns the shared pooled HTTP client, constructing it on first
// call. Safe for concurrent use.
func (m *Manager) Client() *http.Client {
	m.once.Do(func() {
		m.client = &http.Client{
			Timeout: m.cfg.Timeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     m.cfg.MaxConnections,
				MaxIdleConns:        m.cfg.MaxIdleConns,
				MaxIdleConnsPerHost: m.cfg.MaxIdleConns,
				IdleConnTimeout:     m.cfg.IdleConnTimeout,
			},
		}
	})
	return m.client
}

// Close releases idle pooled connections. In-flight requests complete
// normally.
func (m *Manager) Close() {
	if m.client != nil {
		m.client.CloseIdleConnections()
	}
}
