// Package gateway hands out one exchange gateway per user, built from the
// user's stored credentials and cached with LRU and idle eviction.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signal-engine/pkg/crypto"
	"signal-engine/pkg/db"
	exchange "signal-engine/pkg/exchanges/common"
)

var (
	ErrNoCredentials    = errors.New("user has no exchange credentials")
	ErrGatewayUnhealthy = errors.New("gateway is unhealthy")
)

// Factory builds a gateway from a user's decrypted keys.
type Factory func(user db.User, accessKey, secretKey string) (exchange.Gateway, error)

// UserStore loads users with their sealed keys.
type UserStore interface {
	GetUser(ctx context.Context, id string) (db.User, error)
}

// CachedGateway holds a Gateway with metadata for lifecycle management.
type CachedGateway struct {
	Gateway   exchange.Gateway
	UserID    string
	CreatedAt time.Time
	LastUsed  time.Time
	HealthyAt time.Time
	Failures  int
}

// Config holds configuration for the Manager.
type Config struct {
	MaxSize          int           // Maximum number of cached gateways (LRU eviction)
	IdleTimeout      time.Duration // Time before idle gateway is removed
	FailureThreshold int           // Consecutive failures before the circuit opens
	CircuitTimeout   time.Duration // Time to wait before retrying an unhealthy gateway
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:          100,
		IdleTimeout:      30 * time.Minute,
		FailureThreshold: 5,
		CircuitTimeout:   5 * time.Minute,
	}
}

// Manager caches per-user gateways.
type Manager struct {
	mu       sync.Mutex
	gateways map[string]*CachedGateway
	lruOrder []string // oldest first

	config  Config
	keyring *crypto.Keyring
	users   UserStore
	factory Factory
	now     func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a new Manager.
func NewManager(users UserStore, keyring *crypto.Keyring, factory Factory, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CircuitTimeout <= 0 {
		cfg.CircuitTimeout = def.CircuitTimeout
	}
	return &Manager{
		gateways: make(map[string]*CachedGateway),
		config:   cfg,
		keyring:  keyring,
		users:    users,
		factory:  factory,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the idle cleanup loop.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.IdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.cleanupIdle()
			}
		}
	}()
}

// Stop ends the cleanup loop and drops every cached gateway.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateways = make(map[string]*CachedGateway)
	m.lruOrder = nil
}

// Get returns the cached gateway of userID, building it on first use.
func (m *Manager) Get(ctx context.Context, userID string) (exchange.Gateway, error) {
	if userID == "" {
		return nil, db.ErrUserIDRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if cached, ok := m.gateways[userID]; ok {
		if cached.Failures >= m.config.FailureThreshold && now.Sub(cached.HealthyAt) < m.config.CircuitTimeout {
			return nil, ErrGatewayUnhealthy
		}
		cached.LastUsed = now
		m.touchLRULocked(userID)
		return cached.Gateway, nil
	}

	if len(m.gateways) >= m.config.MaxSize {
		m.evictOldestLocked()
	}

	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	accessKey, err := m.open(user.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt access key: %w", err)
	}
	secretKey, err := m.open(user.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret key: %w", err)
	}

	gw, err := m.factory(user, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	m.gateways[userID] = &CachedGateway{
		Gateway:   gw,
		UserID:    userID,
		CreatedAt: now,
		LastUsed:  now,
		HealthyAt: now,
	}
	m.lruOrder = append(m.lruOrder, userID)
	return gw, nil
}

func (m *Manager) open(v string) (string, error) {
	if v == "" || m.keyring == nil {
		return v, nil
	}
	return m.keyring.Open(v)
}

// Remove drops the gateway of a user, e.g. after a key change.
func (m *Manager) Remove(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gateways, userID)
	m.removeLRULocked(userID)
}

// RecordFailure counts a failed call made through the user's gateway.
func (m *Manager) RecordFailure(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.gateways[userID]; ok {
		cached.Failures++
	}
}

// RecordSuccess resets the failure counter.
func (m *Manager) RecordSuccess(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.gateways[userID]; ok {
		cached.Failures = 0
		cached.HealthyAt = m.now()
	}
}

// PoolStats contains gateway pool statistics.
type PoolStats struct {
	TotalGateways  int `json:"total_gateways"`
	MaxSize        int `json:"max_size"`
	UnhealthyCount int `json:"unhealthy_count"`
}

// Stats returns current pool statistics.
func (m *Manager) Stats() PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := PoolStats{TotalGateways: len(m.gateways), MaxSize: m.config.MaxSize}
	for _, cached := range m.gateways {
		if cached.Failures >= m.config.FailureThreshold {
			stats.UnhealthyCount++
		}
	}
	return stats
}

func (m *Manager) touchLRULocked(userID string) {
	m.removeLRULocked(userID)
	m.lruOrder = append(m.lruOrder, userID)
}

func (m *Manager) removeLRULocked(userID string) {
	for i, id := range m.lruOrder {
		if id == userID {
			m.lruOrder = append(m.lruOrder[:i], m.lruOrder[i+1:]...)
			return
		}
	}
}

func (m *Manager) evictOldestLocked() {
	if len(m.lruOrder) == 0 {
		return
	}
	oldest := m.lruOrder[0]
	delete(m.gateways, oldest)
	m.lruOrder = m.lruOrder[1:]
}

func (m *Manager) cleanupIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, cached := range m.gateways {
		if now.Sub(cached.LastUsed) > m.config.IdleTimeout {
			delete(m.gateways, id)
			m.removeLRULocked(id)
		}
	}
}
