package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"empresa-service/internal/config"
)

// Client wraps the Redis client with wizard-specific methods
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection to Redis
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key prefixes
const (
	SessionKeyPrefix   = "wizard:session:"
	HeartbeatKeyPrefix = "wizard:heartbeat:"
	CounterKeyPrefix   = "wizard:counter:"
)

// WizardState is the persisted session state of one onboarding wizard run.
// StepData is keyed by the canonical session key of each step
// ("step_1".."step_7"), each holding the flattened cleaned payload.
type WizardState struct {
	SessionKey       string                            `json:"session_key"`
	CurrentStep      int                               `json:"current_step"`
	StepData         map[string]map[string]interface{} `json:"step_data"`
	EditingEmpresaID *uuid.UUID                        `json:"editing_empresa_id,omitempty"`
	CreatedAt        time.Time                         `json:"created_at"`
	LastSavedAt      time.Time                         `json:"last_saved_at"`
}

// SessionStore is the persistence surface the wizard controller needs.
// *Client implements it against Redis; tests substitute an in-memory fake.
type SessionStore interface {
	SaveState(ctx context.Context, state *WizardState, ttl time.Duration) error
	GetState(ctx context.Context, sessionKey string) (*WizardState, error)
	DeleteState(ctx context.Context, sessionKey string) error
	UpdateHeartbeat(ctx context.Context, sessionKey string, ttl time.Duration) error
	IncrementCounter(ctx context.Context, name string) error
}

// SaveState persists wizard session state with the given TTL
func (c *Client) SaveState(ctx context.Context, state *WizardState, ttl time.Duration) error {
	key := SessionKeyPrefix + state.SessionKey
	state.LastSavedAt = time.Now()

	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal wizard state: %w", err)
	}

	return c.rdb.Set(ctx, key, jsonData, ttl).Err()
}

// GetState retrieves wizard session state. Returns nil when the session does
// not exist or expired.
func (c *Client) GetState(ctx context.Context, sessionKey string) (*WizardState, error) {
	key := SessionKeyPrefix + sessionKey

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wizard state: %w", err)
	}

	var state WizardState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wizard state: %w", err)
	}

	return &state, nil
}

// DeleteState removes wizard session state
func (c *Client) DeleteState(ctx context.Context, sessionKey string) error {
	key := SessionKeyPrefix + sessionKey
	return c.rdb.Del(ctx, key).Err()
}

// GetStateTTL gets the remaining TTL for a session
func (c *Client) GetStateTTL(ctx context.Context, sessionKey string) (time.Duration, error) {
	key := SessionKeyPrefix + sessionKey
	return c.rdb.TTL(ctx, key).Result()
}

// UpdateHeartbeat updates the last heartbeat timestamp for a session
func (c *Client) UpdateHeartbeat(ctx context.Context, sessionKey string, ttl time.Duration) error {
	key := HeartbeatKeyPrefix + sessionKey
	return c.rdb.Set(ctx, key, time.Now().Unix(), ttl).Err()
}

// GetLastHeartbeat gets the last heartbeat timestamp for a session
func (c *Client) GetLastHeartbeat(ctx context.Context, sessionKey string) (*time.Time, error) {
	key := HeartbeatKeyPrefix + sessionKey

	timestamp, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return nil, nil // No heartbeat
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get heartbeat: %w", err)
	}

	t := time.Unix(timestamp, 0)
	return &t, nil
}

// IncrementCounter increments a durable counter mirrored in Redis. These
// survive process restarts, unlike the in-memory metrics store.
func (c *Client) IncrementCounter(ctx context.Context, name string) error {
	key := CounterKeyPrefix + name
	return c.rdb.Incr(ctx, key).Err()
}

// GetAllCounters scans all mirrored counters and returns name -> value
func (c *Client) GetAllCounters(ctx context.Context) (map[string]int64, error) {
	pattern := CounterKeyPrefix + "*"
	var cursor uint64
	counters := make(map[string]int64)

	for {
		var batch []string
		var err error
		batch, cursor, err = c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan counter keys: %w", err)
		}
		for _, key := range batch {
			value, err := c.rdb.Get(ctx, key).Int64()
			if err == redis.Nil {
				continue // Expired between scan and get
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read counter %s: %w", key, err)
			}
			counters[key[len(CounterKeyPrefix):]] = value
		}
		if cursor == 0 {
			break
		}
	}

	return counters, nil
}

// ResetAllCounters deletes all mirrored counter keys and returns how many were removed
func (c *Client) ResetAllCounters(ctx context.Context) (int, error) {
	pattern := CounterKeyPrefix + "*"
	var cursor uint64
	deleted := 0

	for {
		var batch []string
		var err error
		batch, cursor, err = c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan counter keys: %w", err)
		}
		if len(batch) > 0 {
			if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
				return deleted, fmt.Errorf("failed to delete counter keys: %w", err)
			}
			deleted += len(batch)
		}
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

// GetAllSessionKeys returns all active wizard session keys (for maintenance tooling)
func (c *Client) GetAllSessionKeys(ctx context.Context) ([]string, error) {
	pattern := SessionKeyPrefix + "*"
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error
		batch, cursor, err = c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan session keys: %w", err)
		}
		keys = append(keys, batch...)
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
