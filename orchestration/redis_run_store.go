package orchestration

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/opsflow/opsflow/core"
)

const (
	// Redis key patterns for the run store
	runKeyPrefix = "opsflow:run:"
	runIndexKey  = "opsflow:run:index"

	// Size threshold for compression
	runCompressionThreshold = 100 * 1024 // 100KB

	// Default TTLs: runs with failed steps are retained longer for
	// investigation.
	defaultRunTTL      = 24 * time.Hour
	defaultRunErrorTTL = 7 * 24 * time.Hour
)

// RedisRunStoreOption configures the Redis run store
type RedisRunStoreOption func(*redisRunStoreConfig)

type redisRunStoreConfig struct {
	redisURL       string
	redisDB        int
	logger         core.Logger
	circuitBreaker core.CircuitBreaker // optional, injected by application
	keyPrefix      string
	ttl            time.Duration
	errorTTL       time.Duration
}

// WithRedisURL sets the Redis connection URL
func WithRedisURL(url string) RedisRunStoreOption {
	return func(c *redisRunStoreConfig) {
		c.redisURL = url
	}
}

// WithRedisDB sets the Redis database number
func WithRedisDB(db int) RedisRunStoreOption {
	return func(c *redisRunStoreConfig) {
		c.redisDB = db
	}
}

// WithStoreLogger sets the logger for run store operations
func WithStoreLogger(logger core.Logger) RedisRunStoreOption {
	return func(c *redisRunStoreConfig) {
		c.logger = logger
	}
}

// WithCircuitBreaker sets a circuit breaker for Redis operations.
// If not provided, built-in simple retry with backoff is used.
func WithCircuitBreaker(cb core.CircuitBreaker) RedisRunStoreOption {
	return func(c *redisRunStoreConfig) {
		c.circuitBreaker = cb
	}
}

// WithKeyPrefix sets a custom key prefix for run records
func WithKeyPrefix(prefix string) RedisRunStoreOption {
	return func(c *redisRunStoreConfig) {
		c.keyPrefix = prefix
	}
}

// WithRunTTL sets custom retention for completed runs
func WithRunTTL(ttl time.Duration) RedisRunStoreOption {
	return func(c *redisRunStoreConfig) {
		c.ttl = ttl
	}
}

// WithRunErrorTTL sets custom retention for runs containing failed steps
func WithRunErrorTTL(ttl time.Duration) RedisRunStoreOption {
	return func(c *redisRunStoreConfig) {
		c.errorTTL = ttl
	}
}

// RedisRunStore is the Redis-backed durable run store. It provides the
// persistence substrate for the run controller's checkpoint/resume
// semantics: every Save is a full snapshot of the run, so a process
// restart can reload the last checkpoint and continue from the first
// step without a recorded result.
//
// Resilience layering:
//   - built-in simple retry with exponential backoff (always active)
//   - optional circuit breaker (injected via WithCircuitBreaker)
type RedisRunStore struct {
	client         *redis.Client
	logger         core.Logger
	circuitBreaker core.CircuitBreaker
	keyPrefix      string
	ttl            time.Duration
	errorTTL       time.Duration

	// built-in resilience state (simple failure tracking)
	failureCount int
	failureMu    sync.Mutex
	lastFailure  time.Time
}

// NewRedisRunStore creates a Redis-backed run store.
//
// Environment variable precedence:
//   - OPSFLOW_REDIS_URL or REDIS_URL: Redis connection URL (default: localhost:6379)
//   - OPSFLOW_REDIS_DB: Redis database number (default: 0)
//   - OPSFLOW_RUN_TTL: retention for completed runs (default: 24h)
//   - OPSFLOW_RUN_ERROR_TTL: retention for runs with failed steps (default: 168h)
func NewRedisRunStore(opts ...RedisRunStoreOption) (*RedisRunStore, error) {
	cfg := &redisRunStoreConfig{
		redisURL:  core.GetEnvString("OPSFLOW_REDIS_URL", core.GetEnvString("REDIS_URL", "redis://localhost:6379")),
		redisDB:   core.GetEnvInt("OPSFLOW_REDIS_DB", 0),
		logger:    &core.NoOpLogger{},
		keyPrefix: runKeyPrefix,
		ttl:       core.GetEnvDuration("OPSFLOW_RUN_TTL", defaultRunTTL),
		errorTTL:  core.GetEnvDuration("OPSFLOW_RUN_ERROR_TTL", defaultRunErrorTTL),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	redisOpt, err := redis.ParseURL(cfg.redisURL)
	if err != nil {
		// Try treating it as a simple address if URL parsing fails
		redisOpt = &redis.Options{
			Addr: cfg.redisURL,
		}
	}
	redisOpt.DB = cfg.redisDB

	client := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed at %s (DB %d): %w\n"+
			"Hint: check OPSFLOW_REDIS_URL or REDIS_URL, or use WithRedisURL()",
			cfg.redisURL, cfg.redisDB, err)
	}

	cfg.logger.Info("Redis run store initialized", map[string]interface{}{
		"redis_addr":      redisOpt.Addr,
		"redis_db":        cfg.redisDB,
		"key_prefix":      cfg.keyPrefix,
		"ttl":             cfg.ttl.String(),
		"error_ttl":       cfg.errorTTL.String(),
		"circuit_breaker": cfg.circuitBreaker != nil,
	})

	return &RedisRunStore{
		client:         client,
		logger:         cfg.logger,
		circuitBreaker: cfg.circuitBreaker,
		keyPrefix:      cfg.keyPrefix,
		ttl:            cfg.ttl,
		errorTTL:       cfg.errorTTL,
	}, nil
}

// Save checkpoints a run snapshot
func (s *RedisRunStore) Save(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	operation := func() error {
		data, err := s.serialize(run)
		if err != nil {
			return fmt.Errorf("serialization failed: %w", err)
		}

		if err := s.client.Set(ctx, s.runKey(run.ID), data, s.ttlFor(run)).Err(); err != nil {
			return fmt.Errorf("redis set failed: %w", err)
		}

		// Recency index (sorted set by start time) - best effort
		if err := s.client.ZAdd(ctx, s.indexKey(), &redis.Z{
			Score:  float64(run.StartTime.UnixNano()),
			Member: run.ID,
		}).Err(); err != nil {
			s.logger.Warn("Failed to update run index", map[string]interface{}{
				"run_id": run.ID,
				"error":  err.Error(),
			})
			// Don't fail - the index is for listing, not correctness
		}
		return nil
	}

	if s.circuitBreaker != nil {
		return s.circuitBreaker.Execute(ctx, operation)
	}
	return s.executeWithRetry(ctx, operation)
}

// Get retrieves the latest checkpoint of a run by id
func (s *RedisRunStore) Get(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}

	data, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	return s.deserialize(data)
}

// ListRecent returns recent runs ordered by start time, newest first
func (s *RedisRunStore) ListRecent(ctx context.Context, limit int) ([]RunSummary, error) {
	const maxLimit = 1000
	if limit <= 0 {
		limit = 50
	} else if limit > maxLimit {
		limit = maxLimit
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", err)
	}

	summaries := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		run, err := s.Get(ctx, id)
		if err != nil {
			// Clean up stale index entry (TTL expired)
			_ = s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		summaries = append(summaries, summarize(run))
	}
	return summaries, nil
}

// Close closes the Redis connection
func (s *RedisRunStore) Close() error {
	return s.client.Close()
}

func (s *RedisRunStore) runKey(runID string) string {
	return s.keyPrefix + runID
}

func (s *RedisRunStore) indexKey() string {
	if s.keyPrefix == runKeyPrefix {
		return runIndexKey
	}
	return s.keyPrefix + "index"
}

// ttlFor keeps runs with failed steps around longer
func (s *RedisRunStore) ttlFor(run *Run) time.Duration {
	for _, r := range run.Results {
		if !r.Success {
			return s.errorTTL
		}
	}
	return s.ttl
}

// Built-in resilience constants
const (
	storeMaxRetries     = 3
	storeInitialBackoff = 100 * time.Millisecond
	storeMaxBackoff     = 2 * time.Second
	storeFailureWindow  = 30 * time.Second
	storeMaxFailures    = 5
)

// executeWithRetry implements built-in resilience with simple retry and
// exponential backoff, plus a cooldown after repeated failures.
func (s *RedisRunStore) executeWithRetry(ctx context.Context, operation func() error) error {
	s.failureMu.Lock()
	if s.failureCount >= storeMaxFailures && time.Since(s.lastFailure) < storeFailureWindow {
		s.failureMu.Unlock()
		s.logger.Warn("Run store in cooldown period", map[string]interface{}{
			"failures":     s.failureCount,
			"cooldown_sec": storeFailureWindow.Seconds(),
		})
		return fmt.Errorf("run store in cooldown after %d failures", s.failureCount)
	}
	s.failureMu.Unlock()

	var lastErr error
	backoff := storeInitialBackoff

	for attempt := 1; attempt <= storeMaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			s.failureMu.Lock()
			s.failureCount = 0
			s.failureMu.Unlock()
			return nil
		}

		lastErr = err
		s.logger.Warn("Run store operation failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"max":     storeMaxRetries,
			"backoff": backoff.String(),
			"error":   err.Error(),
		})

		if attempt < storeMaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > storeMaxBackoff {
				backoff = storeMaxBackoff
			}
		}
	}

	s.failureMu.Lock()
	s.failureCount++
	s.lastFailure = time.Now()
	s.failureMu.Unlock()

	return fmt.Errorf("operation failed after %d attempts: %w", storeMaxRetries, lastErr)
}

// serialize with optional gzip compression behind a 1-byte flag
func (s *RedisRunStore) serialize(run *Run) ([]byte, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}

	if len(data) > runCompressionThreshold {
		var buf bytes.Buffer
		buf.WriteByte(1) // compression flag
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(data); err != nil {
			return nil, err
		}
		if err := gz.Close(); err != nil {
			return nil, err
		}
		s.logger.Debug("Compressed run record", map[string]interface{}{
			"run_id":          run.ID,
			"original_size":   len(data),
			"compressed_size": buf.Len(),
		})
		return buf.Bytes(), nil
	}

	// Prepend 0 byte to indicate no compression
	return append([]byte{0}, data...), nil
}

// deserialize with optional gzip decompression
func (s *RedisRunStore) deserialize(data []byte) (*Run, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonData []byte
	if data[0] == 1 { // compressed
		gz, err := gzip.NewReader(bytes.NewReader(data[1:]))
		if err != nil {
			return nil, err
		}
		defer func() { _ = gz.Close() }()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(gz); err != nil {
			return nil, err
		}
		jsonData = buf.Bytes()
	} else {
		jsonData = data[1:]
	}

	var run Run
	if err := json.Unmarshal(jsonData, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Ensure RedisRunStore implements RunStore
var _ RunStore = (*RedisRunStore)(nil)
