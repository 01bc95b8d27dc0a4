// Package presence mirrors the in-process online set into Redis so other
// processes can read it.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatnest-server/internal/core"
)

// DefaultKey is the hash that holds userId -> username for every online user.
const DefaultKey = "chatnest:online"

const writeTimeout = 3 * time.Second

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a Redis client and checks it with PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// RedisMirror implements core.PresenceSink.
//
// PresenceChanged only records the latest snapshot; Run writes it out. Bursts
// of changes collapse into a single write of the newest state.
type RedisMirror struct {
	write func(ctx context.Context, snapshot []core.Presence) error
	clear func(ctx context.Context) error
	log   *zerolog.Logger

	mu      sync.Mutex
	latest  []core.Presence
	pending chan struct{}
}

// NewRedisMirror creates a mirror writing to key. logger may be nil.
func NewRedisMirror(rdb *redis.Client, key string, logger *zerolog.Logger) *RedisMirror {
	if key == "" {
		key = DefaultKey
	}
	m := newMirror(logger)
	m.write = func(ctx context.Context, snapshot []core.Presence) error {
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(snapshot) == 0 {
				return nil
			}
			fields := make(map[string]interface{}, len(snapshot))
			for _, p := range snapshot {
				fields[p.UserID] = p.Username
			}
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	}
	m.clear = func(ctx context.Context) error {
		return rdb.Del(ctx, key).Err()
	}
	return m
}

func newMirror(logger *zerolog.Logger) *RedisMirror {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisMirror{
		log:     logger,
		pending: make(chan struct{}, 1),
	}
}

// PresenceChanged records snapshot for the next write. It never blocks.
func (m *RedisMirror) PresenceChanged(snapshot []core.Presence) {
	m.mu.Lock()
	m.latest = snapshot
	m.mu.Unlock()

	select {
	case m.pending <- struct{}{}:
	default:
	}
}

// Run writes snapshots until ctx is cancelled, then clears the key.
func (m *RedisMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			clearCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := m.clear(clearCtx); err != nil {
				m.log.Warn().Err(err).Msg("failed to clear presence mirror")
			}
			cancel()
			return
		case <-m.pending:
			m.mu.Lock()
			snapshot := m.latest
			m.mu.Unlock()

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := m.write(writeCtx, snapshot); err != nil {
				m.log.Warn().Err(err).Int("online", len(snapshot)).Msg("failed to mirror presence")
			} else {
				m.log.Debug().Int("online", len(snapshot)).Msg("presence mirrored")
			}
			cancel()
		}
	}
}
