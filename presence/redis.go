package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tcriess/lightspeed-messenger/config"
	"github.com/tcriess/lightspeed-messenger/globals"
)

const (
	redisQueueSize = 1024
	redisTimeout   = 2 * time.Second
)

type transition struct {
	userId string
	online bool
}

// RedisMirror keeps a redis set of the online user ids, for consumers outside the process. Transitions are queued
// and applied by a single worker so their order is preserved; if the queue is full the transition is dropped.
type RedisMirror struct {
	client  *redis.Client
	key     string
	queue   chan transition
	stopped chan struct{}
}

// NewRedisMirror connects to the configured redis, clears the set (presence is rebuilt from zero on start) and
// starts the worker. It returns nil if no redis address is configured.
func NewRedisMirror(ctx context.Context, cfg config.RedisConfig) (*RedisMirror, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Del(ctx, cfg.Key).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	m := &RedisMirror{
		client:  client,
		key:     cfg.Key,
		queue:   make(chan transition, redisQueueSize),
		stopped: make(chan struct{}),
	}
	go m.run()
	return m, nil
}

func (m *RedisMirror) Online(userId string) {
	m.enqueue(transition{userId: userId, online: true})
}

func (m *RedisMirror) Offline(userId string) {
	m.enqueue(transition{userId: userId, online: false})
}

func (m *RedisMirror) enqueue(t transition) {
	select {
	case m.queue <- t:
	default:
		globals.AppLogger.Warn("presence mirror queue full, dropping transition", "user", t.userId, "online", t.online)
	}
}

func (m *RedisMirror) run() {
	defer close(m.stopped)
	for t := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		var err error
		if t.online {
			err = m.client.SAdd(ctx, m.key, t.userId).Err()
		} else {
			err = m.client.SRem(ctx, m.key, t.userId).Err()
		}
		cancel()
		if err != nil {
			globals.AppLogger.Error("could not mirror presence", "user", t.userId, "online", t.online, "error", err)
		}
	}
}

// Members returns the mirrored set.
func (m *RedisMirror) Members(ctx context.Context) ([]string, error) {
	return m.client.SMembers(ctx, m.key).Result()
}

// Close drains the queue and closes the client. The registry must not be used afterwards.
func (m *RedisMirror) Close() error {
	close(m.queue)
	<-m.stopped
	return m.client.Close()
}
