package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeadershipTTL = 45 * time.Second
	leadershipRetryDelay = time.Second
	lockOpTimeout        = 5 * time.Second
)

var (
	leaderCounter atomic.Uint64

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// LeaderLock lets exactly one of several instances run a job at a time.
type LeaderLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewLeaderLock(client *redis.Client, key string, ttl time.Duration) *LeaderLock {
	if ttl <= 0 {
		ttl = DefaultLeadershipTTL
	}
	return &LeaderLock{client: client, key: key, ttl: ttl}
}

// Run blocks until ctx is done. Whenever this instance holds the lock it calls
// run with a context that is cancelled as soon as the lock is lost.
func (l *LeaderLock) Run(ctx context.Context, run func(context.Context)) error {
	if run == nil {
		return errors.New("support: leader run function cannot be nil")
	}
	if l.client == nil {
		return errors.New("support: leader lock without redis client")
	}

	for {
		session, err := l.acquire(ctx)
		if err != nil {
			return ctx.Err()
		}

		log.Debug("leader lock: acquired", "key", l.key)
		run(session.ctx)
		session.close()
		log.Debug("leader lock: released", "key", l.key)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leadershipRetryDelay):
		}
	}
}

type leaderSession struct {
	lock      *LeaderLock
	value     string
	ctx       context.Context
	cancel    context.CancelFunc
	stopRenew chan struct{}
	closeOnce sync.Once
}

func (l *LeaderLock) acquire(ctx context.Context) (*leaderSession, error) {
	value := generateLeaderID()

	for {
		ok, err := l.client.SetNX(ctx, l.key, value, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			log.Warn("leader lock: setnx failed", "key", l.key, "error", err)
		}
		if err == nil && ok {
			sessionCtx, cancel := context.WithCancel(ctx)
			session := &leaderSession{
				lock:      l,
				value:     value,
				ctx:       sessionCtx,
				cancel:    cancel,
				stopRenew: make(chan struct{}),
			}
			go session.renewLoop()
			return session, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(leadershipRetryDelay):
		}
	}
}

func (s *leaderSession) close() {
	s.closeOnce.Do(func() {
		close(s.stopRenew)
		s.cancel()
		if err := s.release(); err != nil {
			log.Warn("leader lock: release failed", "key", s.lock.key, "error", err)
		}
	})
}

func (s *leaderSession) renewLoop() {
	interval := s.lock.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopRenew:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.renew(); err != nil {
				log.Warn("leader lock: renewal failed", "key", s.lock.key, "error", err)
				s.cancel()
				return
			}
		}
	}
}

func (s *leaderSession) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), lockOpTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, s.lock.client, []string{s.lock.key}, s.value, s.lock.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if updated, ok := res.(int64); ok && updated == 0 {
		return errors.New("lock lost")
	}
	return nil
}

func (s *leaderSession) release() error {
	ctx, cancel := context.WithTimeout(context.Background(), lockOpTimeout)
	defer cancel()

	_, err := releaseScript.Run(ctx, s.lock.client, []string{s.lock.key}, s.value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func generateLeaderID() string {
	host, _ := os.Hostname()
	counter := leaderCounter.Add(1)
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), counter)
}
