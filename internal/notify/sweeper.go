package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker guards a run so that only one instance performs it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLocker takes a SET NX lock that simply expires.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Sweeper runs the retention sweep once a day at a fixed local time of day.
type Sweeper struct {
	service    *Service
	maxAgeDays int
	hour       int
	minute     int
	locker     Locker
	log        *zap.Logger
	now        func() time.Time
}

func NewSweeper(service *Service, maxAgeDays, hour, minute int, locker Locker, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		service:    service,
		maxAgeDays: maxAgeDays,
		hour:       hour,
		minute:     minute,
		locker:     locker,
		log:        log.Named("sweeper"),
		now:        time.Now,
	}
}

// NextRun returns the first occurrence of the configured time of day after from.
func (s *Sweeper) NextRun(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = time.Date(from.Year(), from.Month(), from.Day()+1, s.hour, s.minute, 0, 0, from.Location())
	}
	return next
}

// Start blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("sweeper started", zap.Int("hour", s.hour), zap.Int("minute", s.minute), zap.Int("max_age_days", s.maxAgeDays))
	for {
		now := s.now()
		timer := time.NewTimer(s.NextRun(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("sweeper stopped")
			return
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep, honoring the lock when one is configured.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if s.locker != nil {
		key := "je:retention:" + s.now().Format("2006-01-02")
		ok, err := s.locker.TryLock(ctx, key, 10*time.Minute)
		if err != nil {
			s.log.Warn("sweep lock failed, sweeping anyway", zap.Error(err))
		} else if !ok {
			s.log.Debug("sweep already taken by another instance")
			return
		}
	}
	if _, err := s.service.RetentionSweep(ctx, s.maxAgeDays); err != nil {
		s.log.Error("retention sweep failed", zap.Error(err))
	}
}
