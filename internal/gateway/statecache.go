package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/infra"
)

// StatusLister feeds cache warmup from Postgres.
type StatusLister interface {
	ListProviderIDsByOperationStatus(ctx context.Context, status domain.OperationStatus) ([]string, error)
}

// OperationStateCache keeps the paused/offline provider sets in RAM so the
// hot path never touches Redis or Postgres to answer "is this provider
// serving". State changes arrive over pub/sub from the console.
type OperationStateCache struct {
	mu      sync.RWMutex
	paused  map[string]struct{}
	offline map[string]struct{}

	repo   StatusLister
	rdb    *redis.Client
	logger *zap.Logger
}

func NewOperationStateCache(repo StatusLister, rdb *redis.Client, logger *zap.Logger) *OperationStateCache {
	return &OperationStateCache{
		paused:  make(map[string]struct{}),
		offline: make(map[string]struct{}),
		repo:    repo,
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", "state-cache")),
	}
}

// Init loads both state sets from Postgres and warms the shared Redis sets
// so a freshly started instance serves correct answers immediately.
func (c *OperationStateCache) Init(ctx context.Context) error {
	pausedIDs, err := c.repo.ListProviderIDsByOperationStatus(ctx, domain.OperationPaused)
	if err != nil {
		return err
	}
	offlineIDs, err := c.repo.ListProviderIDsByOperationStatus(ctx, domain.OperationOffline)
	if err != nil {
		return err
	}

	if err := c.warmupSet(ctx, pausedIDs, infra.RedisKeyPausedProviders, infra.RedisKeyLockWarmPaused, c.replacePaused); err != nil {
		c.logger.Warn("paused set warmup failed", zap.Error(err))
	}
	if err := c.warmupSet(ctx, offlineIDs, infra.RedisKeyOfflineProviders, infra.RedisKeyLockWarmOffline, c.replaceOffline); err != nil {
		c.logger.Warn("offline set warmup failed", zap.Error(err))
	}
	return nil
}

// warmupSet refreshes the local map and, under a distributed lock, fills the
// Redis set when it is empty. Only one instance performs the fill.
func (c *OperationStateCache) warmupSet(
	ctx context.Context,
	ids []string,
	redisKey, lockKey string,
	updateLocal func([]string),
) error {
	updateLocal(ids)

	ok, err := c.rdb.SetNX(ctx, lockKey, "processing", 30*time.Second).Result()
	if err != nil || !ok {
		return nil // network error or another instance is already warming
	}

	count, err := c.rdb.SCard(ctx, redisKey).Result()
	if err != nil {
		count = 0
		c.logger.Warn("could not check Redis set size, proceeding with warm-up",
			zap.String("key", redisKey), zap.Error(err))
	}

	if count == 0 && len(ids) > 0 {
		c.logger.Info("Redis cache is empty, performing warm-up from DB...",
			zap.String("key", redisKey), zap.Int("count", len(ids)))

		pipe := c.rdb.Pipeline()
		for _, id := range ids {
			pipe.SAdd(ctx, redisKey, id)
		}
		_, err = pipe.Exec(ctx)
		return err
	}
	return nil
}

func (c *OperationStateCache) replacePaused(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.paused[id] = struct{}{}
	}
}

func (c *OperationStateCache) replaceOffline(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		c.offline[id] = struct{}{}
	}
}

func (c *OperationStateCache) apply(providerID string, status domain.OperationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.paused, providerID)
	delete(c.offline, providerID)

	switch status {
	case domain.OperationPaused:
		c.paused[providerID] = struct{}{}
	case domain.OperationOffline:
		c.offline[providerID] = struct{}{}
	}
}

func (c *OperationStateCache) IsPaused(providerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.paused[providerID]
	return ok
}

func (c *OperationStateCache) IsOffline(providerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.offline[providerID]
	return ok
}

// IsServable is the hot-path check: a provider serves unless paused or offline.
func (c *OperationStateCache) IsServable(providerID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.paused[providerID]; ok {
		return false
	}
	if _, ok := c.offline[providerID]; ok {
		return false
	}
	return true
}

// StartListener runs the resilient pub/sub loop. Blocks until ctx is done,
// so run it in its own goroutine. Every (re)subscribe triggers a full Init
// to close any gap between the missed signals and the current DB state.
func (c *OperationStateCache) StartListener(ctx context.Context) {
	for {
		pubsub := c.rdb.Subscribe(ctx, infra.RedisChanOpsSignal)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to subscribe",
				zap.String("chan", infra.RedisChanOpsSignal), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		if err := c.Init(ctx); err != nil {
			c.logger.Error("state sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // channel closed, resubscribe
				}
				c.handleSignal(msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

// handleSignal parses "<provider_id>:<active|paused|offline>".
func (c *OperationStateCache) handleSignal(payload string) {
	parts := strings.Split(payload, ":")
	if len(parts) != 2 {
		c.logger.Error("invalid ops signal format", zap.String("payload", payload))
		return
	}

	providerID := parts[0]
	status := domain.OperationStatus(parts[1])
	switch status {
	case domain.OperationActive, domain.OperationPaused, domain.OperationOffline:
	default:
		c.logger.Error("unknown operation status in signal", zap.String("payload", payload))
		return
	}

	c.logger.Info("applying operation state signal",
		zap.String("provider_id", providerID), zap.String("status", string(status)))
	c.apply(providerID, status)
}
