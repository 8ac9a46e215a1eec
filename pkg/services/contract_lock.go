package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
)

// ContractLocker guards a contract against concurrent semantic analyses.
// Acquire fails with apperrors.ErrAlreadyProcessing when the lock is held.
type ContractLocker interface {
	Acquire(ctx context.Context, contractID uuid.UUID) (release func(), err error)
}

type localContractLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

// NewLocalContractLocker creates an in-process locker.
func NewLocalContractLocker() ContractLocker {
	return &localContractLocker{held: make(map[uuid.UUID]struct{})}
}

var _ ContractLocker = (*localContractLocker)(nil)

func (l *localContractLocker) Acquire(ctx context.Context, contractID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[contractID]; ok {
		return nil, apperrors.ErrAlreadyProcessing
	}
	l.held[contractID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, contractID)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type redisContractLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisContractLocker creates a locker shared by every process using the
// same Redis. Locks expire after ttl so a crashed holder cannot block a
// contract forever.
func NewRedisContractLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) ContractLocker {
	return &redisContractLocker{
		client: client,
		ttl:    ttl,
		logger: logger.Named("contract-lock"),
	}
}

var _ ContractLocker = (*redisContractLocker)(nil)

func contractLockKey(contractID uuid.UUID) string {
	return "renewals:ai-lock:" + contractID.String()
}

func (l *redisContractLocker) Acquire(ctx context.Context, contractID uuid.UUID) (func(), error) {
	key := contractLockKey(contractID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire contract lock: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrAlreadyProcessing
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Warn("Failed to release contract lock",
					zap.String("contract_id", contractID.String()),
					zap.Error(err))
			}
		})
	}, nil
}
