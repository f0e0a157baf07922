// Package blocklist is the redis set-backed store.BlockedStore, resolving
// spec.md §9 Open Question (ii): IsBlocked consults the persisted set
// rather than the source's always-false stub.
package blocklist

import (
	"context"

	"github.com/pkg/errors"

	redissvc "e2ereceiver/internal/service/redis"
)

const blockedSetKey = "blocked-numbers"

type Blocklist struct {
	redis *redissvc.RedisService
}

func NewBlocklist(redis *redissvc.RedisService) *Blocklist {
	return &Blocklist{redis: redis}
}

func (b *Blocklist) IsBlocked(ctx context.Context, number string) (bool, error) {
	blocked, err := b.redis.SIsMember(ctx, blockedSetKey, number)
	if err != nil {
		return false, errors.Wrap(err, "blocklist: sismember")
	}
	return blocked, nil
}

func (b *Blocklist) Block(ctx context.Context, number string) error {
	return errors.Wrap(b.redis.SAdd(ctx, blockedSetKey, number), "blocklist: sadd")
}

func (b *Blocklist) Unblock(ctx context.Context, number string) error {
	return errors.Wrap(b.redis.SRem(ctx, blockedSetKey, number), "blocklist: srem")
}

// ReplaceAll overwrites the whole blocked set, backing the sync message
// "blocked" branch of §4.6 which replaces the local blocked-numbers list
// wholesale rather than diffing it.
func (b *Blocklist) ReplaceAll(ctx context.Context, numbers []string) error {
	if err := b.redis.Del(ctx, blockedSetKey); err != nil {
		return errors.Wrap(err, "blocklist: del")
	}
	if len(numbers) == 0 {
		return nil
	}
	members := make([]any, len(numbers))
	for i, n := range numbers {
		members[i] = n
	}
	return errors.Wrap(b.redis.SAdd(ctx, blockedSetKey, members...), "blocklist: sadd")
}
