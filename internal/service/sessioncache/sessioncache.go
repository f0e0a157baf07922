// Package sessioncache is the redis-backed store.SessionStore, generalizing
// the teacher's single from/to SaveState/GetState key scheme into a
// model.Address-keyed one plus a per-number device-id index so EndSession
// (§4.7) can enumerate every device a number has a live session with.
package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pkg/errors"

	"e2ereceiver/internal/model"
	"e2ereceiver/internal/protocol/doubleratchet"
	redissvc "e2ereceiver/internal/service/redis"
)

type SessionCache struct {
	redis *redissvc.RedisService
}

func NewSessionCache(redis *redissvc.RedisService) *SessionCache {
	return &SessionCache{redis: redis}
}

func sessionKey(addr model.Address) string {
	return fmt.Sprintf("session:%s", addr.String())
}

func deviceIndexKey(number string) string {
	return fmt.Sprintf("session-devices:%s", number)
}

// wireState mirrors doubleratchet.RatchetState for JSON round-tripping;
// the ratchet package stays the unexported black box the teacher treats it
// as (§1), so this cache only ever touches it through its exported fields.
type wireState struct {
	RootKey           []byte
	DHsPriv           [32]byte
	DHsPub            [32]byte
	DHr               [32]byte
	SendingChainKey   []byte
	ReceivingChainKey []byte
	Ns                uint32
	Nr                uint32
	PN                uint32
	Skipped           map[string][]byte
}

func toWire(s *doubleratchet.RatchetState) wireState {
	return wireState{
		RootKey:           s.RootKey,
		DHsPriv:           s.DHsPriv,
		DHsPub:            s.DHsPub,
		DHr:               s.DHr,
		SendingChainKey:   s.SendingChainKey,
		ReceivingChainKey: s.ReceivingChainKey,
		Ns:                s.Ns,
		Nr:                s.Nr,
		PN:                s.PN,
		Skipped:           s.Skipped,
	}
}

func fromWire(w wireState) *doubleratchet.RatchetState {
	return &doubleratchet.RatchetState{
		RootKey:           w.RootKey,
		DHsPriv:           w.DHsPriv,
		DHsPub:            w.DHsPub,
		DHr:               w.DHr,
		SendingChainKey:   w.SendingChainKey,
		ReceivingChainKey: w.ReceivingChainKey,
		Ns:                w.Ns,
		Nr:                w.Nr,
		PN:                w.PN,
		Skipped:           w.Skipped,
	}
}

func (c *SessionCache) SaveSession(ctx context.Context, addr model.Address, st *doubleratchet.RatchetState) error {
	body, err := json.Marshal(toWire(st))
	if err != nil {
		return errors.Wrap(err, "sessioncache: marshal")
	}
	if err := c.redis.Set(ctx, sessionKey(addr), body, 0); err != nil {
		return errors.Wrap(err, "sessioncache: set")
	}
	return c.redis.SAdd(ctx, deviceIndexKey(addr.Number), addr.DeviceID)
}

func (c *SessionCache) LoadSession(ctx context.Context, addr model.Address) (*doubleratchet.RatchetState, error) {
	raw, err := c.redis.Get(ctx, sessionKey(addr))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sessioncache: get")
	}

	var w wireState
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, errors.Wrap(err, "sessioncache: unmarshal")
	}
	return fromWire(w), nil
}

func (c *SessionCache) DeleteSession(ctx context.Context, addr model.Address) error {
	if err := c.redis.Del(ctx, sessionKey(addr)); err != nil {
		return errors.Wrap(err, "sessioncache: delete")
	}
	return c.redis.SRem(ctx, deviceIndexKey(addr.Number), addr.DeviceID)
}

func (c *SessionCache) ListDeviceIDs(ctx context.Context, number string) ([]uint32, error) {
	members, err := c.redis.SMembers(ctx, deviceIndexKey(number))
	if err != nil {
		return nil, errors.Wrap(err, "sessioncache: smembers")
	}
	ids := make([]uint32, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}
