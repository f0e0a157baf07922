// Package store declares the storage contracts §1 treats as external
// collaborators: session state, group roster, blocked-sender set, and
// trusted identity keys. The receiver pipeline depends only on these
// interfaces; internal/repository and internal/service provide the mongo-
// and redis-backed implementations wired up by cmd/receiver.
package store

import (
	"context"

	"e2ereceiver/internal/model"
	"e2ereceiver/internal/protocol/doubleratchet"
)

// SessionStore persists one ratchet session per Address.
type SessionStore interface {
	SaveSession(ctx context.Context, addr model.Address, state *doubleratchet.RatchetState) error
	LoadSession(ctx context.Context, addr model.Address) (*doubleratchet.RatchetState, error)
	DeleteSession(ctx context.Context, addr model.Address) error
	// ListDeviceIDs returns every device id this store holds a session for
	// under number, used to fan an End-Session data message out to every
	// known device (§4.7).
	ListDeviceIDs(ctx context.Context, number string) ([]uint32, error)
}

// RosterStore persists the last-known member list for each group.
type RosterStore interface {
	GetGroup(ctx context.Context, groupID []byte) (*model.Group, error)
	SaveGroup(ctx context.Context, group *model.Group) error
	DeleteGroup(ctx context.Context, groupID []byte) error
}

// BlockedStore backs store.BlockedStore.IsBlocked with the persisted
// blocked-number set, resolving spec.md §9 Open Question (ii): this
// consults the set, it is not a stub.
type BlockedStore interface {
	IsBlocked(ctx context.Context, number string) (bool, error)
	Block(ctx context.Context, number string) error
	Unblock(ctx context.Context, number string) error
	// ReplaceAll overwrites the whole set, backing the sync "blocked" branch
	// of §4.6 which replaces the list wholesale rather than diffing it.
	ReplaceAll(ctx context.Context, numbers []string) error
}

// IdentityStore backs trust-on-first-use identity-key pinning per Address.
type IdentityStore interface {
	TrustedIdentityKey(ctx context.Context, addr model.Address) ([]byte, error)
	TrustIdentityKey(ctx context.Context, addr model.Address, identityKey []byte) error
}
