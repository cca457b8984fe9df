// Package redisbl serves blacklist lookups from Redis sets, one set per
// tenant and kind.  It lets several gate servers share a denylist that the
// estate administration updates centrally.
package redisbl

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/normalize"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

const defaultPrefix = "gatehouse:blacklist"

// Client is the subset of redis.Cmdable the blacklist uses.
type Client interface {
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

type Blacklist struct {
	client Client
	prefix string
}

// New wraps an existing client.  An empty prefix uses "gatehouse:blacklist".
func New(client Client, prefix string) *Blacklist {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Blacklist{client: client, prefix: prefix}
}

// NewClient dials Redis with the given options.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

var _ store.BlacklistStore = (*Blacklist)(nil)

func (b *Blacklist) key(tenantID string, kind types.BlacklistKind) string {
	return fmt.Sprintf("%s:%s:%s", b.prefix, tenantID, kind)
}

// Add adds an active entry to its set, or removes an inactive one.
func (b *Blacklist) Add(ctx context.Context, e types.BlacklistEntry) error {
	switch e.Kind {
	case types.BlacklistPlate:
		e.Value = normalize.Plate(e.Value)
	case types.BlacklistPhone:
		e.Value = normalize.Phone(e.Value)
	default:
		return fmt.Errorf("redisbl: unknown blacklist kind %q", e.Kind)
	}
	key := b.key(e.TenantID, e.Kind)
	if e.Active {
		if err := b.client.SAdd(ctx, key, e.Value).Err(); err != nil {
			return fmt.Errorf("redisbl: sadd %s: %w", key, err)
		}
		return nil
	}
	if err := b.client.SRem(ctx, key, e.Value).Err(); err != nil {
		return fmt.Errorf("redisbl: srem %s: %w", key, err)
	}
	return nil
}

func (b *Blacklist) IsPlateBlacklisted(ctx context.Context, tenantID, plate string) (bool, error) {
	return b.member(ctx, tenantID, types.BlacklistPlate, plate)
}

func (b *Blacklist) IsPhoneBlacklisted(ctx context.Context, tenantID, phone string) (bool, error) {
	return b.member(ctx, tenantID, types.BlacklistPhone, phone)
}

func (b *Blacklist) member(ctx context.Context, tenantID string, kind types.BlacklistKind, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	key := b.key(tenantID, kind)
	ok, err := b.client.SIsMember(ctx, key, value).Result()
	if err != nil {
		return false, fmt.Errorf("redisbl: sismember %s: %w", key, err)
	}
	return ok, nil
}
