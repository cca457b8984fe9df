package memory

import (
	"context"
	"sync"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/normalize"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

type blacklistKey struct {
	tenant string
	kind   types.BlacklistKind
	value  string
}

// Blacklist is an in-memory tenant denylist.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[blacklistKey]types.BlacklistEntry
}

func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[blacklistKey]types.BlacklistEntry)}
}

var _ store.BlacklistStore = (*Blacklist)(nil)

// Add inserts or replaces an entry.  The value is normalized for its kind.
func (b *Blacklist) Add(e types.BlacklistEntry) {
	switch e.Kind {
	case types.BlacklistPlate:
		e.Value = normalize.Plate(e.Value)
	case types.BlacklistPhone:
		e.Value = normalize.Phone(e.Value)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[blacklistKey{e.TenantID, e.Kind, e.Value}] = e
}

func (b *Blacklist) IsPlateBlacklisted(_ context.Context, tenantID, plate string) (bool, error) {
	return b.active(tenantID, types.BlacklistPlate, plate), nil
}

func (b *Blacklist) IsPhoneBlacklisted(_ context.Context, tenantID, phone string) (bool, error) {
	return b.active(tenantID, types.BlacklistPhone, phone), nil
}

func (b *Blacklist) active(tenantID string, kind types.BlacklistKind, value string) bool {
	if value == "" {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[blacklistKey{tenantID, kind, value}]
	return ok && e.Active
}
