package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-core/internal/observability"
)

// LastSeenStore persists the moment a user went offline.
type LastSeenStore interface {
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Departure describes the outcome of removing a connection.
type Departure struct {
	Offline  bool
	LastSeen time.Time
	epoch    uint64
}

// Registry maps each online user to their live connection ids. A user is
// online iff the set is non-empty.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[string]struct{}
	epochs map[string]uint64

	store  LastSeenStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry constructs a Registry.
func NewRegistry(store LastSeenStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:  make(map[string]map[string]struct{}),
		epochs: make(map[string]uint64),
		store:  store,
		logger: logger.With(zap.String("component", "presence")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register adds connID to the user's set and reports whether the user just
// came online.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	set, ok := r.conns[userID]
	cameOnline := !ok
	if cameOnline {
		set = make(map[string]struct{})
		r.conns[userID] = set
		r.epochs[userID]++
	}
	set[connID] = struct{}{}
	online := len(r.conns)
	r.mu.Unlock()

	observability.SetOnlineUsers(online)
	return cameOnline
}

// Deregister removes connID. When it was the user's last connection the user
// goes offline and last-seen is persisted. Removing an unknown connection is
// a no-op.
func (r *Registry) Deregister(ctx context.Context, userID, connID string) (Departure, error) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		r.mu.Unlock()
		return Departure{}, nil
	}
	if _, present := set[connID]; !present {
		r.mu.Unlock()
		return Departure{}, nil
	}
	delete(set, connID)
	if len(set) > 0 {
		r.mu.Unlock()
		return Departure{}, nil
	}
	delete(r.conns, userID)
	epoch := r.epochs[userID]
	lastSeen := r.now()
	online := len(r.conns)
	r.mu.Unlock()

	observability.SetOnlineUsers(online)

	departure := Departure{Offline: true, LastSeen: lastSeen, epoch: epoch}
	if r.store == nil {
		return departure, nil
	}
	if err := r.store.UpdateLastSeen(ctx, userID, lastSeen); err != nil {
		r.logger.Warn("persist last seen failed", zap.String("user_id", userID), zap.Error(err))
		return departure, err
	}
	return departure, nil
}

// StillOffline reports whether the user has not reconnected since the
// departure was recorded.
func (r *Registry) StillOffline(userID string, d Departure) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, online := r.conns[userID]
	return !online && r.epochs[userID] == d.epoch
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// ConnectionsOf returns a snapshot of the user's live connection ids.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OnlineUsers returns a sorted snapshot of online user ids.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
