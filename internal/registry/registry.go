package registry

import (
	"context"
	"sync"

	"github.com/openvenue/seatfloor/internal/errors"
	"github.com/openvenue/seatfloor/internal/models"
	"github.com/openvenue/seatfloor/pkg/logger"
)

// Registry tracks one Session record per live connection. It owns the
// session map; the records themselves carry their own lock for the
// reservation and seat-pick fields.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	l        logger.Logger
}

func New(l logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*models.Session),
		l:        l,
	}
}

func (r *Registry) Create(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		r.l.Warnf(ctx, "registry.Create: %v: %s", errors.ErrDuplicateSession, id)
		return nil, errors.ErrDuplicateSession
	}

	ss := models.NewSession(id)
	r.sessions[id] = ss

	r.l.Debugf(ctx, "Session created: %s (total: %d)", id, len(r.sessions))

	return ss, nil
}

func (r *Registry) Get(id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ss, ok := r.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return ss, nil
}

// Destroy removes the session record. The disconnect handler must have
// already released any held reservation and evicted the session from its
// room or wait queue.
func (r *Registry) Destroy(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)

	r.l.Debugf(ctx, "Session destroyed: %s (total: %d)", id, len(r.sessions))
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// AddPendingSeat tentatively picks a seat. Picking an already-picked seat
// is a no-op.
func (r *Registry) AddPendingSeat(id string, seatID int64) error {
	ss, err := r.Get(id)
	if err != nil {
		return err
	}

	ss.Lock()
	defer ss.Unlock()
	ss.PendingSeatIDs[seatID] = struct{}{}

	return nil
}

// RemovePendingSeat drops a tentative pick. Removing an absent seat is a
// no-op.
func (r *Registry) RemovePendingSeat(id string, seatID int64) error {
	ss, err := r.Get(id)
	if err != nil {
		return err
	}

	ss.Lock()
	defer ss.Unlock()
	delete(ss.PendingSeatIDs, seatID)

	return nil
}
