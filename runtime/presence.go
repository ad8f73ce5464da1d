package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"

	"github.com/go-playground/validator/v10"
)

type presenceEntry struct {
	status   domain.Status // what observers were last told
	lastSeen time.Time
	// busy is explicit and survives connection churn, only another explicit post clears it
	busy         bool
	offlineTimer *time.Timer
}

// PresenceTracker derives online/busy/offline per user from registry membership and explicit posts.
// State lives in memory only: after a restart every user is offline until they connect.
//
// Lock order is presence then registry. Broadcasts happen once the presence lock is
// released because a pruned recipient calls back into ConnectionClosed.
type PresenceTracker struct {
	mu           sync.Mutex
	log          *slog.Logger
	registry     contract.Registry
	broadcaster  contract.Broadcaster
	now          chat.Clock
	offlineGrace time.Duration
	validate     *validator.Validate
	users        map[string]*presenceEntry
}

func NewPresenceTracker(log *slog.Logger, registry contract.Registry, broadcaster contract.Broadcaster,
	now chat.Clock, offlineGrace time.Duration) *PresenceTracker {
	return &PresenceTracker{
		log:          log,
		registry:     registry,
		broadcaster:  broadcaster,
		now:          now,
		offlineGrace: offlineGrace,
		validate:     validator.New(),
		users:        make(map[string]*presenceEntry),
	}
}

// SetStatus applies an explicit status post and broadcasts it to everyone but the poster's connection.
func (p *PresenceTracker) SetStatus(ctx context.Context, userID string, cmd chat.SetStatusCommand) error {
	if err := p.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidStatus, err)
	}
	s := domain.Status(cmd.Status)

	p.mu.Lock()
	entry := p.entry(userID)
	entry.stopTimer()
	entry.busy = s == domain.Busy
	entry.status = s
	entry.lastSeen = p.now()
	presence := entry.presence(userID)
	p.mu.Unlock()

	p.log.Debug("Status posted", "user_id", userID, "status", s)
	p.broadcaster.Broadcast(ctx, event.FromPresence(presence), cmd.ConnectionID)
	return nil
}

// ConnectionOpened announces a user's first connection as online, or busy when the user chose busy.
func (p *PresenceTracker) ConnectionOpened(conn contract.LiveConnection, firstForUser bool) {
	if !firstForUser {
		return
	}
	userID := conn.UserID()

	p.mu.Lock()
	// The connection may already be gone when its open is observed: a late online would
	// outlive the offline announced by its close
	if p.registry.ConnectionsForUser(userID) == 0 {
		p.mu.Unlock()
		p.log.Debug("Connection closed before being announced", "connection_id", conn.ID(), "user_id", userID)
		return
	}
	entry := p.entry(userID)
	entry.stopTimer()
	target := domain.Online
	if entry.busy {
		target = domain.Busy
	}
	entry.lastSeen = p.now()
	if entry.status == target {
		// Reconnected within the grace window, observers never saw the user leave
		p.mu.Unlock()
		return
	}
	entry.status = target
	presence := entry.presence(userID)
	p.mu.Unlock()

	p.broadcaster.Broadcast(context.Background(), event.FromPresence(presence), conn.ID())
}

// ConnectionClosed turns a user offline once their last connection is gone.
func (p *PresenceTracker) ConnectionClosed(conn contract.LiveConnection, lastForUser bool) {
	if !lastForUser {
		return
	}
	userID := conn.UserID()
	if p.offlineGrace <= 0 {
		p.goOffline(userID)
		return
	}

	p.mu.Lock()
	entry := p.entry(userID)
	entry.stopTimer()
	entry.offlineTimer = time.AfterFunc(p.offlineGrace, func() { p.goOffline(userID) })
	p.mu.Unlock()
}

func (p *PresenceTracker) goOffline(userID string) {
	p.mu.Lock()
	entry := p.entry(userID)
	entry.offlineTimer = nil
	// A connection may have been registered since the close was observed
	if p.registry.ConnectionsForUser(userID) > 0 || entry.status == domain.Offline {
		p.mu.Unlock()
		return
	}
	entry.status = domain.Offline
	entry.lastSeen = p.now()
	presence := entry.presence(userID)
	p.mu.Unlock()

	p.broadcaster.Broadcast(context.Background(), event.FromPresence(presence), "")
}

// Snapshot lists every known user, sorted by id, for clients re-fetching state.
func (p *PresenceTracker) Snapshot() []domain.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make([]domain.Presence, 0, len(p.users))
	for userID, entry := range p.users {
		snapshot = append(snapshot, entry.presence(userID))
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].UserID < snapshot[j].UserID })
	return snapshot
}

func (p *PresenceTracker) Status(userID string) domain.Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.users[userID]; ok {
		return entry.presence(userID)
	}
	return domain.Presence{UserID: userID, Status: domain.Offline}
}

// entry must be called with the lock held.
func (p *PresenceTracker) entry(userID string) *presenceEntry {
	entry, ok := p.users[userID]
	if !ok {
		entry = &presenceEntry{status: domain.Offline}
		p.users[userID] = entry
	}
	return entry
}

func (e *presenceEntry) stopTimer() {
	if e.offlineTimer != nil {
		e.offlineTimer.Stop()
		e.offlineTimer = nil
	}
}

func (e *presenceEntry) presence(userID string) domain.Presence {
	return domain.Presence{UserID: userID, Status: e.status, LastSeen: e.lastSeen}
}
