package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TriPot/internal/store"
	"TriPot/internal/utils"
	"TriPot/internal/websocket"
)

var ErrNotFound = errors.New("session: not found")

const EventTableUpdate = "tableUpdate"

// Delivery is the part of the hub the registry drives.
type Delivery interface {
	JoinGroup(tableID, userID string)
	LeaveGroup(tableID, userID string)
	SendToTable(tableID string, msg websocket.OutgoingMessage)
}

// Registry maps users to their session (token, tenant, profile) and to the
// table they sit at.
type Registry struct {
	sessions store.SessionRepo
	seats    SeatRepo
	hub      Delivery

	mu sync.Mutex
	// last identity seen per connected user, so a user who left a table can
	// sit down again without reconnecting
	known map[string]store.Session
	// live connection ids per user
	conns map[string]map[string]struct{}
}

func NewRegistry(sessions store.SessionRepo, seats SeatRepo, hub Delivery) *Registry {
	return &Registry{
		sessions: sessions,
		seats:    seats,
		hub:      hub,
		known:    make(map[string]store.Session),
		conns:    make(map[string]map[string]struct{}),
	}
}

// Connect upserts the user's session; a newer connection replaces the old one.
func (r *Registry) Connect(ctx context.Context, s store.Session) error {
	if s.UserID == "" {
		return errors.New("session: empty user id")
	}
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = time.Now()
	}
	r.mu.Lock()
	if prev, ok := r.known[s.UserID]; ok && s.TableID == "" {
		s.TableID = prev.TableID
	}
	r.known[s.UserID] = s
	live, ok := r.conns[s.UserID]
	if !ok {
		live = make(map[string]struct{})
		r.conns[s.UserID] = live
	}
	live[s.ConnID] = struct{}{}
	r.mu.Unlock()

	if err := r.sessions.UpsertSession(ctx, s); err != nil {
		return err
	}
	if s.TableID != "" {
		r.hub.JoinGroup(s.TableID, s.UserID)
	}
	utils.Log.Debug("Session connected", "user", s.UserID, "tenant", s.Tenant)
	return nil
}

// Disconnect ends connection connID. The session and seat are dropped only
// once none of the user's connections is left.
func (r *Registry) Disconnect(ctx context.Context, userID, connID string) error {
	r.mu.Lock()
	live := r.conns[userID]
	delete(live, connID)
	if len(live) > 0 {
		r.mu.Unlock()
		utils.Log.Debug("Session kept, user still connected", "user", userID, "conns", len(live))
		return nil
	}
	delete(r.conns, userID)
	delete(r.known, userID)
	r.mu.Unlock()

	if err := r.sessions.DeleteSession(ctx, userID); err != nil {
		return err
	}
	return r.unseat(ctx, userID)
}

// Lookup returns the live session of userID or ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, userID string) (*store.Session, error) {
	s, err := r.sessions.FindSession(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return s, err
}

// JoinTable seats the user, moves them out of any other table and pushes a
// tableUpdate to every table involved.
func (r *Registry) JoinTable(ctx context.Context, tableID, userID string) ([]string, error) {
	if tableID == "" {
		return nil, errors.New("session: empty table id")
	}
	r.mu.Lock()
	s, ok := r.known[userID]
	if ok {
		s.TableID = tableID
		r.known[userID] = s
	}
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("join %s: %w", tableID, ErrNotFound)
	}
	if err := r.sessions.UpsertSession(ctx, s); err != nil {
		return nil, err
	}

	prev, err := r.seats.Seat(ctx, tableID, userID)
	if err != nil {
		return nil, err
	}
	if prev != "" {
		r.hub.LeaveGroup(prev, userID)
		r.publishTable(ctx, prev)
	}
	r.hub.JoinGroup(tableID, userID)
	return r.publishTable(ctx, tableID), nil
}

// LeaveTable unseats the user and destroys their persisted session; a new
// JoinTable recreates it from the identity of the open connection.
func (r *Registry) LeaveTable(ctx context.Context, userID string) error {
	r.mu.Lock()
	if s, ok := r.known[userID]; ok {
		s.TableID = ""
		r.known[userID] = s
	}
	r.mu.Unlock()

	if err := r.sessions.DeleteSession(ctx, userID); err != nil {
		return err
	}
	return r.unseat(ctx, userID)
}

func (r *Registry) Players(ctx context.Context, tableID string) ([]string, error) {
	return r.seats.Players(ctx, tableID)
}

func (r *Registry) unseat(ctx context.Context, userID string) error {
	tableID, err := r.seats.Unseat(ctx, userID)
	if err != nil {
		return err
	}
	if tableID != "" {
		r.hub.LeaveGroup(tableID, userID)
		r.publishTable(ctx, tableID)
	}
	return nil
}

func (r *Registry) publishTable(ctx context.Context, tableID string) []string {
	users, err := r.seats.Players(ctx, tableID)
	if err != nil {
		utils.Log.Error("List table players failed", "table", tableID, "err", err)
		return nil
	}
	r.hub.SendToTable(tableID, websocket.OutgoingMessage{
		Event: EventTableUpdate,
		Data:  map[string]any{"tableId": tableID, "users": users},
	})
	return users
}
