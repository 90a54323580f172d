package websocket

import (
	"sync"

	"TriPot/internal/utils"
)

type Hub struct {
	users      map[string]map[*Client]struct{} // userID -> connections
	groups     map[string]map[string]struct{}  // tableID -> userIDs
	register   chan *Client
	unregister chan *Client
	publish    chan publishReq
	incoming   chan IncomingMessage

	// 回调都在 hub goroutine 之外执行，同一用户的回调按顺序串行
	OnIncoming   func(IncomingMessage)
	OnConnect    func(*Client)
	OnDisconnect func(*Client)
	lanes        *lanes

	quit      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

type target int

const (
	toAll target = iota
	toUser
	toTable
)

type publishReq struct {
	to      target
	key     string
	Message OutgoingMessage
}

func NewHub() *Hub {
	return &Hub{
		users:      make(map[string]map[*Client]struct{}),
		groups:     make(map[string]map[string]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan publishReq, 256),
		incoming:   make(chan IncomingMessage, 64),
		lanes:      newLanes(),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	utils.Log.Info("Hub started")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			conns, ok := h.users[c.UserID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.users[c.UserID] = conns
			}
			conns[c] = struct{}{}
			utils.Log.Debug("Hub.register", "user", c.UserID, "conns", len(conns), "users", len(h.users))
			h.mu.Unlock()
			if h.OnConnect != nil {
				h.lanes.run(c.UserID, func() { h.OnConnect(c) })
			}

		case c := <-h.unregister:
			h.mu.Lock()
			conns, ok := h.users[c.UserID]
			_, live := conns[c]
			if ok && live {
				delete(conns, c)
				close(c.Send)
				if len(conns) == 0 {
					delete(h.users, c.UserID)
				}
				utils.Log.Debug("Hub.unregister", "user", c.UserID, "users", len(h.users))
			}
			h.mu.Unlock()
			if live && h.OnDisconnect != nil {
				h.lanes.run(c.UserID, func() { h.OnDisconnect(c) })
			}

		case req := <-h.publish:
			h.deliver(req)

		case msg := <-h.incoming:
			// 交给游戏层处理，不阻塞 hub；排在该用户的 connect 之后
			if h.OnIncoming != nil {
				h.lanes.run(msg.From, func() { h.OnIncoming(msg) })
			}

		case <-h.quit:
			h.mu.Lock()
			for _, conns := range h.users {
				for c := range conns {
					close(c.Send)
				}
			}
			h.users = make(map[string]map[*Client]struct{})
			h.mu.Unlock()
			utils.Log.Info("Hub stopped")
			return
		}
	}
}

func (h *Hub) deliver(req publishReq) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch req.to {
	case toAll:
		for _, conns := range h.users {
			h.sendAll(conns, req.Message)
		}
	case toUser:
		h.sendAll(h.users[req.key], req.Message)
	case toTable:
		for userID := range h.groups[req.key] {
			h.sendAll(h.users[userID], req.Message)
		}
	}
}

func (h *Hub) sendAll(conns map[*Client]struct{}, msg OutgoingMessage) {
	for c := range conns {
		select {
		case c.Send <- msg:
		default:
			utils.Log.Warn("Dropping message for slow client", "user", c.UserID, "event", msg.Event)
		}
	}
}

func (h *Hub) enqueue(req publishReq) {
	select {
	case h.publish <- req:
	case <-h.quit:
	}
}

// Broadcast to every connected user
func (h *Hub) Broadcast(msg OutgoingMessage) {
	h.enqueue(publishReq{to: toAll, Message: msg})
}

// SendToUser delivers to all connections of one user
func (h *Hub) SendToUser(userID string, msg OutgoingMessage) {
	h.enqueue(publishReq{to: toUser, key: userID, Message: msg})
}

// SendToTable delivers to every user seated in the table group
func (h *Hub) SendToTable(tableID string, msg OutgoingMessage) {
	h.enqueue(publishReq{to: toTable, key: tableID, Message: msg})
}

func (h *Hub) JoinGroup(tableID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[tableID]
	if !ok {
		g = make(map[string]struct{})
		h.groups[tableID] = g
	}
	g[userID] = struct{}{}
}

func (h *Hub) LeaveGroup(tableID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[tableID]; ok {
		delete(g, userID)
		if len(g) == 0 {
			delete(h.groups, tableID)
		}
	}
}

// Connections reports how many live connections a user has.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}
