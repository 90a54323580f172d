package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"TriPot/config"
	"TriPot/internal/game/engine"
	"TriPot/internal/game/table"
	"TriPot/internal/session"
	"TriPot/internal/store"
	"TriPot/internal/wallet"
	"TriPot/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHub records private messages per user.
type mockHub struct {
	mu    sync.Mutex
	users map[string][]websocket.OutgoingMessage
}

func newMockHub() *mockHub {
	return &mockHub{users: make(map[string][]websocket.OutgoingMessage)}
}

func (h *mockHub) Broadcast(msg websocket.OutgoingMessage)                  {}
func (h *mockHub) SendToTable(tableID string, msg websocket.OutgoingMessage) {}

func (h *mockHub) SendToUser(userID string, msg websocket.OutgoingMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[userID] = append(h.users[userID], msg)
}

func (h *mockHub) sent(userID string) []websocket.OutgoingMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]websocket.OutgoingMessage(nil), h.users[userID]...)
}

type okWallet struct{}

func (okWallet) Debit(ctx context.Context, acct wallet.Account, amount int64) (*wallet.Receipt, error) {
	return &wallet.Receipt{TransactionID: "tx", At: time.Now()}, nil
}

func (okWallet) Credit(ctx context.Context, acct wallet.Account, amount int64) (*wallet.Receipt, error) {
	return &wallet.Receipt{TransactionID: "cr", At: time.Now()}, nil
}

// fakeSeats keeps sessions and seats in maps.
type fakeSeats struct {
	mu       sync.Mutex
	sessions map[string]store.Session
	left     []string
}

func newFakeSeats(users ...string) *fakeSeats {
	f := &fakeSeats{sessions: make(map[string]store.Session)}
	for _, u := range users {
		f.sessions[u] = store.Session{UserID: u, Token: u}
	}
	return f
}

func (f *fakeSeats) Lookup(ctx context.Context, userID string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[userID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSeats) JoinTable(ctx context.Context, tableID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[userID]
	if !ok {
		return nil, session.ErrNotFound
	}
	s.TableID = tableID
	f.sessions[userID] = s
	return []string{userID}, nil
}

func (f *fakeSeats) LeaveTable(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, userID)
	s := f.sessions[userID]
	s.TableID = ""
	f.sessions[userID] = s
	return nil
}

func newManager(users ...string) (*TableManager, *mockHub, *fakeSeats) {
	hub := newMockHub()
	seats := newFakeSeats(users...)
	g := config.Default().Game
	g.Phases = config.Phases{Betting: 1000}
	return NewTableManager(Deps{
		Game:   g,
		Hub:    hub,
		Wallet: okWallet{},
		Seats:  seats,
		Tick:   time.Millisecond,
	}), hub, seats
}

func incoming(user, event string, data any) websocket.IncomingMessage {
	raw, _ := json.Marshal(data)
	return websocket.IncomingMessage{From: user, Event: event, Data: raw}
}

func TestCreateDuplicateTable(t *testing.T) {
	mgr, _, _ := newManager()
	_, err := mgr.Create(table.Table{ID: "main"})
	require.NoError(t, err)

	_, err = mgr.Create(table.Table{ID: "main"})
	assert.ErrorIs(t, err, ErrTableExists)

	_, err = mgr.Create(table.Table{})
	assert.Error(t, err)

	eng, ok := mgr.Get("main")
	require.True(t, ok)
	assert.Equal(t, "tripot", eng.Table().GameID)
}

func TestOpenStartStop(t *testing.T) {
	mgr, _, _ := newManager()
	ctx := context.Background()
	_, err := mgr.Open(ctx, table.Table{ID: "main"})
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Start(ctx, "main"), engine.ErrAlreadyRunning)
	assert.ErrorIs(t, mgr.Start(ctx, "nope"), ErrTableUnknown)
	assert.ErrorIs(t, mgr.Stop("nope"), ErrTableUnknown)

	require.NoError(t, mgr.Stop("main"))
	eng, _ := mgr.Get("main")
	assert.False(t, eng.Status().Running)
	require.NoError(t, mgr.Start(ctx, "main"))
	mgr.StopAll()
	assert.False(t, eng.Status().Running)
}

func TestConcurrentCreate(t *testing.T) {
	mgr, _, _ := newManager()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mgr.Create(table.Table{ID: fmt.Sprintf("t%d", i%5)})
		}()
	}
	wg.Wait()

	st := mgr.Statuses()
	require.Len(t, st, 5)
	assert.Equal(t, "t0", st[0].TableID)
	assert.Equal(t, "t4", st[4].TableID)
}

func TestPlaceBetRoutesToSeatedTable(t *testing.T) {
	mgr, _, seats := newManager("u1", "u2")
	main, _ := mgr.Create(table.Table{ID: "main"})
	vip, _ := mgr.Create(table.Table{ID: "vip", GameID: "side"})
	ctx := context.Background()

	mgr.HandlePlayerMessage(ctx, incoming("u1", EventJoinTable, map[string]string{"tableId": "vip"}))
	seats.mu.Lock()
	assert.Equal(t, "vip", seats.sessions["u1"].TableID)
	seats.mu.Unlock()

	mgr.HandlePlayerMessage(ctx, incoming("u1", EventPlaceBet, engine.BetRequest{Amount: 30, PotIndex: 1}))
	mgr.HandlePlayerMessage(ctx, incoming("u2", EventPlaceBet, engine.BetRequest{Amount: 70, PotIndex: 2}))

	assert.Equal(t, map[string]int64{"0": 0, "1": 30, "2": 0}, vip.Status().Totals)
	assert.Equal(t, map[string]int64{"0": 0, "1": 0, "2": 70}, main.Status().Totals)

	mgr.HandlePlayerMessage(ctx, incoming("u1", EventLeaveTable, nil))
	mgr.HandlePlayerMessage(ctx, incoming("u1", EventPlaceBet, engine.BetRequest{Amount: 5, PotIndex: 0}))
	assert.Equal(t, map[string]int64{"0": 5, "1": 0, "2": 70}, main.Status().Totals)
	assert.Equal(t, []string{"u1"}, seats.left)
}

func TestPlaceBatchBetMessage(t *testing.T) {
	mgr, hub, _ := newManager("u1")
	main, _ := mgr.Create(table.Table{ID: "main"})

	mgr.HandlePlayerMessage(context.Background(), incoming("u1", EventPlaceBatchBet, map[string]any{
		"bets": []engine.BetRequest{{Amount: 1, PotIndex: 0}, {Amount: 2, PotIndex: 0}},
	}))
	assert.Equal(t, int64(3), main.Status().Totals["0"])

	var batch []websocket.OutgoingMessage
	for _, m := range hub.sent("u1") {
		if m.Event == engine.EventBatchBetResponse {
			batch = append(batch, m)
		}
	}
	require.Len(t, batch, 1)
	assert.Equal(t, 2, batch[0].Data.(engine.BatchAck).Count)
}

func TestMalformedAndUnknownMessages(t *testing.T) {
	mgr, hub, seats := newManager("u1")
	_, _ = mgr.Create(table.Table{ID: "main"})
	ctx := context.Background()

	mgr.HandlePlayerMessage(ctx, websocket.IncomingMessage{From: "u1", Event: EventPlaceBet, Data: json.RawMessage(`"oops"`)})
	sent := hub.sent("u1")
	require.Len(t, sent, 1)
	assert.Equal(t, engine.EventBetResponse, sent[0].Event)
	assert.False(t, sent[0].Data.(engine.Ack).Success)

	mgr.HandlePlayerMessage(ctx, incoming("u1", EventJoinTable, map[string]string{"tableId": "missing"}))
	seats.mu.Lock()
	assert.Empty(t, seats.sessions["u1"].TableID)
	seats.mu.Unlock()

	mgr.HandlePlayerMessage(ctx, incoming("u1", "chat", "hi"))
	assert.Len(t, hub.sent("u1"), 1)
}

func TestHandlerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr, _, _ := newManager()
	defer mgr.StopAll()
	h := NewHandler(mgr)

	r := gin.New()
	r.GET("/tables", h.List)
	r.GET("/tables/:id", h.Status)
	r.POST("/tables", h.Open)
	r.POST("/tables/:id/start", h.Start)
	r.POST("/tables/:id/stop", h.Stop)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, do("POST", "/tables", `{"tableId":"vip","gameId":"side"}`).Code)
	assert.Equal(t, http.StatusConflict, do("POST", "/tables", `{"tableId":"vip"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do("POST", "/tables", `{}`).Code)
	assert.Equal(t, http.StatusConflict, do("POST", "/tables/vip/start", "").Code)
	assert.Equal(t, http.StatusNotFound, do("POST", "/tables/nope/start", "").Code)

	w := do("GET", "/tables/vip", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st engine.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "vip", st.TableID)
	assert.Equal(t, "side", st.GameID)
	assert.True(t, st.Running)

	assert.Equal(t, http.StatusOK, do("POST", "/tables/vip/stop", "").Code)
	assert.Equal(t, http.StatusNotFound, do("GET", "/tables/nope", "").Code)

	w = do("GET", "/tables", "")
	var list []engine.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.False(t, list[0].Running)
}
