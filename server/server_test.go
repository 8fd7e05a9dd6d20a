package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/existflow/collabtask/internal/client"
	"github.com/existflow/collabtask/internal/config"
	"github.com/existflow/collabtask/internal/model"
	"github.com/existflow/collabtask/internal/protocol"
	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DBDriver = "sqlite"
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "collab.db")
	cfg.SendBufferSize = 256

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, ts
}

func connect(t *testing.T, url, username string) *client.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := client.Connect(ctx, url, username, "")
	if err != nil {
		t.Fatalf("connect %s: %v", username, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestRESTStatusCodes(t *testing.T) {
	srv, ts := newTestServer(t)
	api := ts.URL + "/api/tasks"

	code, body := doJSON(t, http.MethodPost, api, map[string]any{"title": ""})
	assert.Equal(t, code, http.StatusBadRequest)
	assert.NotEqual(t, body["error"], nil)

	code, body = doJSON(t, http.MethodPost, api, map[string]any{"title": "Write spec", "priority": "high"})
	assert.Equal(t, code, http.StatusCreated)
	assert.Equal(t, body["id"], float64(1))
	assert.Equal(t, body["status"], "todo")

	code, _ = doJSON(t, http.MethodPost, api, map[string]any{"title": "x", "status": "blocked"})
	assert.Equal(t, code, http.StatusBadRequest)

	code, _ = doJSON(t, http.MethodPut, api+"/42", map[string]any{"title": "ghost"})
	assert.Equal(t, code, http.StatusNotFound)

	code, _ = doJSON(t, http.MethodGet, api+"/42", nil)
	assert.Equal(t, code, http.StatusNotFound)

	code, body = doJSON(t, http.MethodGet, api+"/abc", nil)
	assert.Equal(t, code, http.StatusBadRequest)
	assert.Equal(t, body["error"], "invalid task id")

	for i := 0; i < 2; i++ {
		code, _ = doJSON(t, http.MethodDelete, api+"/1", nil)
		assert.Equal(t, code, http.StatusOK)
	}

	resp, err := http.Get(api)
	assert.Equal(t, err, nil)
	var items []model.Item
	json.NewDecoder(resp.Body).Decode(&items)
	resp.Body.Close()
	assert.Equal(t, len(items), 0)

	code, body = doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, code, http.StatusOK)
	assert.Equal(t, body["status"], "ok")

	srv.db.Close()
	code, body = doJSON(t, http.MethodPost, api, map[string]any{"title": "x"})
	assert.Equal(t, code, http.StatusServiceUnavailable)
	assert.Equal(t, body["error"], "store unavailable, try again")
}

func TestCreateThenUpdateReachesBothClients(t *testing.T) {
	_, ts := newTestServer(t)
	a := connect(t, ts.URL, "ana")
	b := connect(t, ts.URL, "ben")
	ctx := context.Background()

	created, err := a.Create(ctx, model.Fields{Title: "Write spec", Priority: model.PriorityHigh})
	assert.Equal(t, err, nil)
	assert.Equal(t, created.ID, int64(1))
	assert.Equal(t, created.AssignedUser, "ana")

	eventually(t, "b sees item 1", func() bool {
		it, ok := b.View.Item(1)
		return ok && it.Status == model.StatusTodo && it.Priority == model.PriorityHigh
	})
	eventually(t, "a sees its own item", func() bool {
		_, ok := a.View.Item(1)
		return ok
	})

	_, err = b.SetStatus(ctx, 1, model.StatusDone)
	assert.Equal(t, err, nil)

	for name, s := range map[string]*client.Session{"a": a, "b": b} {
		s := s
		eventually(t, name+" sees item 1 done", func() bool {
			it, ok := s.View.Item(1)
			return ok && it.Status == model.StatusDone && it.AssignedUser == "ben"
		})
	}
	assert.Equal(t, len(a.View.Items()), 1)
}

func TestPresenceJoinsAndLeave(t *testing.T) {
	_, ts := newTestServer(t)

	const n = 5
	sessions := make([]*client.Session, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sessions[i], errs[i] = client.Connect(ctx, ts.URL, fmt.Sprintf("user%d", i), "")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("connect user%d: %v", i, err)
		}
		t.Cleanup(func() { sessions[i].Close() })
	}

	for i, s := range sessions {
		s := s
		eventually(t, fmt.Sprintf("session %d sees %d users", i, n), func() bool {
			return len(s.View.Presence()) == n
		})
		assert.Equal(t, model.InPalette(s.Self.Color), true)
	}

	leaving := sessions[2]
	leaving.Close()

	for i, s := range sessions {
		if i == 2 {
			continue
		}
		s := s
		eventually(t, fmt.Sprintf("session %d sees %d users", i, n-1), func() bool {
			users := s.View.Presence()
			return len(users) == n-1 && !slices.ContainsFunc(users, func(e model.PresenceEntry) bool {
				return e.ConnectionID == leaving.Self.ConnectionID
			})
		})
	}

	users, err := client.NewAPI(ts.URL).Users(context.Background())
	assert.Equal(t, err, nil)
	assert.Equal(t, len(users), n-1)
}

func TestJoinWithoutUsernameIsRejected(t *testing.T) {
	_, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Connect(ctx, ts.URL, "  ", "")
	assert.NotEqual(t, err, nil)
}

func TestSocketUpdateBroadcastsStoredRecord(t *testing.T) {
	_, ts := newTestServer(t)
	a := connect(t, ts.URL, "ana")
	b := connect(t, ts.URL, "ben")
	ctx := context.Background()

	item, _ := a.Create(ctx, model.Fields{Title: "socket me"})
	eventually(t, "b sees item", func() bool { _, ok := b.View.Item(item.ID); return ok })

	item.Status = model.StatusInProgress
	item.Title = "  socket me  "
	assert.Equal(t, a.Conn.UpdateItem(item), nil)

	eventually(t, "b sees in-progress", func() bool {
		it, _ := b.View.Item(item.ID)
		return it.Status == model.StatusInProgress && it.Title == "socket me"
	})
	eventually(t, "a sees in-progress", func() bool {
		it, _ := a.View.Item(item.ID)
		return it.Status == model.StatusInProgress
	})
}

func TestSocketUpdateSurvivesOriginClose(t *testing.T) {
	_, ts := newTestServer(t)
	a := connect(t, ts.URL, "ana")
	b := connect(t, ts.URL, "ben")
	ctx := context.Background()

	item, err := a.Create(ctx, model.Fields{Title: "hand off"})
	assert.Equal(t, err, nil)
	eventually(t, "b sees item", func() bool { _, ok := b.View.Item(item.ID); return ok })

	item.Status = model.StatusDone
	assert.Equal(t, a.Conn.UpdateItem(item), nil)
	a.Close()

	eventually(t, "b sees done", func() bool {
		it, _ := b.View.Item(item.ID)
		return it.Status == model.StatusDone
	})
	stored, err := b.API.Get(ctx, item.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, stored.Status, model.StatusDone)
}

func TestSocketUpdatesRefusedAfterShutdown(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, srv.beginMutation(), true)
	srv.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Equal(t, srv.Shutdown(ctx), nil)
	assert.Equal(t, srv.beginMutation(), false)
}

// dialJoined returns a raw connection that the server has registered
func dialJoined(t *testing.T, url, username string) *client.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	c.Join(username, "")
	next(t, c, protocol.TypeJoined)
	return c
}

// next returns the first message of type typ, failing on any error
// message seen before it. Presence snapshots are skipped.
func next(t *testing.T, c *client.Conn, typ string) protocol.Message {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-c.Events():
			if !ok {
				t.Fatalf("connection closed waiting for %s", typ)
			}
			if msg.Type == typ {
				return msg
			}
			if msg.Type == protocol.TypeError {
				t.Fatalf("unexpected error message: %s", msg.Data)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestSocketErrorsGoToOriginOnly(t *testing.T) {
	_, ts := newTestServer(t)
	a := dialJoined(t, ts.URL, "ana")
	b := dialJoined(t, ts.URL, "ben")

	assert.Equal(t, a.UpdateItem(model.Item{ID: 99, Title: "ghost"}), nil)

	var e protocol.ErrorPayload
	next(t, a, protocol.TypeError).Decode(&e)
	assert.Equal(t, e.Code, protocol.CodeNotFound)

	// an error broadcast to b would be queued ahead of this relay
	assert.Equal(t, a.Typing(map[string]string{"username": "ana"}), nil)
	msg := next(t, b, protocol.TypeTyping)
	assert.Equal(t, string(msg.Data), `{"username":"ana"}`)
}

func TestTypingIsNotEchoed(t *testing.T) {
	_, ts := newTestServer(t)
	a := dialJoined(t, ts.URL, "ana")
	b := dialJoined(t, ts.URL, "ben")

	a.Typing("first")
	next(t, b, protocol.TypeTyping)

	b.Typing("second")
	msg := next(t, a, protocol.TypeTyping)
	assert.Equal(t, string(msg.Data), `"second"`)
}

func TestMalformedSocketMessages(t *testing.T) {
	_, ts := newTestServer(t)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	assert.Equal(t, err, nil)
	defer ws.Close()

	for _, raw := range []string{
		`not json`,
		`{"type":"bogus"}`,
		`{"type":"join","data":{"username":""}}`,
		`{"type":"item-update","data":{"title":"no id"}}`,
	} {
		assert.Equal(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)), nil)

		var msg protocol.Message
		ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		assert.Equal(t, ws.ReadJSON(&msg), nil)
		assert.Equal(t, msg.Type, protocol.TypeError)
	}
}

func TestViewsConvergeWithStore(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	sessions := []*client.Session{
		connect(t, ts.URL, "ana"),
		connect(t, ts.URL, "ben"),
		connect(t, ts.URL, "cy"),
	}

	statuses := model.Statuses
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *client.Session) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(i), 7))
			for op := 0; op < 30; op++ {
				id := int64(rng.IntN(10) + 1)
				switch rng.IntN(3) {
				case 0:
					s.Create(ctx, model.Fields{Title: fmt.Sprintf("task %d-%d", i, op)})
				case 1:
					s.Update(ctx, id, model.Fields{
						Title:  fmt.Sprintf("edit %d-%d", i, op),
						Status: statuses[rng.IntN(len(statuses))],
					})
				case 2:
					s.Delete(ctx, id)
				}
			}
		}(i, s)
	}
	wg.Wait()

	want, err := client.NewAPI(ts.URL).List(ctx)
	assert.Equal(t, err, nil)

	sortByID := func(items []model.Item) []model.Item {
		slices.SortFunc(items, func(a, b model.Item) int { return int(a.ID - b.ID) })
		return items
	}
	want = sortByID(want)

	for i, s := range sessions {
		s := s
		eventually(t, fmt.Sprintf("session %d converges", i), func() bool {
			return equalItems(sortByID(s.View.Items()), want)
		})
	}
}

func TestConcurrentPriorityUpdatesAgree(t *testing.T) {
	_, ts := newTestServer(t)
	a := connect(t, ts.URL, "ana")
	b := connect(t, ts.URL, "ben")
	ctx := context.Background()

	item, _ := a.Create(ctx, model.Fields{Title: "contested"})

	var wg sync.WaitGroup
	for _, pair := range []struct {
		s *client.Session
		p model.Priority
	}{{a, model.PriorityLow}, {b, model.PriorityHigh}} {
		wg.Add(1)
		go func(s *client.Session, p model.Priority) {
			defer wg.Done()
			s.Update(ctx, item.ID, model.Fields{Title: "contested", Priority: p})
		}(pair.s, pair.p)
	}
	wg.Wait()

	stored, err := client.NewAPI(ts.URL).Get(ctx, item.ID)
	assert.Equal(t, err, nil)

	for _, s := range []*client.Session{a, b} {
		s := s
		eventually(t, "view matches store", func() bool {
			it, ok := s.View.Item(item.ID)
			return ok && it.Priority == stored.Priority && it.AssignedUser == stored.AssignedUser
		})
	}
}

func equalItems(a, b []model.Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Title != y.Title || x.Status != y.Status ||
			x.Priority != y.Priority || x.AssignedUser != y.AssignedUser ||
			!x.CreatedAt.Equal(y.CreatedAt) {
			return false
		}
	}
	return true
}
