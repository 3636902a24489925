package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	msgseq "AreaLink/module/chat/message"
	"AreaLink/module/chat/room"
	"AreaLink/module/chat/store"
	errs "AreaLink/tools/errs"
)

type staticTokens map[string]string

func (s staticTokens) Validate(token string) (string, error) {
	if uid, ok := s[token]; ok {
		return uid, nil
	}
	return "", errs.ErrUnauthorized.WithDetail("token rejected")
}

type openPolicy struct{}

func (openPolicy) CanView(context.Context, string, string) (bool, error) { return true, nil }

// fakeMirror 模拟其他网关节点写入的共享在线位。
type fakeMirror struct {
	gateways map[string]string
	lastSeen map[string]time.Time
}

func (m *fakeMirror) Online(_ context.Context, userID string) error {
	m.gateways[userID] = "gw-test"
	return nil
}

func (m *fakeMirror) Offline(_ context.Context, userID string, at time.Time) error {
	delete(m.gateways, userID)
	m.lastSeen[userID] = at
	return nil
}

func (m *fakeMirror) Lookup(_ context.Context, userID string) (string, bool, error) {
	gw, ok := m.gateways[userID]
	return gw, ok, nil
}

func (m *fakeMirror) LastSeen(_ context.Context, userID string) (time.Time, error) {
	return m.lastSeen[userID], nil
}

func newQueryServer(t *testing.T, mirror *fakeMirror) (*gin.Engine, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := store.NewMemory()
	srv := NewServer(ServerConf{
		GatewayID: "gw-test",
		Manager:   ManagerConf{SweepEvery: time.Hour},
	}, ServerDeps{
		Rooms:    room.NewManager(mem),
		Messages: msgseq.NewSequencer(store.MemoryMessages{Memory: mem}, mem),
		Friends:  mem,
		Policy:   openPolicy{},
		Tokens:   staticTokens{"tok-u1": "u1"},
		Mirror:   mirror,
	})
	t.Cleanup(srv.Close)
	r := gin.New()
	srv.MountRoutes(r)
	return r, mem
}

func getJSON(t *testing.T, r *gin.Engine, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer tok-u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("bad json %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, body
}

func TestPresenceEndpointUsesSharedMirror(t *testing.T) {
	lastSeen := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	mirror := &fakeMirror{
		gateways: map[string]string{"u2": "gw-other"},
		lastSeen: map[string]time.Time{"u3": lastSeen},
	}
	r, mem := newQueryServer(t, mirror)
	mem.SetFriends("u1", "u2")
	mem.SetFriends("u1", "u3")

	// u2 挂在别的网关节点上：本地没见过，但镜像说在线
	code, body := getJSON(t, r, "/api/presence/u2")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["isOnline"] != true {
		t.Fatalf("body = %v, want isOnline true via mirror", body)
	}

	// u3 离线：lastSeenAt 从镜像补
	code, body = getJSON(t, r, "/api/presence/u3")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["isOnline"] != false {
		t.Fatalf("body = %v, want offline", body)
	}
	ms, ok := body["lastSeenAt"].(float64)
	if !ok || int64(ms) != lastSeen.UnixMilli() {
		t.Fatalf("lastSeenAt = %v, want %d", body["lastSeenAt"], lastSeen.UnixMilli())
	}
}

func TestPresenceEndpointRejectsNonFriends(t *testing.T) {
	mirror := &fakeMirror{gateways: map[string]string{}, lastSeen: map[string]time.Time{}}
	r, _ := newQueryServer(t, mirror)

	code, body := getJSON(t, r, "/api/presence/stranger")
	if code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body %v)", code, body)
	}
}
