package chat

import (
	"context"
	"sync"
	"testing"
	"time"
)

// presenceLog 记录上下线边沿，供断言“每个边沿恰好一次”。
type presenceLog struct {
	mu  sync.Mutex
	evt []string
}

func (p *presenceLog) UserOnline(_ context.Context, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evt = append(p.evt, "on:"+userID)
}

func (p *presenceLog) UserOffline(_ context.Context, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evt = append(p.evt, "off:"+userID)
}

func (p *presenceLog) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evt...)
}

func newTestManager(t *testing.T, conf ManagerConf) (*ConnManager, *presenceLog) {
	t.Helper()
	if conf.SweepEvery == 0 {
		conf.SweepEvery = time.Hour // 单测手动扫
	}
	m := NewConnManager(conf, "gw-test")
	t.Cleanup(m.Close)
	p := &presenceLog{}
	m.SetPresence(p)
	return m, p
}

func bind(t *testing.T, m *ConnManager, userID string) *Session {
	t.Helper()
	s := m.AddUnauth(nil)
	if err := m.BindUser(context.Background(), s.ID, userID); err != nil {
		t.Fatalf("bind %s: %v", userID, err)
	}
	return s
}

func TestOnlineIffSessionsNonEmpty(t *testing.T) {
	m, _ := newTestManager(t, ManagerConf{})
	ctx := context.Background()

	if m.IsOnline("u1") {
		t.Fatal("online with no sessions")
	}
	s1 := bind(t, m, "u1")
	s2 := bind(t, m, "u1")
	if !m.IsOnline("u1") {
		t.Fatal("offline with two sessions")
	}
	if got := len(m.SessionsFor("u1")); got != 2 {
		t.Fatalf("SessionsFor = %d, want 2", got)
	}

	m.Unregister(ctx, s1.ID)
	if !m.IsOnline("u1") {
		t.Fatal("offline while one session remains")
	}
	m.Unregister(ctx, s2.ID)
	if m.IsOnline("u1") {
		t.Fatal("online after last session gone")
	}
}

func TestPresenceEdgesFireOncePerTransition(t *testing.T) {
	m, p := newTestManager(t, ManagerConf{})
	ctx := context.Background()

	s1 := bind(t, m, "u1")
	s2 := bind(t, m, "u1") // 第二台设备不触发边沿
	m.Unregister(ctx, s1.ID)
	m.Unregister(ctx, s2.ID)
	m.Unregister(ctx, s2.ID) // 幂等，不产生第二个下线

	want := []string{"on:u1", "off:u1"}
	got := p.events()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestBindUserRejectsRebindAndUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, ManagerConf{})
	ctx := context.Background()

	s := bind(t, m, "u1")
	if err := m.BindUser(ctx, s.ID, "u2"); err == nil {
		t.Fatal("rebinding a bound session must fail")
	}
	if err := m.BindUser(ctx, "nope", "u1"); err == nil {
		t.Fatal("binding unknown session must fail")
	}
}

func TestMaxPerUserEvictsOldest(t *testing.T) {
	clock := time.Now()
	m, p := newTestManager(t, ManagerConf{
		MaxPerUser: 2,
		Clock: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})

	s1 := bind(t, m, "u1")
	s2 := bind(t, m, "u1")
	s3 := bind(t, m, "u1")

	if _, ok := m.Get(s1.ID); ok {
		t.Fatal("oldest session survived eviction")
	}
	select {
	case <-s1.Done():
	default:
		t.Fatal("evicted session not closed")
	}
	for _, s := range []*Session{s2, s3} {
		if _, ok := m.Get(s.ID); !ok {
			t.Fatalf("session %s missing", s.ID)
		}
	}
	// 挤下线不清空会话集，不该出现下线边沿
	for _, e := range p.events() {
		if e == "off:u1" {
			t.Fatal("eviction fired an offline edge")
		}
	}
}

func TestSweepExpiresThroughUnregister(t *testing.T) {
	base := time.Now()
	now := base
	m, p := newTestManager(t, ManagerConf{
		AuthTTL: time.Minute,
		Clock:   func() time.Time { return now },
	})
	s := bind(t, m, "u1")
	m.sweepOnce(base.Add(30 * time.Second))
	if _, ok := m.Get(s.ID); !ok {
		t.Fatal("session expired before TTL")
	}

	now = base.Add(50 * time.Second)
	if err := m.Heartbeat(s.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	m.sweepOnce(base.Add(90 * time.Second)) // 续期到 base+110s，还没到
	if _, ok := m.Get(s.ID); !ok {
		t.Fatal("heartbeat did not extend the TTL")
	}

	m.sweepOnce(base.Add(2 * time.Hour))
	if _, ok := m.Get(s.ID); ok {
		t.Fatal("expired session still registered")
	}
	got := p.events()
	if len(got) != 2 || got[1] != "off:u1" {
		t.Fatalf("events = %v, want [on:u1 off:u1]", got)
	}
}

func TestSendUserFanoutAndDropOldest(t *testing.T) {
	m, _ := newTestManager(t, ManagerConf{SendQueue: 2})

	if m.SendUser("ghost", []byte("x")) {
		t.Fatal("SendUser reported delivery with no sessions")
	}

	s := bind(t, m, "u1")
	for i := byte('1'); i <= '4'; i++ {
		if !m.SendUser("u1", []byte{i}) {
			t.Fatal("SendUser = false with a live session")
		}
	}
	// 队列容量 2，最旧的被顶掉，留下 3 4
	var got []byte
	for len(s.Send) > 0 {
		got = append(got, (<-s.Send)[0])
	}
	if string(got) != "34" {
		t.Fatalf("queue = %q, want %q", got, "34")
	}
}
