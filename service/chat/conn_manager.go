package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"AreaLink/tools/ids"

	"github.com/gorilla/websocket"
)

// ===== 配置 =====

type ManagerConf struct {
	UnauthTTL  time.Duration    // 未认证连接的 TTL（如 60s）
	AuthTTL    time.Duration    // 已认证会话的 TTL（如 2h，心跳续期）
	SweepEvery time.Duration    // 清理周期（如 10s）
	MaxPerUser int              // 每用户最大会话数（<=0 不限制）
	SendQueue  int              // 每会话发送队列长度
	Clock      func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.UnauthTTL <= 0 {
		c.UnauthTTL = 60 * time.Second
	}
	if c.AuthTTL <= 0 {
		c.AuthTTL = 2 * time.Hour
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// ===== 数据结构 =====

// Session 一条已登记的连接。UserID 为空表示尚未认证。
type Session struct {
	ID     string
	UserID string

	Conn   *websocket.Conn
	Remote net.Addr

	ConnectedAt time.Time
	UpdatedAt   time.Time
	Heartbeat   time.Time
	TTL         time.Duration
	ExpireAt    time.Time

	Send chan []byte // 每会话独立发送队列（单写协程消费）

	closeOnce sync.Once
	done      chan struct{}
}

// enqueue 非阻塞入队；队列饱和时丢最旧。
// 位置流 latest-wins，聊天投递对该收端按瞬时投递失败处理——都不回压发送方。
func (s *Session) enqueue(data []byte) {
	for {
		select {
		case s.Send <- data:
			return
		case <-s.done:
			return
		default:
		}
		select {
		case <-s.Send:
		default:
		}
	}
}

// Enqueue exposes enqueue to the handlers package.
func (s *Session) Enqueue(data []byte) { s.enqueue(data) }

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.Conn != nil {
			_ = s.Conn.Close()
		}
	})
}

// PresenceSink 接收会话集“变非空/变空”的边沿。Server 把
// PresenceTracker 与 LocationBroadcaster 的清理挂在这里。
type PresenceSink interface {
	UserOnline(ctx context.Context, userID string)
	UserOffline(ctx context.Context, userID string)
}

// ConnManager 会话注册表：sessionID 主索引 + userID 辅助索引。
// 多端并存；注销幂等；TTL 过期由 sweeper 走同一注销路径，
// 保证 presence 边沿只在这里判定、每个边沿恰好触发一次。
type ConnManager struct {
	mu        sync.RWMutex
	bySession map[string]*Session
	byUser    map[string]map[string]*Session

	conf     ManagerConf
	presence PresenceSink
	gwID     string

	stopOnce sync.Once
	stopCh   chan struct{}
}

// ===== 构造/关闭 =====

func NewConnManager(conf ManagerConf, gwID string) *ConnManager {
	conf.norm()
	m := &ConnManager{
		bySession: make(map[string]*Session),
		byUser:    make(map[string]map[string]*Session),
		conf:      conf,
		gwID:      gwID,
		stopCh:    make(chan struct{}),
	}
	go m.sweeper()
	return m
}

func (m *ConnManager) GwID() string { return m.gwID }

// SetPresence wires the presence sink (after Server construction).
func (m *ConnManager) SetPresence(p PresenceSink) { m.presence = p }

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.bySession))
	for _, s := range m.bySession {
		sessions = append(sessions, s)
	}
	m.bySession = map[string]*Session{}
	m.byUser = map[string]map[string]*Session{}
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// ===== 登记/绑定/注销 =====

// AddUnauth 新连接登记（未认证）；只占 sessionID 主索引。
func (m *ConnManager) AddUnauth(conn *websocket.Conn) *Session {
	now := m.conf.Clock()
	s := &Session{
		ID:          ids.GenerateString(),
		Conn:        conn,
		ConnectedAt: now,
		UpdatedAt:   now,
		Heartbeat:   now,
		TTL:         m.conf.UnauthTTL,
		ExpireAt:    now.Add(m.conf.UnauthTTL),
		Send:        make(chan []byte, m.conf.SendQueue),
		done:        make(chan struct{}),
	}
	if conn != nil {
		s.Remote = conn.RemoteAddr()
	}
	m.mu.Lock()
	m.bySession[s.ID] = s
	m.mu.Unlock()
	return s
}

// BindUser 认证通过后把会话绑定到用户：切到 AuthTTL、进入用户索引，
// 并在“会话集变非空”时触发一次上线边沿。
func (m *ConnManager) BindUser(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return errors.New("sessionID/userID empty")
	}
	now := m.conf.Clock()

	var evicted *Session
	m.mu.Lock()
	s, ok := m.bySession[sessionID]
	if !ok {
		m.mu.Unlock()
		return errors.New("session not found")
	}
	if s.UserID != "" {
		m.mu.Unlock()
		return errors.New("session already bound")
	}

	mm := m.byUser[userID]
	firstSession := len(mm) == 0
	if m.conf.MaxPerUser > 0 && len(mm) >= m.conf.MaxPerUser {
		// 挤下线最老的一条
		for _, w := range mm {
			if evicted == nil || w.ConnectedAt.Before(evicted.ConnectedAt) {
				evicted = w
			}
		}
		delete(mm, evicted.ID)
		delete(m.bySession, evicted.ID)
	}
	if mm == nil {
		mm = make(map[string]*Session)
		m.byUser[userID] = mm
	}
	mm[s.ID] = s

	s.UserID = userID
	s.TTL = m.conf.AuthTTL
	s.ExpireAt = now.Add(m.conf.AuthTTL)
	s.UpdatedAt = now
	s.Heartbeat = now
	m.mu.Unlock()

	if evicted != nil {
		evicted.close()
	}
	if firstSession && m.presence != nil {
		m.presence.UserOnline(ctx, userID)
	}
	return nil
}

// Unregister 注销会话并关闭连接；不存在是 no-op。
// 用户最后一条会话消失时触发一次下线边沿。
func (m *ConnManager) Unregister(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	s, ok := m.bySession[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.bySession, sessionID)
	lastSession := false
	if s.UserID != "" {
		if mm := m.byUser[s.UserID]; mm != nil {
			delete(mm, sessionID)
			if len(mm) == 0 {
				delete(m.byUser, s.UserID)
				lastSession = true
			}
		}
	}
	m.mu.Unlock()

	s.close()
	if lastSession && m.presence != nil {
		m.presence.UserOffline(ctx, s.UserID)
	}
}

// ===== 查询/投递 =====

// Get 按 sessionID 查会话。
func (m *ConnManager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.bySession[sessionID]
	return s, ok
}

// SessionsFor 返回某用户当前全部会话；可能为空。
func (m *ConnManager) SessionsFor(userID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mm := m.byUser[userID]
	if len(mm) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(mm))
	for _, s := range mm {
		out = append(out, s)
	}
	return out
}

// IsOnline 用户在线 iff 会话集非空。
func (m *ConnManager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID]) > 0
}

// SendUser 向某用户所有会话入队；无会话返回 false。
func (m *ConnManager) SendUser(userID string, data []byte) bool {
	sessions := m.SessionsFor(userID)
	for _, s := range sessions {
		s.enqueue(data)
	}
	return len(sessions) > 0
}

// ===== 心跳/清理 =====

// Heartbeat 刷新会话心跳与到期时间。
func (m *ConnManager) Heartbeat(sessionID string) error {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.bySession[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	s.Heartbeat = now
	s.ExpireAt = now.Add(s.TTL)
	s.UpdatedAt = now
	return nil
}

// AttachPongHandler 绑定 gorilla 的 PongHandler，自动心跳续期。
func (m *ConnManager) AttachPongHandler(conn *websocket.Conn, sessionID string) {
	if conn == nil || sessionID == "" {
		return
	}
	conn.SetPongHandler(func(string) error {
		_ = m.Heartbeat(sessionID) // 忽略错误：连接可能刚好被清理
		return nil
	})
}

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-t.C:
			m.sweepOnce(now)
		}
	}
}

func (m *ConnManager) sweepOnce(now time.Time) {
	var expired []string
	m.mu.RLock()
	for id, s := range m.bySession {
		if now.After(s.ExpireAt) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	// 过期走标准注销路径，presence 边沿不旁路
	for _, id := range expired {
		m.Unregister(context.Background(), id)
	}
}
