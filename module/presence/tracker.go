package presence

import (
	"context"
	"sync"
	"time"

	"AreaLink/logger"
	"AreaLink/module/chat/store"
)

// Event 在线状态变更广播体。
type Event struct {
	UserID     string `json:"userId"`
	Online     bool   `json:"isOnline"`
	LastSeenAt int64  `json:"lastSeenAt,omitempty"` // Unix ms，下线时有值
}

// Notifier delivers a presence event to the given recipients.
// The gateway plugs its fanout in here; tests plug a recorder.
type Notifier func(recipients []string, evt Event)

// Mirror 把在线状态镜像到共享存储（Redis），供其他节点查询。可为 nil。
type Mirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string, lastSeen time.Time) error
}

type record struct {
	mu       sync.Mutex
	online   bool
	lastSeen time.Time
}

// Tracker Offline→Online→Offline 状态机，每用户一条记录。
// 转换只由会话集“变空/变非空”的边沿驱动（ConnManager 负责判边），
// 这里不做任何防抖——快速重连就是两次完整的转换。
// 每条记录自带互斥锁，跨用户互不阻塞。
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*record

	friends store.FriendStore
	notify  Notifier
	mirror  Mirror
	clock   func() time.Time
}

func NewTracker(friends store.FriendStore, notify Notifier) *Tracker {
	return &Tracker{
		records: make(map[string]*record),
		friends: friends,
		notify:  notify,
		clock:   time.Now,
	}
}

// WithMirror attaches an optional shared-store mirror.
func (t *Tracker) WithMirror(m Mirror) *Tracker {
	t.mirror = m
	return t
}

func (t *Tracker) recordFor(userID string) *record {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[userID]
	if !ok {
		r = &record{}
		t.records[userID] = r
	}
	return r
}

// MarkOnline 会话集变非空时由 ConnManager 调用。
func (t *Tracker) MarkOnline(ctx context.Context, userID string) {
	r := t.recordFor(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = true
	if t.mirror != nil {
		if err := t.mirror.Online(ctx, userID); err != nil {
			logger.Warnf("[presence] mirror online user=%s err=%v", userID, err)
		}
	}
	t.broadcast(ctx, userID, Event{UserID: userID, Online: true})
}

// MarkOffline 会话集变空时由 ConnManager 调用；此刻钉下 lastSeen。
func (t *Tracker) MarkOffline(ctx context.Context, userID string) {
	r := t.recordFor(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	now := t.clock()
	r.online = false
	r.lastSeen = now
	if t.mirror != nil {
		if err := t.mirror.Offline(ctx, userID, now); err != nil {
			logger.Warnf("[presence] mirror offline user=%s err=%v", userID, err)
		}
	}
	t.broadcast(ctx, userID, Event{UserID: userID, Online: false, LastSeenAt: now.UnixMilli()})
}

// Snapshot 返回当前在线位与最近一次下线时间。
func (t *Tracker) Snapshot(userID string) (online bool, lastSeen time.Time) {
	t.mu.RLock()
	r, ok := t.records[userID]
	t.mu.RUnlock()
	if !ok {
		return false, time.Time{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online, r.lastSeen
}

// ForceBroadcast 重新广播当前状态（status 帧触发），不改状态机。
func (t *Tracker) ForceBroadcast(ctx context.Context, userID string) {
	online, lastSeen := t.Snapshot(userID)
	evt := Event{UserID: userID, Online: online}
	if !online && !lastSeen.IsZero() {
		evt.LastSeenAt = lastSeen.UnixMilli()
	}
	t.broadcast(ctx, userID, evt)
}

func (t *Tracker) broadcast(ctx context.Context, userID string, evt Event) {
	if t.notify == nil {
		return
	}
	friends, err := t.friends.FriendIDs(ctx, userID)
	if err != nil {
		logger.Warnf("[presence] friend lookup user=%s err=%v", userID, err)
		return
	}
	if len(friends) == 0 {
		return
	}
	t.notify(friends, evt)
}
