package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"AreaLink/module/chat/model"
)

// Memory 单进程内存实现：单测与无外部依赖的本地运行用。
// 三个契约共用一把读写锁；规模小，热点在上层的按键串行化，不在这里。
type Memory struct {
	mu       sync.RWMutex
	byPair   map[string]*model.ChatRoom
	byRoomID map[string]*model.ChatRoom
	msgs     map[string][]*model.Message // roomID -> seq 升序
	msgByID  map[string]*model.Message
	friends  map[string]map[string]bool // owner -> friend -> accepted
}

func NewMemory() *Memory {
	return &Memory{
		byPair:   make(map[string]*model.ChatRoom),
		byRoomID: make(map[string]*model.ChatRoom),
		msgs:     make(map[string][]*model.Message),
		msgByID:  make(map[string]*model.Message),
		friends:  make(map[string]map[string]bool),
	}
}

// ===== RoomStore =====

func (m *Memory) Insert(_ context.Context, room *model.ChatRoom) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPair[room.PairKey]; ok {
		return ErrRoomExists
	}
	cp := *room
	m.byPair[room.PairKey] = &cp
	m.byRoomID[room.ID] = &cp
	return nil
}

func (m *Memory) FindByPair(_ context.Context, pairKey string) (*model.ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byPair[pairKey]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) Get(_ context.Context, roomID string) (*model.ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byRoomID[roomID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) ListByUser(_ context.Context, userID string) ([]*model.ChatRoom, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ChatRoom
	for _, r := range m.byRoomID {
		if r.HasParticipant(userID) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Touch 只前进不后退：乱序到达的旧时间戳不回拨 UpdatedAt。
func (m *Memory) Touch(_ context.Context, roomID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.byRoomID[roomID]; ok && at.After(r.UpdatedAt) {
		r.UpdatedAt = at
	}
	return nil
}

// ===== MessageStore =====

func (m *Memory) InsertMsg(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	cp.ReadBy = append([]string(nil), msg.ReadBy...)
	m.msgs[msg.RoomID] = append(m.msgs[msg.RoomID], &cp)
	m.msgByID[msg.ID] = &cp
	return nil
}

func (m *Memory) GetMsg(_ context.Context, msgID string) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.msgByID[msgID]
	if !ok {
		return nil, nil
	}
	cp := *msg
	cp.ReadBy = append([]string(nil), msg.ReadBy...)
	return &cp, nil
}

func (m *Memory) MaxSeq(_ context.Context, roomID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.msgs[roomID]
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].Seq, nil
}

func (m *Memory) ListAfter(_ context.Context, roomID string, afterSeq int64, limit int64) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Message
	for _, msg := range m.msgs[roomID] {
		if msg.Seq <= afterSeq {
			continue
		}
		cp := *msg
		cp.ReadBy = append([]string(nil), msg.ReadBy...)
		out = append(out, &cp)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) AddReadBy(_ context.Context, msgID, readerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgByID[msgID]
	if !ok {
		return nil
	}
	if !msg.IsReadBy(readerID) {
		msg.ReadBy = append(msg.ReadBy, readerID)
	}
	return nil
}

func (m *Memory) CountUnread(_ context.Context, roomID, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, msg := range m.msgs[roomID] {
		if msg.SenderID != userID && !msg.IsReadBy(userID) {
			n++
		}
	}
	return n, nil
}

// ===== FriendStore =====

// SetFriends declares a mutual friendship (both directions accepted).
func (m *Memory) SetFriends(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setDirLocked(a, b)
	m.setDirLocked(b, a)
}

func (m *Memory) setDirLocked(owner, friend string) {
	if m.friends[owner] == nil {
		m.friends[owner] = make(map[string]bool)
	}
	m.friends[owner][friend] = true
}

func (m *Memory) IsFriend(_ context.Context, a, b string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.friends[a][b] && m.friends[b][a], nil
}

func (m *Memory) FriendIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for f, ok := range m.friends[userID] {
		if ok && m.friends[f][userID] {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemoryMessages adapts Memory to the MessageStore interface
// (method names collide with RoomStore on Insert/Get otherwise).
type MemoryMessages struct{ *Memory }

func (m MemoryMessages) Insert(ctx context.Context, msg *model.Message) error {
	return m.InsertMsg(ctx, msg)
}

func (m MemoryMessages) Get(ctx context.Context, msgID string) (*model.Message, error) {
	return m.GetMsg(ctx, msgID)
}
