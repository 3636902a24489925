package room

import (
	"context"
	"sync"
	"time"

	"AreaLink/module/chat/model"
	"AreaLink/module/chat/store"
	errs "AreaLink/tools/errs"
	"AreaLink/tools/ids"
)

// Manager 负责房间的查找与创建，维持“无序用户对至多一个房间”。
// 并发控制分两层：进程内按 pair_key 加锁串行化本节点的并发创建；
// 存储层唯一约束兜底跨节点竞争，撞约束后回读收敛到同一房间。
type Manager struct {
	rooms store.RoomStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex // pairKey -> 串行锁
	clock func() time.Time
}

func NewManager(rooms store.RoomStore) *Manager {
	return &Manager{
		rooms: rooms,
		locks: make(map[string]*sync.Mutex),
		clock: time.Now,
	}
}

func (m *Manager) pairLock(pairKey string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[pairKey]
	if !ok {
		l = &sync.Mutex{}
		m.locks[pairKey] = l
	}
	return l
}

// GetOrCreate 原子 find-or-create。双方同时发起也收敛到同一个房间ID。
func (m *Manager) GetOrCreate(ctx context.Context, userA, userB string) (*model.ChatRoom, error) {
	if userA == "" || userB == "" {
		return nil, errs.ErrValidation.WithDetail("empty user id")
	}
	if userA == userB {
		return nil, errs.ErrValidation.WithDetail("cannot open a room with yourself")
	}
	pairKey := model.PairKeyOf(userA, userB)

	l := m.pairLock(pairKey)
	l.Lock()
	defer l.Unlock()

	if r, err := m.rooms.FindByPair(ctx, pairKey); err != nil {
		return nil, err
	} else if r != nil {
		return r, nil
	}

	lo, hi := model.CanonicalPair(userA, userB)
	now := m.clock()
	room := &model.ChatRoom{
		ID:        ids.GenerateString(),
		PairKey:   pairKey,
		UserA:     lo,
		UserB:     hi,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := m.rooms.Insert(ctx, room)
	if err == store.ErrRoomExists {
		// 另一节点抢先；回读它建好的那个
		return m.rooms.FindByPair(ctx, pairKey)
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// Get 按ID取房间；不存在返回 NotFound。
func (m *Manager) Get(ctx context.Context, roomID string) (*model.ChatRoom, error) {
	r, err := m.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.ErrNotFound.WithDetail("room " + roomID)
	}
	return r, nil
}

// ListFor 返回用户参与的全部房间，最近活跃在前。
func (m *Manager) ListFor(ctx context.Context, userID string) ([]*model.ChatRoom, error) {
	if userID == "" {
		return nil, errs.ErrValidation.WithDetail("empty user id")
	}
	return m.rooms.ListByUser(ctx, userID)
}
