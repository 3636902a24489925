package message

import (
	"context"
	"sync"
	"time"

	"AreaLink/module/chat/model"
	"AreaLink/module/chat/store"
	errs "AreaLink/tools/errs"
	"AreaLink/tools/ids"
)

// DefaultPageSize caps History when the caller passes limit<=0.
const DefaultPageSize = 50

// authority 单房间发号权威：持锁期间分配 seq 并落库，保证
// 房间内严格全序，且 CreatedAt 随 seq 非递减（墙钟回退时钉在上一条）。
type authority struct {
	mu     sync.Mutex
	nextMS int64 // CreatedAt 下界
	next   int64 // 0 = 未从存储装载
}

// Sequencer owns message ordering and read-state mutation within rooms.
type Sequencer struct {
	msgs  store.MessageStore
	rooms store.RoomStore

	mu          sync.Mutex
	authorities map[string]*authority // roomID -> authority
	clock       func() time.Time
}

func NewSequencer(msgs store.MessageStore, rooms store.RoomStore) *Sequencer {
	return &Sequencer{
		msgs:        msgs,
		rooms:       rooms,
		authorities: make(map[string]*authority),
		clock:       time.Now,
	}
}

func (s *Sequencer) authorityFor(roomID string) *authority {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.authorities[roomID]
	if !ok {
		a = &authority{}
		s.authorities[roomID] = a
	}
	return a
}

func (s *Sequencer) room(ctx context.Context, roomID string) (*model.ChatRoom, error) {
	r, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.ErrNotFound.WithDetail("room " + roomID)
	}
	return r, nil
}

// Append 追加一条消息。只在本房间的发号锁上阻塞，投递与它无关。
func (s *Sequencer) Append(ctx context.Context, roomID, senderID, content, kind string) (*model.Message, error) {
	if content == "" {
		return nil, errs.ErrValidation.WithDetail("empty content")
	}
	if kind == "" {
		kind = model.KindText
	}
	r, err := s.room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !r.HasParticipant(senderID) {
		return nil, errs.ErrUnauthorized.WrapMsg("user %s is not a participant of room %s", senderID, roomID)
	}

	a := s.authorityFor(roomID)
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.next == 0 {
		max, err := s.msgs.MaxSeq(ctx, roomID)
		if err != nil {
			return nil, err
		}
		a.next = max + 1
	}

	now := s.clock().UnixMilli()
	if now < a.nextMS {
		now = a.nextMS
	}

	msg := &model.Message{
		ID:        ids.GenerateString(),
		RoomID:    roomID,
		Seq:       a.next,
		SenderID:  senderID,
		Content:   content,
		Kind:      kind,
		CreatedAt: now,
		ReadBy:    []string{},
	}
	if err := s.msgs.Insert(ctx, msg); err != nil {
		// seq 未推进，下一次 Append 重用同一序号
		return nil, err
	}
	a.next++
	a.nextMS = now

	if err := s.rooms.Touch(ctx, roomID, time.UnixMilli(now)); err != nil {
		return nil, err
	}
	return msg, nil
}

// Get 按ID取消息；不存在返回 NotFound。
func (s *Sequencer) Get(ctx context.Context, messageID string) (*model.Message, error) {
	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, errs.ErrNotFound.WithDetail("message " + messageID)
	}
	return msg, nil
}

// MarkRead 幂等地把 readerID 加入消息的已读集合。
// 发送者读自己的消息是 no-op；重复标记是 no-op。
func (s *Sequencer) MarkRead(ctx context.Context, messageID, readerID string) error {
	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return errs.ErrNotFound.WithDetail("message " + messageID)
	}
	r, err := s.room(ctx, msg.RoomID)
	if err != nil {
		return err
	}
	if !r.HasParticipant(readerID) {
		return errs.ErrUnauthorized.WrapMsg("user %s is not a participant of room %s", readerID, msg.RoomID)
	}
	if msg.SenderID == readerID {
		return nil
	}
	return s.msgs.AddReadBy(ctx, messageID, readerID)
}

// History 按 seq 升序分页。游标为上一页最后一条的 seq：
// 在 afterSeq 处取的游标永不重复返回 seq <= afterSeq 的消息，
// 并发追加不影响已翻过的页。
func (s *Sequencer) History(ctx context.Context, roomID, requesterID string, afterSeq int64, limit int64) ([]*model.Message, int64, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return nil, 0, err
	}
	if !r.HasParticipant(requesterID) {
		return nil, 0, errs.ErrUnauthorized.WrapMsg("user %s is not a participant of room %s", requesterID, roomID)
	}
	if limit <= 0 || limit > DefaultPageSize {
		limit = DefaultPageSize
	}
	list, err := s.msgs.ListAfter(ctx, roomID, afterSeq, limit)
	if err != nil {
		return nil, 0, err
	}
	next := afterSeq
	if len(list) > 0 {
		next = list[len(list)-1].Seq
	}
	return list, next, nil
}

// UnreadCount 未读数 = 本人参与、非本人发送、且未读的消息条数。
func (s *Sequencer) UnreadCount(ctx context.Context, roomID, userID string) (int64, error) {
	r, err := s.room(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if !r.HasParticipant(userID) {
		return 0, errs.ErrUnauthorized.WrapMsg("user %s is not a participant of room %s", userID, roomID)
	}
	return s.msgs.CountUnread(ctx, roomID, userID)
}
