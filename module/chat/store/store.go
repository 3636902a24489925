package store

import (
	"context"
	"errors"
	"time"

	"AreaLink/module/chat/model"
)

// ErrRoomExists is returned by RoomStore.Insert when another writer already
// created the room for the same pair key. Callers re-read instead of failing.
var ErrRoomExists = errors.New("room already exists for pair")

// RoomStore 房间持久化契约：pair_key 唯一约束必须由实现保证。
type RoomStore interface {
	Insert(ctx context.Context, room *model.ChatRoom) error
	FindByPair(ctx context.Context, pairKey string) (*model.ChatRoom, error) // 不存在 -> (nil, nil)
	Get(ctx context.Context, roomID string) (*model.ChatRoom, error)        // 不存在 -> (nil, nil)
	ListByUser(ctx context.Context, userID string) ([]*model.ChatRoom, error) // updated_at 倒序
	Touch(ctx context.Context, roomID string, at time.Time) error
}

// MessageStore 消息持久化契约：seq 由上层发号，存储按 append-only 保序。
type MessageStore interface {
	Insert(ctx context.Context, msg *model.Message) error
	Get(ctx context.Context, msgID string) (*model.Message, error) // 不存在 -> (nil, nil)
	MaxSeq(ctx context.Context, roomID string) (int64, error)
	// ListAfter 返回 seq > afterSeq 的消息，按 seq 升序，最多 limit 条。
	ListAfter(ctx context.Context, roomID string, afterSeq int64, limit int64) ([]*model.Message, error)
	AddReadBy(ctx context.Context, msgID, readerID string) error // 幂等（集合语义）
	// CountUnread 统计房间内 userID 未读且非自己发送的消息数。
	CountUnread(ctx context.Context, roomID, userID string) (int64, error)
}

// FriendStore 好友关系读侧：网关只消费这个谓词，不负责好友增删。
type FriendStore interface {
	IsFriend(ctx context.Context, a, b string) (bool, error) // 双向 accepted 且未拉黑
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}
