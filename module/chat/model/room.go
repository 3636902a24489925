package model

import (
	"strings"
	"time"
)

// ===== 字段常量（供存储层查询使用） =====
const (
	RoomFieldID        = "room_id"
	RoomFieldPairKey   = "pair_key"
	RoomFieldUserA     = "user_a"
	RoomFieldUserB     = "user_b"
	RoomFieldCreatedAt = "created_at"
	RoomFieldUpdatedAt = "updated_at"

	RoomCollection = "rooms"
)

// ChatRoom 两人之间唯一的聊天通道。
// UserA/UserB 按字典序存储（UserA < UserB），PairKey 作为唯一索引键，
// 保证任意无序用户对至多存在一个房间。
type ChatRoom struct {
	ID      string `bson:"room_id" json:"roomId"`  // 雪花ID
	PairKey string `bson:"pair_key" json:"-"`      // 规范化对键：p:<a>:<b>
	UserA   string `bson:"user_a" json:"userA"`    // 参与者（较小ID）
	UserB   string `bson:"user_b" json:"userB"`    // 参与者（较大ID）

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"` // 最近一条消息时间，列表排序用
}

// HasParticipant reports whether uid is one of the two participants.
func (r *ChatRoom) HasParticipant(uid string) bool {
	return uid != "" && (r.UserA == uid || r.UserB == uid)
}

// Peer returns the other participant, or "" when uid is not a participant.
func (r *ChatRoom) Peer(uid string) string {
	switch uid {
	case r.UserA:
		return r.UserB
	case r.UserB:
		return r.UserA
	}
	return ""
}

// CanonicalPair sorts an unordered user pair into storage order.
func CanonicalPair(a, b string) (lo, hi string) {
	if strings.Compare(a, b) > 0 {
		return b, a
	}
	return a, b
}

// PairKeyOf builds the unique pair key for an unordered user pair.
func PairKeyOf(a, b string) string {
	lo, hi := CanonicalPair(a, b)
	return "p:" + lo + ":" + hi
}
