package model

import "time"

// ===== 字段常量 =====
const (
	FriendFieldOwnerUserID  = "owner_user_id"
	FriendFieldFriendUserID = "friend_user_id"
	FriendFieldStatus       = "status"
	FriendFieldIsBlocked    = "is_blocked"

	FriendCollection = "friends"
)

// 好友关系状态
const (
	FriendStatusPending  int32 = 0 // 待验证
	FriendStatusAccepted int32 = 1 // 已同意
	FriendStatusRejected int32 = 2 // 已拒绝
	FriendStatusDeleted  int32 = 3 // 已删除
)

// Friend 表示用户好友关系（单向存储，双向各存一条记录）。
// 互为好友 = 两个方向都是 accepted 且未拉黑。
// 以 owner_user_id + friend_user_id 作为唯一索引。
type Friend struct {
	OwnerUserID  string `bson:"owner_user_id"`  // 拥有者用户ID（谁的好友列表）
	FriendUserID string `bson:"friend_user_id"` // 好友用户ID（对方）

	Status    int32 `bson:"status"`     // 见上方状态枚举
	IsBlocked bool  `bson:"is_blocked"` // 是否已拉黑该好友
	IsMuted   bool  `bson:"is_muted"`   // 是否免打扰（不影响在线状态推送）

	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}

// Mutual reports acceptance on this direction (the store checks both).
func (f *Friend) Mutual() bool {
	return f.Status == FriendStatusAccepted && !f.IsBlocked
}
