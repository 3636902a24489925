package model

// ===== 字段常量 =====
const (
	MessageFieldID        = "msg_id"
	MessageFieldRoomID    = "room_id"
	MessageFieldSeq       = "seq"
	MessageFieldSenderID  = "sender_id"
	MessageFieldContent   = "content"
	MessageFieldKind      = "kind"
	MessageFieldCreatedAt = "created_at"
	MessageFieldReadBy    = "read_by"

	MessageCollection = "messages"
)

// 消息类型（业务枚举，网关只透传）
const (
	KindText  = "text"
	KindImage = "image"
)

// Message 一条房间内消息。除 ReadBy 单调增长外，落库后不可变。
// Seq 由房间的发号权威分配，房间内严格全序；CreatedAt 与 Seq 同向推进。
type Message struct {
	ID       string `bson:"msg_id" json:"msgId"`       // 雪花ID
	RoomID   string `bson:"room_id" json:"roomId"`     // 归属房间
	Seq      int64  `bson:"seq" json:"seq"`            // 房间内序号，从1起
	SenderID string `bson:"sender_id" json:"senderId"` // 发送者
	Content  string `bson:"content" json:"content"`    // 内容（文本或对象引用）
	Kind     string `bson:"kind" json:"kind"`          // text/image/...

	CreatedAt int64    `bson:"created_at" json:"createdAt"` // Unix ms，房间内非递减
	ReadBy    []string `bson:"read_by" json:"readBy"`       // 已读用户集合（append-only）
}

// IsReadBy reports whether uid is in the read set.
func (m *Message) IsReadBy(uid string) bool {
	for _, r := range m.ReadBy {
		if r == uid {
			return true
		}
	}
	return false
}
