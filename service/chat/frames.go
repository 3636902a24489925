package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"AreaLink/module/chat/model"
	"AreaLink/module/location"
	"AreaLink/module/presence"
	errs "AreaLink/tools/errs"
)

type FrameType string

// 入站帧
const (
	FrameAuth     FrameType = "auth"
	FramePing     FrameType = "ping"
	FrameStatus   FrameType = "status"
	FrameLocation FrameType = "location"
	FrameSend     FrameType = "message.send"
	FrameRead     FrameType = "message.read"
)

// 出站帧
const (
	FrameConnAck        FrameType = "conn.ack"
	FrameAuthAck        FrameType = "auth.ack"
	FramePong           FrameType = "pong"
	FrameLocationUpdate FrameType = "location.update"
	FrameFriendStatus   FrameType = "friend.status"
	FrameMessageCreated FrameType = "message.created"
	FrameReadReceipt    FrameType = "read.receipt"
	FrameError          FrameType = "error"
)

// Frame 网关线格式：类型 + 毫秒时间戳 + 业务载荷。
type Frame struct {
	Type    FrameType       `json:"type"`
	Ts      int64           `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return f, nil
}

// DecodePayload unmarshals f.Payload into out.
// 空载荷按零值处理：必填字段由各 handler 自行校验。
func (f *Frame) DecodePayload(out any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, out)
}

// ===== 入站载荷 =====

type AuthPayload struct {
	Token string `json:"token"`
}

type LocationPayload struct {
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	CapturedAt int64   `json:"capturedAt"` // Unix ms
}

type StatusPayload struct {
	Online bool `json:"isOnline"` // 仅触发重广播；在线位始终由会话集推导
}

type SendPayload struct {
	RoomID  string `json:"roomId,omitempty"`
	To      string `json:"to,omitempty"` // RoomID 为空时按对方用户找/建房间
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
}

type ReadPayload struct {
	MessageID string `json:"messageId"`
}

// ===== 出站载荷 =====

type ConnAckPayload struct {
	ConnID         string `json:"connId"`
	GatewayID      string `json:"gatewayId"`
	PingIntervalMS int64  `json:"pingIntervalMs"`
}

type AuthAckPayload struct {
	UserID     string `json:"userId"`
	SessionID  string `json:"sessionId"`
	ServerTime int64  `json:"serverTime"`
}

type ReadReceiptPayload struct {
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId"`
}

type ErrorPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ===== 构造 =====

func buildFrame(t FrameType, payload any) []byte {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			// 载荷都是本包内的纯数据结构，序列化失败属于编程错误
			panic(fmt.Sprintf("marshal %s payload: %v", t, err))
		}
		raw = b
	}
	out, _ := json.Marshal(Frame{Type: t, Ts: time.Now().UnixMilli(), Payload: raw})
	return out
}

func BuildConnAck(connID, gatewayID string, pingInterval time.Duration) []byte {
	return buildFrame(FrameConnAck, ConnAckPayload{
		ConnID:         connID,
		GatewayID:      gatewayID,
		PingIntervalMS: pingInterval.Milliseconds(),
	})
}

func BuildAuthAck(userID, sessionID string) []byte {
	return buildFrame(FrameAuthAck, AuthAckPayload{
		UserID:     userID,
		SessionID:  sessionID,
		ServerTime: time.Now().UnixMilli(),
	})
}

func BuildPong() []byte { return buildFrame(FramePong, nil) }

func BuildLocationUpdate(s location.Sample) []byte {
	return buildFrame(FrameLocationUpdate, s)
}

func BuildFriendStatus(evt presence.Event) []byte {
	return buildFrame(FrameFriendStatus, evt)
}

func BuildMessageCreated(m *model.Message) []byte {
	return buildFrame(FrameMessageCreated, m)
}

func BuildReadReceipt(messageID, readerID string) []byte {
	return buildFrame(FrameReadReceipt, ReadReceiptPayload{MessageID: messageID, ReaderID: readerID})
}

// BuildError 只下发四类业务错误码；其他错误一律按内部故障打码。
func BuildError(err error) []byte {
	code := errs.CodeOf(err)
	msg := err.Error()
	if code == 0 {
		code = errs.TransientDeliveryCode
		msg = "internal error"
	}
	return buildFrame(FrameError, ErrorPayload{Code: code, Msg: msg})
}
