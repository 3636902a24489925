package handlers

import (
	"context"

	"AreaLink/service/chat"
)

// PingHandler 应用层心跳：续期 TTL 并回 pong。
// 传输层 ping/pong 另有 gorilla 的 PongHandler 兜底。
type PingHandler struct{}

func NewPingHandler() chat.Handler          { return &PingHandler{} }
func (h *PingHandler) Type() chat.FrameType { return chat.FramePing }

func (h *PingHandler) Handle(ctx *chat.Context, _ *chat.Frame, s *chat.Session) error {
	_ = ctx.S.ConnMgr().Heartbeat(s.ID) // 可能刚好被清理，忽略
	ctx.S.RenewPresence(context.Background(), s.UserID)
	s.Enqueue(chat.BuildPong())
	return nil
}
