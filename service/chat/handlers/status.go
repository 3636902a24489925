package handlers

import (
	"context"

	"AreaLink/service/chat"
)

// StatusHandler updateStatus 帧：只触发一次状态重广播。
// 在线位永远从会话集推导，客户端声明的 isOnline 不被采信。
type StatusHandler struct{}

func NewStatusHandler() chat.Handler          { return &StatusHandler{} }
func (h *StatusHandler) Type() chat.FrameType { return chat.FrameStatus }

func (h *StatusHandler) Handle(ctx *chat.Context, f *chat.Frame, s *chat.Session) error {
	var p chat.StatusPayload
	_ = f.DecodePayload(&p) // 载荷内容不影响行为
	ctx.S.Presence().ForceBroadcast(context.Background(), s.UserID)
	return nil
}
