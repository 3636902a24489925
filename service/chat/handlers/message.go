package handlers

import (
	"context"

	"AreaLink/service/chat"
	errs "AreaLink/tools/errs"
)

// SendHandler 发消息：roomId 或 to 二选一（后者隐式 find-or-create）。
type SendHandler struct{}

func NewSendHandler() chat.Handler          { return &SendHandler{} }
func (h *SendHandler) Type() chat.FrameType { return chat.FrameSend }

func (h *SendHandler) Handle(ctx *chat.Context, f *chat.Frame, s *chat.Session) error {
	var p chat.SendPayload
	if err := f.DecodePayload(&p); err != nil {
		return errs.ErrValidation.WrapMsg("bad send payload: %v", err)
	}
	_, err := ctx.S.SendMessage(context.Background(), s.UserID, p.RoomID, p.To, p.Content, p.Kind)
	return err
}

// ReadHandler 标记已读：幂等，回执广播给双方。
type ReadHandler struct{}

func NewReadHandler() chat.Handler          { return &ReadHandler{} }
func (h *ReadHandler) Type() chat.FrameType { return chat.FrameRead }

func (h *ReadHandler) Handle(ctx *chat.Context, f *chat.Frame, s *chat.Session) error {
	var p chat.ReadPayload
	if err := f.DecodePayload(&p); err != nil {
		return errs.ErrValidation.WrapMsg("bad read payload: %v", err)
	}
	if p.MessageID == "" {
		return errs.ErrValidation.WithDetail("empty messageId")
	}
	return ctx.S.MarkRead(context.Background(), s.UserID, p.MessageID)
}
