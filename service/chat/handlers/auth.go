package handlers

import (
	"context"

	"AreaLink/logger"
	"AreaLink/service/chat"
	errs "AreaLink/tools/errs"
)

// AuthHandler 首帧认证：校验 token、把会话绑定到用户。
// 绑定成功即触发 presence 上线边沿（由 ConnManager 判边）。
type AuthHandler struct{}

func NewAuthHandler() chat.Handler          { return &AuthHandler{} }
func (h *AuthHandler) Type() chat.FrameType { return chat.FrameAuth }

func (h *AuthHandler) Handle(ctx *chat.Context, f *chat.Frame, s *chat.Session) error {
	var p chat.AuthPayload
	if err := f.DecodePayload(&p); err != nil {
		return errs.ErrValidation.WrapMsg("bad auth payload: %v", err)
	}
	if p.Token == "" {
		return errs.ErrUnauthorized.WithDetail("empty token")
	}
	uid, err := ctx.S.Tokens().Validate(p.Token)
	if err != nil {
		return err
	}
	if s.UserID != "" {
		if s.UserID == uid {
			// 重复认证同一用户：状态不变，但 ack 可能在路上丢过，重发
			s.Enqueue(chat.BuildAuthAck(uid, s.ID))
			return nil
		}
		return errs.ErrUnauthorized.WithDetail("session already bound to another user")
	}
	if err := ctx.S.ConnMgr().BindUser(context.Background(), s.ID, uid); err != nil {
		return errs.ErrUnauthorized.WrapMsg("bind failed: %v", err)
	}
	logger.Infof("[auth] session=%s user=%s authenticated", s.ID, uid)
	s.Enqueue(chat.BuildAuthAck(uid, s.ID))
	return nil
}
