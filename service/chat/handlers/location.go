package handlers

import (
	"context"

	"AreaLink/service/chat"
	errs "AreaLink/tools/errs"
)

// LocationHandler 位置上报：校验、存最新、即时扇出。
// Submit 对慢观察者只丢样本，这里永远不会因为收端阻塞。
type LocationHandler struct{}

func NewLocationHandler() chat.Handler          { return &LocationHandler{} }
func (h *LocationHandler) Type() chat.FrameType { return chat.FrameLocation }

func (h *LocationHandler) Handle(ctx *chat.Context, f *chat.Frame, s *chat.Session) error {
	var p chat.LocationPayload
	if err := f.DecodePayload(&p); err != nil {
		return errs.ErrValidation.WrapMsg("bad location payload: %v", err)
	}
	return ctx.S.Locations().Submit(context.Background(), s.UserID, p.Latitude, p.Longitude, p.CapturedAt)
}
