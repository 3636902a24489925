package handlers

import (
	"AreaLink/service/chat"
)

// RegisterAll 把全部帧处理器挂到网关的分发表上。
func RegisterAll(s *chat.Server) {
	for _, h := range []chat.Handler{
		NewAuthHandler(),
		NewPingHandler(),
		NewStatusHandler(),
		NewLocationHandler(),
		NewSendHandler(),
		NewReadHandler(),
	} {
		s.Disp().Register(h)
	}
}
