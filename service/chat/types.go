package chat

// Handler 处理一种入站帧。会话未认证时只会收到 auth/ping。
type Handler interface {
	Type() FrameType
	Handle(ctx *Context, f *Frame, s *Session) error
}

// Context 帧处理上下文：目前只挂网关本体。
type Context struct {
	S *Server
}
