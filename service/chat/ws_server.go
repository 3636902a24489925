package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"AreaLink/logger"
	errs "AreaLink/tools/errs"
	"AreaLink/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var errUnauthenticated = errs.ErrUnauthorized.WithDetail("authenticate first")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS 连接全生命周期：登记 -> 首帧认证 -> 读循环 -> 注销。
// 写侧单协程消费会话队列；读侧只读不写，出错即退出。
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	sess := s.conns.AddUnauth(ws)
	s.conns.AttachPongHandler(ws, sess.ID)
	startWriter(sess, s.conf.PingInterval)

	sess.enqueue(BuildConnAck(sess.ID, s.conf.GatewayID, s.conf.PingInterval))

	ctx := &Context{S: s}
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed session=%s err=%v", sess.ID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout session=%s err=%v", sess.ID, rerr)
			} else {
				logger.Infof("[WS] read err session=%s err=%v", sess.ID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[WS] ParseFrame err session=%s err=%v sample=%q", sess.ID, perr, sample)
			continue
		}

		// 未认证连接只放行 auth/ping
		if sess.UserID == "" && f.Type != FrameAuth && f.Type != FramePing {
			sess.enqueue(BuildError(errUnauthenticated))
			continue
		}

		if err := dispatchSafely(s.disp, ctx, f, sess); err != nil {
			// 业务拒绝同步回发送方；不影响连接其余流量
			sess.enqueue(BuildError(err))
			logger.Infof("[WS] dispatch type=%s session=%s user=%s err=%v", f.Type, sess.ID, sess.UserID, err)
		}
	}

	// 退出即原子注销：presence 边沿、位置订阅清理都在注销路径里
	s.conns.Unregister(context.Background(), sess.ID)
}

// dispatchSafely 把 handler 的 panic 限制在当前帧：
// 记一条日志后连接继续收发，绝不拖垮其他会话。
func dispatchSafely(d *Dispatcher, ctx *Context, f *Frame, sess *Session) (err error) {
	defer safe.Recover("dispatch")
	return d.Dispatch(ctx, f, sess)
}

// startWriter 每会话唯一写协程：队列 + ping 定时器。
func startWriter(sess *Session, pingInterval time.Duration) {
	safe.SafeGo(func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sess.Done():
				return
			case data := <-sess.Send:
				_ = sess.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := sess.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
					logger.Infof("[WS] write err session=%s err=%v", sess.ID, err)
					sess.close()
					return
				}
			case <-ticker.C:
				_ = sess.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := sess.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					sess.close()
					return
				}
			}
		}
	})
}
