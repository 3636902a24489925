package chat

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "AreaLink/tools/errs"

	"github.com/gin-gonic/gin"
)

// REST 查询面：房间列表 / 历史分页 / 未读数。
// 全是对核心组件状态的只读派生视图，写路径只走 WebSocket。

// MountRoutes registers the websocket endpoint and the query surface.
func (s *Server) MountRoutes(r *gin.Engine) {
	r.GET("/ws", s.HandleWS)
	api := r.Group("/api", s.authMiddleware())
	api.GET("/rooms", s.handleListRooms)
	api.GET("/rooms/:id/messages", s.handleHistory)
	api.GET("/rooms/:id/unread", s.handleUnread)
	api.GET("/presence/:id", s.handlePresence)
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errs.UnauthorizedCode, "msg": "missing token"})
			return
		}
		uid, err := s.tokens.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errs.UnauthorizedCode, "msg": "token rejected"})
			return
		}
		c.Set("userID", uid)
		c.Next()
	}
}

func abortWith(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errs.ValidationCode:
		status = http.StatusBadRequest
	case errs.UnauthorizedCode:
		status = http.StatusForbidden
	case errs.NotFoundCode:
		status = http.StatusNotFound
	}
	if code == 0 {
		c.JSON(status, gin.H{"code": status, "msg": "internal error"})
		return
	}
	c.JSON(status, gin.H{"code": code, "msg": err.Error()})
}

func (s *Server) handleListRooms(c *gin.Context) {
	uid := c.GetString("userID")
	list, err := s.rooms.ListFor(c.Request.Context(), uid)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": list})
}

func (s *Server) handleHistory(c *gin.Context) {
	uid := c.GetString("userID")
	after, _ := strconv.ParseInt(c.Query("after"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	list, next, err := s.msgs.History(c.Request.Context(), c.Param("id"), uid, after, limit)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": list, "nextCursor": next})
}

// handlePresence 查好友在线状态。本地会话集优先；本地不在线且配了
// 共享镜像时再查一次，覆盖挂在其他网关节点上的情况。
func (s *Server) handlePresence(c *gin.Context) {
	uid := c.GetString("userID")
	target := c.Param("id")
	ok, err := s.friends.IsFriend(c.Request.Context(), uid, target)
	if err != nil {
		abortWith(c, err)
		return
	}
	if !ok {
		abortWith(c, errs.ErrUnauthorized.WithDetail("not friends"))
		return
	}

	online, lastSeen := s.tracker.Snapshot(target)
	if !online {
		if lk, can := s.mirror.(interface {
			Lookup(ctx context.Context, userID string) (string, bool, error)
		}); can {
			if _, remote, lerr := lk.Lookup(c.Request.Context(), target); lerr == nil {
				online = remote
			}
		}
	}
	// 本地从没见过这个用户时，下线时间也从共享镜像补
	if lastSeen.IsZero() {
		if ls, can := s.mirror.(interface {
			LastSeen(ctx context.Context, userID string) (time.Time, error)
		}); can {
			if remote, lerr := ls.LastSeen(c.Request.Context(), target); lerr == nil {
				lastSeen = remote
			}
		}
	}
	resp := gin.H{"userId": target, "isOnline": online}
	if !lastSeen.IsZero() {
		resp["lastSeenAt"] = lastSeen.UnixMilli()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleUnread(c *gin.Context) {
	uid := c.GetString("userID")
	n, err := s.msgs.UnreadCount(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}
