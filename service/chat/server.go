package chat

import (
	"context"
	"sync"
	"time"

	"AreaLink/logger"
	msgseq "AreaLink/module/chat/message"
	"AreaLink/module/chat/model"
	"AreaLink/module/chat/room"
	"AreaLink/module/chat/store"
	"AreaLink/module/location"
	"AreaLink/module/presence"
	errs "AreaLink/tools/errs"
	"AreaLink/tools/safe"
	"AreaLink/tools/security"
)

type ServerConf struct {
	GatewayID    string
	PingInterval time.Duration
	Manager      ManagerConf
	FanoutWorker int
	FanoutQueue  int
}

func (c *ServerConf) norm() {
	if c.GatewayID == "" {
		c.GatewayID = "gw-1"
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
}

// TokenValidator 入站连接认证：token -> userID。签发在上游。
type TokenValidator interface {
	Validate(token string) (string, error)
}

// JWTValidator is the default TokenValidator.
type JWTValidator struct {
	Opts security.Options
}

func (v JWTValidator) Validate(token string) (string, error) {
	uid, err := security.Verify(v.Opts, token)
	if err != nil {
		return "", errs.ErrUnauthorized.WrapMsg("token rejected: %v", err)
	}
	return uid, nil
}

// Archiver 消息落归档流（Kafka），尽力而为。可为 nil。
type Archiver interface {
	ArchiveMessage(m *model.Message)
}

// Bridge 跨网关投递（NATS）：本节点没有收端会话时转发出去。可为 nil。
type Bridge interface {
	PublishDeliver(userID string, payload []byte) error
}

// Server 事件网关：唯一的进出口。只做认证与分发，
// 全部不变量都在 module/ 下的组件里，单测不经过网络。
type Server struct {
	conf    ServerConf
	conns   *ConnManager
	disp    *Dispatcher
	fanout  *Fanout
	tracker *presence.Tracker
	rooms   *room.Manager
	msgs    *msgseq.Sequencer
	loc     *location.Broadcaster
	friends store.FriendStore
	tokens  TokenValidator
	mirror  presence.Mirror

	archive Archiver
	bridge  Bridge

	subMu      sync.Mutex
	subscribed map[string]bool // 已建位置订阅泵的用户
}

type ServerDeps struct {
	Rooms    *room.Manager
	Messages *msgseq.Sequencer
	Friends  store.FriendStore
	Policy   location.ViewPolicy
	Tokens   TokenValidator
	Mirror   presence.Mirror // optional
	Archive  Archiver        // optional
	Bridge   Bridge          // optional
}

func NewServer(conf ServerConf, deps ServerDeps) *Server {
	conf.norm()
	s := &Server{
		conf:       conf,
		disp:       NewDispatcher(),
		fanout:     NewFanout(conf.FanoutWorker, conf.FanoutQueue),
		rooms:      deps.Rooms,
		msgs:       deps.Messages,
		friends:    deps.Friends,
		tokens:     deps.Tokens,
		mirror:     deps.Mirror,
		archive:    deps.Archive,
		bridge:     deps.Bridge,
		subscribed: make(map[string]bool),
	}
	s.loc = location.NewBroadcaster(deps.Policy)
	s.tracker = presence.NewTracker(deps.Friends, func(recipients []string, evt presence.Event) {
		s.DeliverUsers(recipients, BuildFriendStatus(evt))
	})
	if deps.Mirror != nil {
		s.tracker.WithMirror(deps.Mirror)
	}
	s.conns = NewConnManager(conf.Manager, conf.GatewayID)
	s.conns.SetPresence(s)
	return s
}

func (s *Server) Conf() ServerConf                 { return s.conf }
func (s *Server) ConnMgr() *ConnManager            { return s.conns }
func (s *Server) Disp() *Dispatcher                { return s.disp }
func (s *Server) Rooms() *room.Manager             { return s.rooms }
func (s *Server) Messages() *msgseq.Sequencer      { return s.msgs }
func (s *Server) Locations() *location.Broadcaster { return s.loc }
func (s *Server) Presence() *presence.Tracker      { return s.tracker }
func (s *Server) Tokens() TokenValidator           { return s.tokens }

func (s *Server) Close() { s.conns.Close() }

// RenewPresence 随应用层心跳给共享存储里的在线位续期，防止 TTL 把
// 仍然在线的用户标成离线。镜像不支持续期或用户未认证时是 no-op。
func (s *Server) RenewPresence(ctx context.Context, userID string) {
	r, ok := s.mirror.(interface {
		Renew(ctx context.Context, userID string) error
	})
	if !ok || userID == "" {
		return
	}
	if err := r.Renew(ctx, userID); err != nil {
		logger.Warnf("[presence] mirror renew user=%s err=%v", userID, err)
	}
}

// ===== PresenceSink（ConnManager 的边沿回调） =====

func (s *Server) UserOnline(ctx context.Context, userID string) {
	s.tracker.MarkOnline(ctx, userID)
	s.subscribeLocations(ctx, userID)
}

func (s *Server) UserOffline(ctx context.Context, userID string) {
	s.tracker.MarkOffline(ctx, userID)
	s.loc.DropViewer(userID)
	s.subMu.Lock()
	delete(s.subscribed, userID)
	s.subMu.Unlock()
}

// subscribeLocations 上线时拉全好友名单，对可见的目标各起一条订阅泵。
// 回放由 Broadcaster 负责（订阅即得最新样本）。
func (s *Server) subscribeLocations(ctx context.Context, userID string) {
	s.subMu.Lock()
	if s.subscribed[userID] {
		s.subMu.Unlock()
		return
	}
	s.subscribed[userID] = true
	s.subMu.Unlock()

	friends, err := s.friends.FriendIDs(ctx, userID)
	if err != nil {
		logger.Warnf("[gw] friend lookup for location subs user=%s err=%v", userID, err)
		return
	}
	for _, target := range friends {
		ch, err := s.loc.Subscribe(ctx, userID, target)
		if err != nil {
			if !errs.IsCode(err, errs.UnauthorizedCode) {
				logger.Warnf("[gw] subscribe viewer=%s target=%s err=%v", userID, target, err)
			}
			continue
		}
		viewer := userID
		safe.SafeGo(func() {
			for sample := range ch {
				s.DeliverUsers([]string{viewer}, BuildLocationUpdate(sample))
			}
		})
	}
}

// ===== 出站投递 =====

// DeliverUsers 把载荷送往每个用户的全部会话。本地无会话且有桥时走跨节点。
// 返回值无人消费：投递失败对发送方永远不可见。
func (s *Server) DeliverUsers(userIDs []string, payload []byte) {
	for _, uid := range userIDs {
		sessions := s.conns.SessionsFor(uid)
		if len(sessions) > 0 {
			s.fanout.Broadcast(sessions, payload)
			continue
		}
		if s.bridge != nil {
			if err := s.bridge.PublishDeliver(uid, payload); err != nil {
				logger.Warnf("[gw] bridge deliver user=%s err=%v", uid, err)
			}
		}
	}
}

// DeliverLocal 桥的入站侧：只投本地会话，绝不再回桥（防环）。
func (s *Server) DeliverLocal(userID string, payload []byte) {
	if sessions := s.conns.SessionsFor(userID); len(sessions) > 0 {
		s.fanout.Broadcast(sessions, payload)
	}
}

// ===== 聊天链路（handlers 调这里，不直接摸组件） =====

// SendMessage 定序落库后异步扇出给双方；归档为旁路。
func (s *Server) SendMessage(ctx context.Context, senderID, roomID, to, content, kind string) (*model.Message, error) {
	if roomID == "" {
		if to == "" {
			return nil, errs.ErrValidation.WithDetail("roomId or to required")
		}
		r, err := s.rooms.GetOrCreate(ctx, senderID, to)
		if err != nil {
			return nil, err
		}
		roomID = r.ID
	}
	msg, err := s.msgs.Append(ctx, roomID, senderID, content, kind)
	if err != nil {
		return nil, err
	}
	r, err := s.rooms.Get(ctx, roomID)
	if err == nil {
		// 投递与定序解耦：Append 已返回，这里失败只影响收端
		s.DeliverUsers([]string{r.UserA, r.UserB}, BuildMessageCreated(msg))
	}
	if s.archive != nil {
		s.archive.ArchiveMessage(msg)
	}
	return msg, nil
}

// MarkRead 已读回执：落库后通知双方（多端同步自己的已读态也靠它）。
func (s *Server) MarkRead(ctx context.Context, readerID, messageID string) error {
	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.msgs.MarkRead(ctx, messageID, readerID); err != nil {
		return err
	}
	if r, err := s.rooms.Get(ctx, msg.RoomID); err == nil {
		s.DeliverUsers([]string{r.UserA, r.UserB}, BuildReadReceipt(messageID, readerID))
	}
	return nil
}
