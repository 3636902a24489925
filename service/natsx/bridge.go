package natsx

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"AreaLink/logger"
	"AreaLink/tools/safe"
)

// SubjectDeliver 跨网关投递主题：本节点没有收端会话时把帧转出去，
// 持有会话的网关收到后只做本地投递，不再回桥（防环）。
const SubjectDeliver = "al.deliver"

const (
	hdrOrigin = "X-Origin-Gw"
	hdrUser   = "X-User"
)

// Config 连接配置
type Config struct {
	Servers       []string
	Name          string // 连接名，一般用网关 ID
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Bridge NATS 投递桥，实现 chat.Bridge。
type Bridge struct {
	nc   *nats.Conn
	gwID string
	sub  *nats.Subscription
}

// NewBridge 连接 NATS
func NewBridge(cfg Config, gatewayID string) (*Bridge, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &Bridge{nc: nc, gwID: gatewayID}, nil
}

// PublishDeliver 把给某用户的帧广播到其他网关。
func (b *Bridge) PublishDeliver(userID string, payload []byte) error {
	msg := &nats.Msg{
		Subject: SubjectDeliver,
		Data:    payload,
		Header: nats.Header{
			hdrOrigin: []string{b.gwID},
			hdrUser:   []string{userID},
		},
	}
	if err := b.nc.PublishMsg(msg); err != nil {
		return errors.Wrap(err, "publish deliver")
	}
	return nil
}

// StartDeliverLoop 订阅投递主题，收到非本网关来源的帧时交给 deliver 做本地投递。
func (b *Bridge) StartDeliverLoop(deliver func(userID string, payload []byte)) error {
	sub, err := b.nc.Subscribe(SubjectDeliver, func(m *nats.Msg) {
		if m.Header.Get(hdrOrigin) == b.gwID {
			return // 自己发出去的
		}
		uid := m.Header.Get(hdrUser)
		if uid == "" {
			return
		}
		data := append([]byte(nil), m.Data...)
		safe.SafeGo(func() {
			deliver(uid, data)
		})
	})
	if err != nil {
		return errors.Wrap(err, "subscribe deliver")
	}
	b.sub = sub
	logger.Infof("nats deliver loop started gw=%s subject=%s", b.gwID, SubjectDeliver)
	return nil
}

// Close 解订阅并断开连接。
func (b *Bridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
}
