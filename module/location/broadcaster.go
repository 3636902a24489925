package location

import (
	"context"
	"sync"

	errs "AreaLink/tools/errs"
)

// DefaultQueueSize 每个(观察者,目标)队列的容量。位置流是 latest-wins，
// 队列很小：慢消费者丢最旧的样本而不是拖住 Submit。
const DefaultQueueSize = 16

// Sample 一次位置上报。核心不落盘，仅为新订阅者保留每人最新一条。
type Sample struct {
	UserID     string  `json:"userId"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	CapturedAt int64   `json:"capturedAt"` // Unix ms，客户端时钟
}

// ViewPolicy 位置可见性谓词：好友关系 + 共享区域，由外部协作方实现。
type ViewPolicy interface {
	CanView(ctx context.Context, viewerID, targetID string) (bool, error)
}

// viewerQueue 有界投递队列；满时丢最旧。
type viewerQueue struct {
	ch chan Sample
}

func (q *viewerQueue) push(s Sample) {
	for {
		select {
		case q.ch <- s:
			return
		default:
		}
		// 腾出一个最旧的再试；与消费者竞争时至多空转一圈
		select {
		case <-q.ch:
		default:
		}
	}
}

// Broadcaster 位置分发器。纯多路复用：到达序投递，不按时间戳重排。
// Submit 永不因慢观察者阻塞（见 push 的丢弃策略）。
type Broadcaster struct {
	mu      sync.RWMutex
	latest  map[string]Sample                  // target -> 最新样本
	viewers map[string]map[string]*viewerQueue // target -> viewer -> queue

	policy    ViewPolicy
	queueSize int
}

func NewBroadcaster(policy ViewPolicy) *Broadcaster {
	return &Broadcaster{
		latest:    make(map[string]Sample),
		viewers:   make(map[string]map[string]*viewerQueue),
		policy:    policy,
		queueSize: DefaultQueueSize,
	}
}

// Submit 校验坐标、记为最新样本并即时扇出给所有已订阅观察者。
func (b *Broadcaster) Submit(_ context.Context, userID string, lat, lon float64, capturedAt int64) error {
	if userID == "" {
		return errs.ErrValidation.WithDetail("empty user id")
	}
	if lat < -90 || lat > 90 {
		return errs.ErrValidation.WrapMsg("latitude %v out of [-90,90]", lat)
	}
	if lon < -180 || lon > 180 {
		return errs.ErrValidation.WrapMsg("longitude %v out of [-180,180]", lon)
	}
	s := Sample{UserID: userID, Latitude: lat, Longitude: lon, CapturedAt: capturedAt}

	b.mu.Lock()
	b.latest[userID] = s
	// 持锁只做入队；push 不阻塞，锁粒度可控
	for _, q := range b.viewers[userID] {
		q.push(s)
	}
	b.mu.Unlock()
	return nil
}

// Subscribe 订阅目标的位置流。若目标已有样本则先回放（新订阅者不用等
// 目标下一次移动）。返回的通道在 Unsubscribe/DropViewer 时关闭。
func (b *Broadcaster) Subscribe(ctx context.Context, viewerID, targetID string) (<-chan Sample, error) {
	if viewerID == "" || targetID == "" {
		return nil, errs.ErrValidation.WithDetail("empty viewer/target id")
	}
	if viewerID == targetID {
		return nil, errs.ErrValidation.WithDetail("cannot subscribe to yourself")
	}
	ok, err := b.policy.CanView(ctx, viewerID, targetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrUnauthorized.WrapMsg("user %s may not view %s", viewerID, targetID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.viewers[targetID]
	if m == nil {
		m = make(map[string]*viewerQueue)
		b.viewers[targetID] = m
	}
	if old, exists := m[viewerID]; exists {
		// 重复订阅：复用既有队列，避免双路投递
		return old.ch, nil
	}
	q := &viewerQueue{ch: make(chan Sample, b.queueSize)}
	m[viewerID] = q
	if last, has := b.latest[targetID]; has {
		q.push(last) // 回放
	}
	return q.ch, nil
}

// Unsubscribe 取消某一路订阅；不存在是 no-op。
func (b *Broadcaster) Unsubscribe(viewerID, targetID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.viewers[targetID]; m != nil {
		if q, ok := m[viewerID]; ok {
			delete(m, viewerID)
			close(q.ch)
		}
		if len(m) == 0 {
			delete(b.viewers, targetID)
		}
	}
}

// DropViewer 观察者最后一条会话断开时调用，撤掉它的全部订阅。
func (b *Broadcaster) DropViewer(viewerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for target, m := range b.viewers {
		if q, ok := m[viewerID]; ok {
			delete(m, viewerID)
			close(q.ch)
		}
		if len(m) == 0 {
			delete(b.viewers, target)
		}
	}
}

// Latest 返回目标的最新样本（仅查询，不做授权；调用方自证权限）。
func (b *Broadcaster) Latest(targetID string) (Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.latest[targetID]
	return s, ok
}
