package storage

import (
	"context"
	"strconv"
	"time"

	redisc "AreaLink/service/storage/redis"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// presence key: al:presence:<user>
// Value: gateway_id, TTL controls the online validity period.
// last-seen key: al:lastseen:<user> (Unix ms, no TTL).
func presenceKey(user string) string { return "al:presence:" + user }
func lastSeenKey(user string) string { return "al:lastseen:" + user }

// PresenceMirror 将本节点的在线位镜像到 Redis，供其他网关节点路由时查询。
// 实现 presence.Mirror。
type PresenceMirror struct {
	GatewayID string
	TTL       time.Duration
}

func NewPresenceMirror(gatewayID string, ttl time.Duration) *PresenceMirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &PresenceMirror{GatewayID: gatewayID, TTL: ttl}
}

func (m *PresenceMirror) Online(ctx context.Context, userID string) error {
	return redisc.GetRedis().Set(ctx, presenceKey(userID), m.GatewayID, m.TTL).Err()
}

func (m *PresenceMirror) Offline(ctx context.Context, userID string, lastSeen time.Time) error {
	pipe := redisc.GetRedis().TxPipeline()
	pipe.Del(ctx, presenceKey(userID))
	pipe.Set(ctx, lastSeenKey(userID), strconv.FormatInt(lastSeen.UnixMilli(), 10), 0)
	_, err := pipe.Exec(ctx)
	return err
}

// Renew 心跳续期（随连接心跳调用）。
func (m *PresenceMirror) Renew(ctx context.Context, userID string) error {
	return redisc.GetRedis().Expire(ctx, presenceKey(userID), m.TTL).Err()
}

// Lookup 查询用户挂在哪个网关；不在线返回 ("", false, nil)。
func (m *PresenceMirror) Lookup(ctx context.Context, userID string) (string, bool, error) {
	return Lookup(ctx, userID)
}

func Lookup(ctx context.Context, userID string) (gatewayID string, online bool, err error) {
	val, err := redisc.GetRedis().Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// LastSeen 读取最近一次下线时间；从未下线过返回零值。
func (m *PresenceMirror) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	return LastSeen(ctx, userID)
}

func LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := redisc.GetRedis().Get(ctx, lastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "bad lastseen value")
	}
	return time.UnixMilli(ms), nil
}
