package storage

import (
	"context"

	"AreaLink/module/chat/store"
	redisc "AreaLink/service/storage/redis"
)

// area membership: al:area:u:<user> = set of area ids the user belongs to.
// 区域多边形与进出判定在外部服务，这里只消费成员集合。
func areaKey(user string) string { return "al:area:u:" + user }

// AreaIndex Redis 区域成员索引。
type AreaIndex struct{}

// Join/Leave 由外部区域服务在用户进出区域时调用。
func (AreaIndex) Join(ctx context.Context, userID, areaID string) error {
	return redisc.GetRedis().SAdd(ctx, areaKey(userID), areaID).Err()
}

func (AreaIndex) Leave(ctx context.Context, userID, areaID string) error {
	return redisc.GetRedis().SRem(ctx, areaKey(userID), areaID).Err()
}

// SharesArea 两个用户是否同处至少一个区域。
func (AreaIndex) SharesArea(ctx context.Context, a, b string) (bool, error) {
	n, err := redisc.GetRedis().SInterCard(ctx, 1, areaKey(a), areaKey(b)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AreaChecker is the shared-area predicate the location view policy consumes.
type AreaChecker interface {
	SharesArea(ctx context.Context, a, b string) (bool, error)
}

// ViewPolicy 位置可见性 = 互为好友 + 共享区域。
// Areas 为 nil 时退化为仅好友（单区域部署/本地调试）。
// 实现 location.ViewPolicy。
type ViewPolicy struct {
	Friends store.FriendStore
	Areas   AreaChecker
}

func (p *ViewPolicy) CanView(ctx context.Context, viewerID, targetID string) (bool, error) {
	ok, err := p.Friends.IsFriend(ctx, viewerID, targetID)
	if err != nil || !ok {
		return false, err
	}
	if p.Areas == nil {
		return true, nil
	}
	return p.Areas.SharesArea(ctx, viewerID, targetID)
}
