package store

import (
	"context"
	"time"

	"AreaLink/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo 持久实现。房间唯一性靠 pair_key 唯一索引兜底：
// 进程内的按对加锁挡掉本节点竞争，索引挡掉跨节点竞争。
type Mongo struct {
	RoomColl   *mongo.Collection
	MsgColl    *mongo.Collection
	FriendColl *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		RoomColl:   db.Collection(model.RoomCollection),
		MsgColl:    db.Collection(model.MessageCollection),
		FriendColl: db.Collection(model.FriendCollection),
	}
}

// EnsureIndexes 建索引；启动时调用一次。
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.RoomColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: model.RoomFieldPairKey, Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: model.RoomFieldUserA, Value: 1}, {Key: model.RoomFieldUpdatedAt, Value: -1}}},
		{Keys: bson.D{{Key: model.RoomFieldUserB, Value: 1}, {Key: model.RoomFieldUpdatedAt, Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.MsgColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: model.MessageFieldRoomID, Value: 1}, {Key: model.MessageFieldSeq, Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: model.MessageFieldID, Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return err
	}
	_, err = s.FriendColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: model.FriendFieldOwnerUserID, Value: 1}, {Key: model.FriendFieldFriendUserID, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// ===== RoomStore =====

func (s *Mongo) Insert(ctx context.Context, room *model.ChatRoom) error {
	_, err := s.RoomColl.InsertOne(ctx, room)
	if mongo.IsDuplicateKeyError(err) {
		return ErrRoomExists
	}
	return err
}

func (s *Mongo) FindByPair(ctx context.Context, pairKey string) (*model.ChatRoom, error) {
	return s.findRoom(ctx, bson.M{model.RoomFieldPairKey: pairKey})
}

func (s *Mongo) Get(ctx context.Context, roomID string) (*model.ChatRoom, error) {
	return s.findRoom(ctx, bson.M{model.RoomFieldID: roomID})
}

func (s *Mongo) findRoom(ctx context.Context, filter bson.M) (*model.ChatRoom, error) {
	var out model.ChatRoom
	err := s.RoomColl.FindOne(ctx, filter).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Mongo) ListByUser(ctx context.Context, userID string) ([]*model.ChatRoom, error) {
	cur, err := s.RoomColl.Find(ctx,
		bson.M{"$or": bson.A{
			bson.M{model.RoomFieldUserA: userID},
			bson.M{model.RoomFieldUserB: userID},
		}},
		options.Find().SetSort(bson.M{model.RoomFieldUpdatedAt: -1}),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []*model.ChatRoom
	for cur.Next(ctx) {
		var r model.ChatRoom
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (s *Mongo) Touch(ctx context.Context, roomID string, at time.Time) error {
	_, err := s.RoomColl.UpdateOne(ctx,
		bson.M{model.RoomFieldID: roomID},
		bson.M{"$max": bson.M{model.RoomFieldUpdatedAt: at}},
	)
	return err
}

// ===== MessageStore =====

// Messages exposes the message side under its own receiver so that the
// Insert/Get method sets of the two contracts stay distinct.
func (s *Mongo) Messages() *MongoMessages { return &MongoMessages{s} }

type MongoMessages struct{ *Mongo }

func (s *MongoMessages) Insert(ctx context.Context, msg *model.Message) error {
	_, err := s.MsgColl.InsertOne(ctx, msg)
	return err
}

func (s *MongoMessages) Get(ctx context.Context, msgID string) (*model.Message, error) {
	var out model.Message
	err := s.MsgColl.FindOne(ctx, bson.M{model.MessageFieldID: msgID}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoMessages) MaxSeq(ctx context.Context, roomID string) (int64, error) {
	cur, err := s.MsgColl.Find(ctx,
		bson.M{model.MessageFieldRoomID: roomID},
		options.Find().SetSort(bson.M{model.MessageFieldSeq: -1}).SetLimit(1),
	)
	if err != nil {
		return 0, err
	}
	defer func() { _ = cur.Close(ctx) }()
	if cur.Next(ctx) {
		var m model.Message
		if err := cur.Decode(&m); err != nil {
			return 0, err
		}
		return m.Seq, nil
	}
	return 0, cur.Err()
}

func (s *MongoMessages) ListAfter(ctx context.Context, roomID string, afterSeq int64, limit int64) ([]*model.Message, error) {
	opts := options.Find().SetSort(bson.M{model.MessageFieldSeq: 1})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cur, err := s.MsgColl.Find(ctx, bson.M{
		model.MessageFieldRoomID: roomID,
		model.MessageFieldSeq:    bson.M{"$gt": afterSeq},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []*model.Message
	for cur.Next(ctx) {
		var m model.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (s *MongoMessages) AddReadBy(ctx context.Context, msgID, readerID string) error {
	_, err := s.MsgColl.UpdateOne(ctx,
		bson.M{model.MessageFieldID: msgID},
		bson.M{"$addToSet": bson.M{model.MessageFieldReadBy: readerID}},
	)
	return err
}

func (s *MongoMessages) CountUnread(ctx context.Context, roomID, userID string) (int64, error) {
	return s.MsgColl.CountDocuments(ctx, bson.M{
		model.MessageFieldRoomID:   roomID,
		model.MessageFieldSenderID: bson.M{"$ne": userID},
		model.MessageFieldReadBy:   bson.M{"$ne": userID},
	})
}

// ===== FriendStore =====

func (s *Mongo) IsFriend(ctx context.Context, a, b string) (bool, error) {
	n, err := s.FriendColl.CountDocuments(ctx, bson.M{
		"$or": bson.A{
			bson.M{model.FriendFieldOwnerUserID: a, model.FriendFieldFriendUserID: b,
				model.FriendFieldStatus: model.FriendStatusAccepted, model.FriendFieldIsBlocked: false},
			bson.M{model.FriendFieldOwnerUserID: b, model.FriendFieldFriendUserID: a,
				model.FriendFieldStatus: model.FriendStatusAccepted, model.FriendFieldIsBlocked: false},
		},
	})
	if err != nil {
		return false, err
	}
	return n == 2, nil
}

func (s *Mongo) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	cur, err := s.FriendColl.Find(ctx, bson.M{
		model.FriendFieldOwnerUserID: userID,
		model.FriendFieldStatus:      model.FriendStatusAccepted,
		model.FriendFieldIsBlocked:   false,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []string
	for cur.Next(ctx) {
		var f model.Friend
		if err := cur.Decode(&f); err != nil {
			return nil, err
		}
		out = append(out, f.FriendUserID)
	}
	return out, cur.Err()
}
