package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"AreaLink/global"
	"AreaLink/logger"
	mid "AreaLink/middleware"
	msgseq "AreaLink/module/chat/message"
	"AreaLink/module/chat/room"
	"AreaLink/module/chat/store"
	"AreaLink/service/chat"
	"AreaLink/service/chat/handlers"
	"AreaLink/service/kafka"
	"AreaLink/service/natsx"
	"AreaLink/service/storage"
	redisc "AreaLink/service/storage/redis"
)

func main() {
	global.ConfigAll()
	app := global.App

	// 1) 存储：配了 MongoDB 用 Mongo，否则内存（本地调试）
	var (
		rooms   store.RoomStore
		msgs    store.MessageStore
		friends store.FriendStore
	)
	if app.MongoDB != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		cli, err := mongo.Connect(ctx, options.Client().ApplyURI(app.MongoURI))
		if err != nil {
			cancel()
			log.Fatalf("mongo connect: %v", err)
		}
		cancel()
		mg := store.NewMongo(cli.Database(app.MongoDB))
		if err := mg.EnsureIndexes(context.Background()); err != nil {
			log.Fatalf("mongo indexes: %v", err)
		}
		rooms, msgs, friends = mg, mg.Messages(), mg
	} else {
		mem := store.NewMemory()
		rooms, msgs, friends = mem, store.MemoryMessages{Memory: mem}, mem
		logger.Warnf("no AL_MONGO_DB set, using in-memory store")
	}

	// 2) 可见性策略与出场镜像（Redis 不可用时降级）
	policy := &storage.ViewPolicy{Friends: friends}
	deps := chat.ServerDeps{
		Rooms:    room.NewManager(rooms),
		Messages: msgseq.NewSequencer(msgs, rooms),
		Friends:  friends,
		Policy:   policy,
		Tokens:   chat.JWTValidator{Opts: global.JwtOptions()},
	}
	if redisc.Ready() {
		policy.Areas = storage.AreaIndex{}
		deps.Mirror = storage.NewPresenceMirror(app.GatewayNodeId, 2*time.Minute)
	}

	// 3) 可选外设：Kafka 归档、NATS 跨网关桥
	if len(app.KafkaBrokers) > 0 {
		archive, err := kafka.NewArchive(app.KafkaBrokers)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		defer archive.Close()
		deps.Archive = archive
	}
	var bridge *natsx.Bridge
	if len(app.NatsServers) > 0 {
		var err error
		bridge, err = natsx.NewBridge(natsx.Config{
			Servers: app.NatsServers,
			Name:    app.GatewayNodeId,
		}, app.GatewayNodeId)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
		defer bridge.Close()
		deps.Bridge = bridge
	}

	srv := chat.NewServer(chat.ServerConf{GatewayID: app.GatewayNodeId}, deps)
	defer srv.Close()
	handlers.RegisterAll(srv)

	if bridge != nil {
		if err := bridge.StartDeliverLoop(srv.DeliverLocal); err != nil {
			log.Fatalf("nats subscribe: %v", err)
		}
	}

	// 4) HTTP/WS
	r := gin.Default()
	r.Use(mid.Origin())
	srv.MountRoutes(r)

	logger.Infof("gateway %s listening on %s", app.GatewayNodeId, app.Addr)
	if err := r.Run(app.Addr); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
