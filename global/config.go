package global

import (
	"os"
	"strconv"
	"strings"

	"AreaLink/logger"
	redis "AreaLink/service/storage/redis"
	ids "AreaLink/tools/ids"
	"AreaLink/tools/security"
)

// AppConfig 网关运行配置：环境变量可覆盖，缺省走本机默认值。
type AppConfig struct {
	GatewayNodeId string // 节点 Id，也作 NATS 连接名
	Addr          string // http 监听地址
	NodeID        int64  // snowflake 节点号

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI string
	MongoDB  string // 为空时用内存存储

	NatsServers  []string // 为空时不起跨网关桥
	KafkaBrokers []string // 为空时不归档

	JwtSecret string
}

var App AppConfig

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		logger.Warnf("bad %s=%q, using %d", key, v, def)
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ConfigAll 按顺序加载全部配置。
func ConfigAll() {
	App = AppConfig{
		GatewayNodeId: env("AL_GATEWAY_ID", "gw-1"),
		Addr:          env("AL_ADDR", ":8080"),
		NodeID:        envInt("AL_NODE_ID", 100),
		RedisAddr:     env("AL_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("AL_REDIS_PASSWORD"),
		RedisDB:       int(envInt("AL_REDIS_DB", 0)),
		MongoURI:      env("AL_MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:       os.Getenv("AL_MONGO_DB"),
		NatsServers:   envList("AL_NATS_SERVERS"),
		KafkaBrokers:  envList("AL_KAFKA_BROKERS"),
		JwtSecret:     env("AL_JWT_SECRET", "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o="),
	}
	ConfigIds()
	ConfigRedis()
}

func ConfigIds() {
	ids.SetNodeID(App.NodeID)
}

func ConfigRedis() {
	config := redis.Config{
		Addr: App.RedisAddr, Password: App.RedisPassword, DB: App.RedisDB,
	}
	if err := redis.InitRedis(config); err != nil {
		logger.Warnf("redis unavailable, presence mirror disabled: %v", err)
	}
}

// JwtOptions 签发/校验参数。
func JwtOptions() security.Options {
	return security.DefaultOptions([]byte(App.JwtSecret))
}
