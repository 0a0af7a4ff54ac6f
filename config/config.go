package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything read from the environment at startup. Nothing in
// here is mutated after Load.
type Config struct {
	ServerPort string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost string
	RedisPort int

	StorageType string
	StoragePath string

	SlackToken    string
	SlackBaseURL  string
	GithubToken   string
	GithubBaseURL string

	HandlerDeadline time.Duration
	MaxCallDepth    int
	MaxSourceBytes  int
	MaxPayloadBytes int
	MaxResultBytes  int

	SyncInterval time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults (SERVER_PORT, DB_HOST, SLACK_TOKEN, ...).
func Load() *Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "17760")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "hookrunner")
	v.SetDefault("db.password", "hookrunner")
	v.SetDefault("db.name", "hookrunner")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "/data/handlers")

	v.SetDefault("slack.token", "no-slack")
	v.SetDefault("slack.base.url", "https://slack.com/api")
	v.SetDefault("github.token", "no-github")
	v.SetDefault("github.base.url", "https://api.github.com")

	v.SetDefault("handler.deadline", 5*time.Second)
	v.SetDefault("handler.max.call.depth", 256)
	v.SetDefault("handler.max.source.bytes", 64*1024)
	v.SetDefault("handler.max.payload.bytes", 1024*1024)
	v.SetDefault("handler.max.result.bytes", 1024*1024)

	v.SetDefault("sync.interval", 30*time.Second)

	return &Config{
		ServerPort: v.GetString("server.port"),

		DBHost:     v.GetString("db.host"),
		DBPort:     v.GetInt("db.port"),
		DBUser:     v.GetString("db.user"),
		DBPassword: v.GetString("db.password"),
		DBName:     v.GetString("db.name"),

		RedisHost: v.GetString("redis.host"),
		RedisPort: v.GetInt("redis.port"),

		StorageType: v.GetString("storage.type"),
		StoragePath: v.GetString("storage.path"),

		SlackToken:    v.GetString("slack.token"),
		SlackBaseURL:  v.GetString("slack.base.url"),
		GithubToken:   v.GetString("github.token"),
		GithubBaseURL: v.GetString("github.base.url"),

		HandlerDeadline: v.GetDuration("handler.deadline"),
		MaxCallDepth:    v.GetInt("handler.max.call.depth"),
		MaxSourceBytes:  v.GetInt("handler.max.source.bytes"),
		MaxPayloadBytes: v.GetInt("handler.max.payload.bytes"),
		MaxResultBytes:  v.GetInt("handler.max.result.bytes"),

		SyncInterval: v.GetDuration("sync.interval"),
	}
}
