package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/watchsync/internal/app"
	"github.com/sharetube/watchsync/pkg/protocol"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:       "SERVER_SECRET",
		flagKey:      "secret",
		defaultValue: "",
		usage:        "Secret used to verify join tokens",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
		usage:        "Server port",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	store = configVar[string]{
		envKey:       "SERVER_STORE",
		flagKey:      "store",
		defaultValue: app.StoreMemory,
		usage:        "Room store: memory or redis",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
	redisDB = configVar[int]{
		envKey:       "REDIS_DB",
		flagKey:      "redis-db",
		defaultValue: 0,
		usage:        "Redis database",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 0,
		usage:        "Maximum number of participants in a room, 0 for unlimited",
	}
	playlistLimit = configVar[int]{
		envKey:       "SERVER_PLAYLIST_LIMIT",
		flagKey:      "playlist-limit",
		defaultValue: 0,
		usage:        "Maximum number of videos in a playlist, 0 for unlimited",
	}
	roomInactivity = configVar[time.Duration]{
		envKey:       "SERVER_ROOM_INACTIVITY",
		flagKey:      "room-inactivity",
		defaultValue: 10 * time.Minute,
		usage:        "How long an empty room is kept",
	}
	janitorInterval = configVar[time.Duration]{
		envKey:       "SERVER_JANITOR_INTERVAL",
		flagKey:      "janitor-interval",
		defaultValue: time.Minute,
		usage:        "How often expired rooms are swept from the memory store",
	}
	syncMode = configVar[string]{
		envKey:       "SERVER_SYNC_MODE",
		flagKey:      "sync-mode",
		defaultValue: string(protocol.SyncModeImmediate),
		usage:        "Video sync mode: immediate or scheduled",
	}
	scheduleLead = configVar[time.Duration]{
		envKey:       "SERVER_SCHEDULE_LEAD",
		flagKey:      "schedule-lead",
		defaultValue: 3 * time.Second,
		usage:        "Delay before a scheduled command executes",
	}
	wsMessagesPerSecond = configVar[float64]{
		envKey:       "SERVER_WS_MESSAGES_PER_SECOND",
		flagKey:      "ws-messages-per-second",
		defaultValue: 20,
		usage:        "Inbound websocket messages per second per connection, 0 disables limiting",
	}
	wsBurst = configVar[int]{
		envKey:       "SERVER_WS_BURST",
		flagKey:      "ws-burst",
		defaultValue: 40,
		usage:        "Inbound websocket message burst per connection",
	}
	wsReadTimeout = configVar[time.Duration]{
		envKey:       "SERVER_WS_READ_TIMEOUT",
		flagKey:      "ws-read-timeout",
		defaultValue: 2 * time.Minute,
		usage:        "Idle websocket connections are dropped after this long",
	}
	chatPersistTimeout = configVar[time.Duration]{
		envKey:       "SERVER_CHAT_PERSIST_TIMEOUT",
		flagKey:      "chat-persist-timeout",
		defaultValue: 5 * time.Second,
		usage:        "Timeout for storing a chat message",
	}
	metadataLookup = configVar[bool]{
		envKey:       "SERVER_METADATA_LOOKUP",
		flagKey:      "metadata-lookup",
		defaultValue: false,
		usage:        "Fill missing playlist item details from YouTube",
	}
	shutdownGracePeriod = configVar[time.Duration]{
		envKey:       "SERVER_SHUTDOWN_GRACE_PERIOD",
		flagKey:      "shutdown-grace-period",
		defaultValue: 30 * time.Second,
		usage:        "Time allowed for in-flight requests on shutdown",
	}
)

func bind[T any](v configVar[T], register func(name string, value T, usage string) *T) {
	register(v.flagKey, v.defaultValue, v.usage)
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() (*app.AppConfig, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	configFile := pflag.String("config", "", "Optional config file (yaml, json or toml)")

	bind(secret, pflag.String)
	bind(host, pflag.String)
	bind(port, pflag.Int)
	bind(logLevel, pflag.String)
	bind(store, pflag.String)
	bind(redisHost, pflag.String)
	bind(redisPort, pflag.Int)
	bind(redisPassword, pflag.String)
	bind(redisDB, pflag.Int)
	bind(membersLimit, pflag.Int)
	bind(playlistLimit, pflag.Int)
	bind(roomInactivity, pflag.Duration)
	bind(janitorInterval, pflag.Duration)
	bind(syncMode, pflag.String)
	bind(scheduleLead, pflag.Duration)
	bind(wsMessagesPerSecond, pflag.Float64)
	bind(wsBurst, pflag.Int)
	bind(wsReadTimeout, pflag.Duration)
	bind(chatPersistTimeout, pflag.Duration)
	bind(metadataLookup, pflag.Bool)
	bind(shutdownGracePeriod, pflag.Duration)
	pflag.Parse()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if *configFile != "" {
		viper.SetConfigFile(*configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &app.AppConfig{
		Secret:              viper.GetString(secret.flagKey),
		Host:                viper.GetString(host.flagKey),
		Port:                viper.GetInt(port.flagKey),
		LogLevel:            viper.GetString(logLevel.flagKey),
		Store:               viper.GetString(store.flagKey),
		RedisHost:           viper.GetString(redisHost.flagKey),
		RedisPort:           viper.GetInt(redisPort.flagKey),
		RedisPassword:       viper.GetString(redisPassword.flagKey),
		RedisDB:             viper.GetInt(redisDB.flagKey),
		MembersLimit:        viper.GetInt(membersLimit.flagKey),
		PlaylistLimit:       viper.GetInt(playlistLimit.flagKey),
		RoomInactivity:      viper.GetDuration(roomInactivity.flagKey),
		JanitorInterval:     viper.GetDuration(janitorInterval.flagKey),
		SyncMode:            protocol.SyncMode(viper.GetString(syncMode.flagKey)),
		ScheduleLead:        viper.GetDuration(scheduleLead.flagKey),
		WSMessagesPerSecond: viper.GetFloat64(wsMessagesPerSecond.flagKey),
		WSBurst:             viper.GetInt(wsBurst.flagKey),
		WSReadTimeout:       viper.GetDuration(wsReadTimeout.flagKey),
		ChatPersistTimeout:  viper.GetDuration(chatPersistTimeout.flagKey),
		MetadataLookup:      viper.GetBool(metadataLookup.flagKey),
		ShutdownGracePeriod: viper.GetDuration(shutdownGracePeriod.flagKey),
	}

	return config, nil
}

func main() {
	ctx := context.Background()

	appConfig, err := loadAppConfig()
	if err != nil {
		log.Fatal(err)
	}

	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
