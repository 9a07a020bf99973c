package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// AdminIDs is the external-id allow-list for the admin command surface.
	AdminIDs []int64

	RoomMaxParticipants int
	InviteCodeLength    int

	BroadcastDelay         time.Duration
	BroadcastProgressEvery int
	BroadcastWorkers       int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("FROST_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("FROST_LOG_LEVEL", "info"),
		LogFormat: EnvString("FROST_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("FROST_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("FROST_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("FROST_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("FROST_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("FROST_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("FROST_DATABASE_URL", ""),
		DBSchema:    EnvString("FROST_DB_SCHEMA", "frost"),
		DBMaxConns:  EnvInt32("FROST_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("FROST_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("FROST_READINESS_REQUIRE_DB", false),

		AdminIDs: EnvInt64List("FROST_ADMIN_IDS", nil),

		RoomMaxParticipants: EnvInt("FROST_ROOM_MAX_PARTICIPANTS", 30),
		InviteCodeLength:    EnvInt("FROST_INVITE_CODE_LENGTH", 8),

		BroadcastDelay:         EnvDuration("FROST_BROADCAST_DELAY", 100*time.Millisecond),
		BroadcastProgressEvery: EnvInt("FROST_BROADCAST_PROGRESS_EVERY", 10),
		BroadcastWorkers:       EnvInt("FROST_BROADCAST_WORKERS", 2),
	}
}
