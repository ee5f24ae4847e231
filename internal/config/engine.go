package config

import "time"

const (
	// StoreDriverPostgres persists audit rows in PostgreSQL (production default).
	StoreDriverPostgres = "postgres"
	// StoreDriverSQLite persists audit rows in a local SQLite file.
	StoreDriverSQLite = "sqlite"
	// StoreDriverMemory keeps audit rows in process memory (lost on exit).
	StoreDriverMemory = "memory"

	// CounterBackendRedis shares experiment quota counters through Redis.
	CounterBackendRedis = "redis"
	// CounterBackendMemory keeps quota counters in process memory.
	CounterBackendMemory = "memory"
)

// EngineConfig tunes the decision engine and its collaborators.
type EngineConfig struct {
	// AuditEnabled is the default for DecisionContext.AuditEnabled when the caller builds contexts from config.
	AuditEnabled bool `envconfig:"AUDIT_ENABLED" default:"true"`

	// ResolveConcurrency bounds concurrent resolution of pending experiment visits at a terminal node.
	ResolveConcurrency int `envconfig:"RESOLVE_CONCURRENCY" default:"5" validate:"min=1,max=64"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres sqlite memory"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"data/arbiter.db"`

	CounterBackend   string `envconfig:"COUNTER_BACKEND" default:"redis" validate:"oneof=redis memory"`
	CounterKeyPrefix string `envconfig:"COUNTER_KEY_PREFIX" default:"arbiter:experiment"`

	// DefinitionCacheSize and DefinitionCacheTTL bound the in-process record of
	// experiment definitions that were already upserted.
	DefinitionCacheSize int           `envconfig:"DEFINITION_CACHE_SIZE" default:"1024" validate:"min=1"`
	DefinitionCacheTTL  time.Duration `envconfig:"DEFINITION_CACHE_TTL" default:"10m"`

	// GraphPath points to the YAML decision graph loaded at startup.
	GraphPath string `envconfig:"GRAPH_PATH" default:"graph.yaml"`
}

// WorkerConfig configures the out-of-band outcome worker.
type WorkerConfig struct {
	Enabled    bool          `envconfig:"ENABLED" default:"false"`
	QueueKey   string        `envconfig:"QUEUE_KEY" default:"arbiter:queue:outcomes"`
	PopTimeout time.Duration `envconfig:"POP_TIMEOUT" default:"5s" validate:"gt=0"`

	// MaxRetries and BaseRetryDelay control the exponential retry of an event
	// whose application failed. Exhausted events go to DeadLetterKey.
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0,max=10"`
	BaseRetryDelay time.Duration `envconfig:"BASE_RETRY_DELAY" default:"100ms"`
	DeadLetterKey  string        `envconfig:"DEAD_LETTER_KEY" default:"arbiter:queue:outcomes:dead"`
}
