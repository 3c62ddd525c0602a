package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaMaxWait      = 500 * time.Millisecond
)

const (
	CacheKeyActiveFilterSets     = "{sieve:filter_sets}:active"
	CacheKeyFilterSetsGeneration = "{sieve:filter_sets}:generation"
)

const (
	DefaultInputTopic  = "raw_events"
	DefaultOutputTopic = "filtered_events"
)

const (
	DefaultMongoDBName           = "sieve"
	MongoFilterSetsCollection    = "filter_sets"
	DefaultManagementBaseURL     = "http://localhost:8080"
	DefaultReloadIntervalSeconds = 30
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	DefaultTTLSeconds = 3600
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
	FallbackError = "error"
)
