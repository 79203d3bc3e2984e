package infra

const (
	// RedisNamespace isolates this project's keys.
	RedisNamespace = "provctl"
)

// Sets holding provider state, warmed from Postgres on gateway start.
const (
	RedisKeyPausedProviders  = RedisNamespace + ":providers:paused_set"
	RedisKeyOfflineProviders = RedisNamespace + ":providers:offline_set"
	RedisKeyLockWarmPaused   = RedisNamespace + ":lock:warmup:paused"
	RedisKeyLockWarmOffline  = RedisNamespace + ":lock:warmup:offline"

	// RedisKeyDashboardStats caches the KPI snapshot (60s TTL).
	RedisKeyDashboardStats = RedisNamespace + ":dashboard:stats"
)

// Pub/Sub channels.
const (
	// RedisChanOpsSignal broadcasts operation-state changes as
	// "<provider_id>:<active|paused|offline>".
	RedisChanOpsSignal = RedisNamespace + ":providers:ops-signal"

	// RedisChanAuditDecisions broadcasts audit decisions as
	// "<provider_id>:<audit_status>".
	RedisChanAuditDecisions = RedisNamespace + ":providers:audit-decisions"
)
