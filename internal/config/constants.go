package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Operation timeouts. No call into the store or the push dispatcher is
// allowed to wait indefinitely.
const (
	PersistTimeout   = 10 * time.Second
	HandshakeTimeout = 10 * time.Second
	PushTimeout      = 15 * time.Second
)

// Background job intervals
const MaintenanceJobInterval = 5 * time.Minute

// Default rate limiting
const DefaultRateLimitPerMin = 120
