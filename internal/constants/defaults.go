package constants

import "time"

// Default polling configuration values
const (
	DefaultOriginatedIntervalSec = 60
	DefaultStatusIntervalSec     = 120
	DefaultMaxPages              = 20
	DefaultMailboxConcurrency    = 1
	DefaultRequestTimeoutSec     = 30
	DefaultRequestsPerSecond     = 2
	DefaultCursorLookback        = 48 * time.Hour
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs         = 1000
	DefaultMaxBackoffMs           = 60000
	DefaultMaxAttempts            = 5
	DefaultDatabaseRetryAttempts  = 3
	DefaultDatabaseRetryBackoffMs = 100
)

// Default retention values
const (
	DefaultMaxCallLogs    = 1000
	MinMaxCallLogs        = 10
	DefaultMessageTTLDays = 90
	DefaultCallLogTTLDays = 7
)

// Default storage values
const (
	DefaultDatabaseDriver = "sqlite3"
	DefaultDatabasePath   = "satsync.db"
	DefaultMaxOpenConns   = 4
	SQLiteBusyTimeoutMs   = 5000
)

// Default server values
const (
	DefaultServerPort            = 8085
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultHTTPTimeoutSec        = 60
	MaxRequestBodyBytes          = 64 * 1024
)

// Default monitor and lock values
const (
	DefaultMonitorIntervalMin    = 15
	DefaultStaleCommandHours     = 24
	DefaultLockTTLSec            = 300
	DefaultCircuitMaxFailures    = 5
	DefaultCircuitTimeoutSec     = 60
	DefaultErrorNameCacheMinutes = 60
)

// EncryptionSalt is the PBKDF2 salt for mailbox credential keys
const EncryptionSalt = "satsync-mailbox-credentials-v1"

// Environment variables
const (
	EnvEnableEncryption = "SATSYNC_ENABLE_ENCRYPTION"
	EnvEncryptionSecret = "SATSYNC_ENCRYPTION_SECRET"
	EnvConfigPrefix     = "SATSYNC"
)

// Privacy settings
const (
	DefaultMaskVisibleChars = 4
)
