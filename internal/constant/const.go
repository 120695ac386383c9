package constant

import "time"

const (
	DefaultInstanceName = "keystatus-api"
	DefaultPort         = "8080"
	DefaultDataPath     = "/data/keystatus.db"

	// VerificationWindow is the trailing window statuses are computed over.
	VerificationWindow   = 36 * time.Hour
	DefaultBucketSize    = time.Hour
	DefaultCacheTTL      = time.Minute
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultPruneInterval = time.Hour

	DefaultKeyPrefix     = "sk"
	DefaultKeyByteLength = 16
	MinKeyByteLength     = 8
	MaxKeyByteLength     = 255

	// StatusConcurrency bounds parallel evaluations when listing all statuses of a user.
	StatusConcurrency = 8

	// Header configuration constants.
	HeaderUsername = "X-MaaS-Username"
	HeaderGroup    = "X-MaaS-Group"

	// ContextUserKey is the gin context key holding the authenticated user.
	ContextUserKey = "user"
)
