package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Timeout and duration constants
const (
	// DefaultCollaboratorTimeout bounds one fact-extraction or critique call
	DefaultCollaboratorTimeout = 30 * time.Second
	// DefaultHTTPClientTimeout is the timeout for HTTP client requests
	DefaultHTTPClientTimeout = 60 * time.Second
	// DefaultCacheTTL is how long a verification result stays cached
	DefaultCacheTTL = time.Hour
)

// Limit constants
const (
	// DefaultMaxCacheEntries is the maximum number of cache entries
	DefaultMaxCacheEntries = 100
	// DefaultVerificationParallelism is the VerifyAll worker count
	DefaultVerificationParallelism = 4
	// DefaultMaxTokens is the default maximum number of tokens
	DefaultMaxTokens = 2048
)

// DefaultServerAddr is the listen address for `pguard serve`
const DefaultServerAddr = "127.0.0.1:8088"

// Placeholder tokens written by the redactor.
const (
	PlaceholderPatientName = "[PATIENT_NAME]"
	PlaceholderEmail       = "[EMAIL]"
	PlaceholderDate        = "[DATE]"
	PlaceholderSSN         = "[ID_SSN]"
	PlaceholderID          = "[ID]"
	PlaceholderPhone       = "[PHONE]"
)
