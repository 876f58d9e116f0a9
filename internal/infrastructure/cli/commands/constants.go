package commands

// CLI-specific constants
const (
	// TimestampFormat is used when printing cache and policy times
	TimestampFormat = "2006-01-02 15:04:05"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Error messages
const (
	ErrConfigLoaderUnavailable  = "config loader unavailable"
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrCacheDisabled            = "verification cache is disabled (cache.enabled: false)"
	ErrPolicyStoreUnavailable   = "policy store unavailable"
	ErrVerifyServiceUnavailable = "verification service unavailable"
	ErrReviewServiceUnavailable = "review service unavailable"
	ErrKeyRequired              = "--key is required"
	ErrCodeRequired             = "at least one --code is required"
	ErrDraftRequired            = "--draft is required"
)

// Success messages
const (
	MsgConfigurationValid       = "Configuration valid"
	MsgNoDifferencesFromDefault = "No differences from default configuration."
	MsgNoPolicies               = "No policies imported."
	MsgCacheCleared             = "Verification cache cleared."
)
