package domain

// Config mirrors ~/.pguard/config.yaml.
type Config struct {
	ConfigFormatVersion string               `yaml:"config_format_version"`
	Preferences         Preferences          `yaml:"preferences"`
	Models              []ModelDefinition    `yaml:"models"`
	Collaborator        CollaboratorSettings `yaml:"collaborator"`
	Verification        VerificationSettings `yaml:"verification"`
	Redaction           RedactionSettings    `yaml:"redaction"`
	Store               StoreSettings        `yaml:"store"`
	Cache               CacheSettings        `yaml:"cache"`
	Server              ServerSettings       `yaml:"server"`
	Logging             LoggingSettings      `yaml:"logging"`
}

// Preferences captures user level toggles.
type Preferences struct {
	DefaultModel     string `yaml:"default_model"`
	DefaultSpecialty string `yaml:"default_specialty"`
}

// CollaboratorSettings bounds calls to the text-generation collaborator.
type CollaboratorSettings struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// VerificationSettings controls multi-code verification.
type VerificationSettings struct {
	Parallelism int `yaml:"parallelism"`
}

// RedactionSettings points at optional extra redaction patterns.
type RedactionSettings struct {
	RulesFile string `yaml:"rules_file"`
}

// StoreSettings locates the policy rule database.
type StoreSettings struct {
	Path string `yaml:"path"`
}

// CacheSettings configures the verification result cache.
type CacheSettings struct {
	Enabled    bool   `yaml:"enabled"`
	TTL        string `yaml:"ttl"`
	MaxEntries int    `yaml:"max_entries"`
	Dir        string `yaml:"dir"`
}

// ServerSettings configures `pguard serve`.
type ServerSettings struct {
	Addr string `yaml:"addr"`
}

// LoggingSettings selects the slog handler.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
