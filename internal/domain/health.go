package domain

// HealthStatus is the outcome of one `pguard doctor` check.
type HealthStatus string

const (
	HealthOK    HealthStatus = "ok"
	HealthWarn  HealthStatus = "warn"
	HealthError HealthStatus = "error"
)

// Names of the checks `pguard doctor` runs, in report order.
const (
	CheckConfigFile     = "Config file"
	CheckAPIKeys        = "API keys"
	CheckPolicyStore    = "Policy store"
	CheckRedactionRules = "Redaction rules"
)

// HealthCheck is one diagnostic line. Details never include note text.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Details string       `json:"details"`
}

// HealthReport aggregates the checks of one doctor run.
type HealthReport struct {
	Checks []HealthCheck `json:"checks"`
}

// Failed returns the checks with HealthError status.
func (r HealthReport) Failed() []HealthCheck {
	var failed []HealthCheck
	for _, check := range r.Checks {
		if check.Status == HealthError {
			failed = append(failed, check)
		}
	}
	return failed
}

// Check returns the named check, if it ran.
func (r HealthReport) Check(name string) (HealthCheck, bool) {
	for _, check := range r.Checks {
		if check.Name == name {
			return check, true
		}
	}
	return HealthCheck{}, false
}
