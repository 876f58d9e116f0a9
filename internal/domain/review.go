package domain

// ReviewMode selects which guardrail set scores the draft.
type ReviewMode string

const (
	ReviewPreauth ReviewMode = "preauth"
	ReviewAppeal  ReviewMode = "appeal"
)

// ReviewRequest carries one end-to-end scoring request. NoteText, DraftLetter
// and PatientName are PHI and never leave the process unredacted.
type ReviewRequest struct {
	NoteText      string     `json:"noteText"`
	DraftLetter   string     `json:"draftLetter"`
	PatientName   string     `json:"patientName,omitempty"`
	Specialty     string     `json:"specialty,omitempty"`
	ProcedureCode string     `json:"procedureCode,omitempty"`
	Mode          ReviewMode `json:"mode,omitempty"`
	DenialReason  string     `json:"denialReason,omitempty"`
	ModelOverride string     `json:"model,omitempty"`
}

// ReviewResponse is the only shape a caller sees; every score in it is gated.
type ReviewResponse struct {
	RunID        string              `json:"runId"`
	Mode         ReviewMode          `json:"mode"`
	Audit        AuditData           `json:"audit"`
	GateLog      GateLog             `json:"gateLog"`
	Verification *VerificationResult `json:"verification,omitempty"`
}
