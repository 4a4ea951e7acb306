package analysis

// CheckStatus enum
type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckWarning CheckStatus = "warning"
	CheckFail    CheckStatus = "fail"
)

// CompletenessStatus is derived from the completeness score
type CompletenessStatus string

const (
	CompletenessGood    CompletenessStatus = "good"
	CompletenessWarning CompletenessStatus = "warning"
	CompletenessPoor    CompletenessStatus = "poor"
)

// Importance of a missing field
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

// Severity of an inconsistency
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type Check struct {
	Name        string      `json:"name"`
	Status      CheckStatus `json:"status"`
	Description string      `json:"description"`
}

type MissingItem struct {
	Field       string     `json:"field"`
	Importance  Importance `json:"importance"`
	Description string     `json:"description"`
}

type Inconsistency struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
}

type Completeness struct {
	Score  int                `json:"score"`
	Status CompletenessStatus `json:"status"`
	Checks []Check            `json:"checks"`
}

// MissingInfo invariant: Critical <= Count == len(Items)
type MissingInfo struct {
	Count    int           `json:"count"`
	Critical int           `json:"critical"`
	Items    []MissingItem `json:"items"`
}

// Inconsistencies invariant: Severe <= Count == len(Items)
type Inconsistencies struct {
	Count  int             `json:"count"`
	Severe int             `json:"severe"`
	Items  []Inconsistency `json:"items"`
}

// Result is the canonical analysis outcome of one completed pipeline run.
// It is immutable once built; share it by value or read-only pointer.
type Result struct {
	Completeness    Completeness    `json:"completeness"`
	MissingInfo     MissingInfo     `json:"missingInfo"`
	Inconsistencies Inconsistencies `json:"inconsistencies"`
}

// Findings is the raw output of an Analyzer, before counts and derived
// categories are computed.
type Findings struct {
	Score           int             `json:"score"`
	Checks          []Check         `json:"checks"`
	Missing         []MissingItem   `json:"missing"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
}
