package risk

// Category enum (fixed set of four)
type Category string

const (
	Financial     Category = "financial"
	Operational   Category = "operational"
	Timeline      Category = "timeline"
	Environmental Category = "environmental"
)

// Categories lists every category in display order.
var Categories = []Category{Financial, Operational, Timeline, Environmental}

// Status enum
type Status string

const (
	StatusLow    Status = "low"
	StatusMedium Status = "medium"
	StatusHigh   Status = "high"
)

// Trend enum
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

// Thresholds: a level is low up to MediumFrom-1, medium up to HighFrom-1, high above.
const (
	MediumFrom = 31
	HighFrom   = 61
)

// Classify buckets a 0-100 level. Use it everywhere a level is turned into a status.
func Classify(level int) Status {
	switch {
	case level >= HighFrom:
		return StatusHigh
	case level >= MediumFrom:
		return StatusMedium
	default:
		return StatusLow
	}
}

type Assessment struct {
	Level  int    `json:"level"`
	Status Status `json:"status"`
	Trend  Trend  `json:"trend"`
}

// Data always carries all four categories; it is produced as a whole, never patched.
type Data struct {
	Financial     Assessment `json:"financial"`
	Operational   Assessment `json:"operational"`
	Timeline      Assessment `json:"timeline"`
	Environmental Assessment `json:"environmental"`
}

// Get returns the assessment for c.
func (d Data) Get(c Category) Assessment {
	switch c {
	case Financial:
		return d.Financial
	case Operational:
		return d.Operational
	case Timeline:
		return d.Timeline
	default:
		return d.Environmental
	}
}

// Levels returns the four levels in Categories order.
func (d Data) Levels() []int {
	out := make([]int, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, d.Get(c).Level)
	}
	return out
}
