package model

// Cadence 周期规则
type Cadence string

const (
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
	// CadenceDate fires once on its date and then deactivates
	CadenceDate Cadence = "date"
)

// Valid reports whether c is a known cadence
func (c Cadence) Valid() bool {
	switch c {
	case CadenceWeekly, CadenceMonthly, CadenceQuarterly, CadenceYearly, CadenceDate:
		return true
	}
	return false
}

// Recurring reports whether the cadence repeats
func (c Cadence) Recurring() bool {
	return c.Valid() && c != CadenceDate
}
