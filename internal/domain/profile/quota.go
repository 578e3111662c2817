package profile

type Status string

const (
	StatusActive    Status = "active"
	StatusWarning   Status = "warning"
	StatusOverQuota Status = "over_quota"
)

// warningPercent is the usage percentage at which a profile enters warning.
const warningPercent = 90

// Classify maps usage to a quota state. Thresholds are inclusive: 90% and
// above is a warning, 100% and above is over quota. A non-positive limit is
// always over quota.
func Classify(used, limit int) Status {
	if limit <= 0 {
		return StatusOverQuota
	}
	// used/limit*100 >= p, kept in integers to avoid rounding at the boundary.
	switch {
	case used*100 >= 100*limit:
		return StatusOverQuota
	case used*100 >= warningPercent*limit:
		return StatusWarning
	default:
		return StatusActive
	}
}
