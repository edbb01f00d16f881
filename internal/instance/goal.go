package instance

// Goal is the operator's intent for an instance.
type Goal int

const (
	Running Goal = iota
	Stopped
	Decommissioned
)

func (g Goal) String() string {
	switch g {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Decommissioned:
		return "Decommissioned"
	default:
		return "Unknown"
	}
}

// DecommissionReason records why an instance's goal was moved to
// Decommissioned, so logs and events can distinguish an operator-driven
// scale-down from reconciliation finding an orphan.
type DecommissionReason string

const (
	ReasonNone     DecommissionReason = ""
	ReasonOrphaned DecommissionReason = "Orphaned"
	ReasonScaledDown DecommissionReason = "ScaledDown"
)
