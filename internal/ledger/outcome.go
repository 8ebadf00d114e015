package ledger

type OutcomeKind int

const (
	Reduced OutcomeKind = iota + 1
	Removed
)

func (k OutcomeKind) String() string {
	switch k {
	case Reduced:
		return "reduced"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// DecrementOutcome tells the caller whether the entry survived. Quantity is
// the new quantity for Reduced and zero for Removed.
type DecrementOutcome struct {
	Kind     OutcomeKind
	Quantity int
}
