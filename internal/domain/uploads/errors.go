package uploads

import "fmt"

// UnknownUnitError is returned for ids that are not (or no longer) tracked.
type UnknownUnitError struct {
	ID UnitID
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown work unit: %s", e.ID)
}

// TransitionError is returned when a status change would break the one-way lifecycle.
type TransitionError struct {
	ID   UnitID
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("work unit %s: cannot move from %s to %s", e.ID, e.From, e.To)
}
