package scheduling

// Status is the lifecycle state of an appointment and its tracker.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled}

// ParseStatus accepts exactly the four lifecycle values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusWaiting, StatusInProgress:
		return false
	}
	return false
}

// InQueue reports whether the status still occupies a place in the queue.
func (s Status) InQueue() bool {
	switch s {
	case StatusWaiting, StatusInProgress:
		return true
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

// CheckTransition enforces the terminal guard. Any of the four values may
// replace a non-terminal status; nothing may replace a terminal one.
func CheckTransition(from, to Status) error {
	if !to.Valid() {
		return ErrInvalidStatus
	}
	switch from {
	case StatusCompleted:
		return ErrAlreadyCompleted
	case StatusCancelled:
		return ErrAlreadyCancelled
	case StatusWaiting, StatusInProgress:
		return nil
	}
	return ErrInvalidStatus
}
