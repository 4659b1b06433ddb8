package shipping

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPicked    Status = "picked"
	StatusPacked    Status = "packed"
	StatusShipped   Status = "shipped"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusReturned  Status = "returned"
)

// flow is the only forward path. StatusReturned sits outside it and is
// reachable from every non-terminal state.
var flow = []Status{
	StatusPending,
	StatusPicked,
	StatusPacked,
	StatusShipped,
	StatusInTransit,
	StatusDelivered,
}

var displayNames = map[Status]string{
	StatusPending:   "Pending",
	StatusPicked:    "Picked",
	StatusPacked:    "Packed",
	StatusShipped:   "Shipped",
	StatusInTransit: "In Transit",
	StatusDelivered: "Delivered",
	StatusReturned:  "Returned",
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := displayNames[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusReturned
}

func (s Status) Display() string {
	if name, ok := displayNames[s]; ok {
		return name
	}
	return string(s)
}

func (s Status) position() int {
	for i, st := range flow {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the following step on the forward path.
func (s Status) Next() (Status, bool) {
	i := s.position()
	if i < 0 || i == len(flow)-1 {
		return "", false
	}
	return flow[i+1], true
}

// CheckTransition validates from -> to. Re-entering the current status
// reports noop so callers can succeed without appending an event.
func CheckTransition(from, to Status) (noop bool, err error) {
	if !to.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if from == to {
		return true, nil
	}
	if from.Terminal() {
		return false, fmt.Errorf("%w: %s is final", ErrTerminalState, from)
	}
	if to == StatusReturned {
		return false, nil
	}
	if next, ok := from.Next(); ok && next == to {
		return false, nil
	}
	if to.position() < from.position() {
		return false, fmt.Errorf("%w: %s to %s", ErrBackwardTransition, from, to)
	}
	next, _ := from.Next()
	return false, fmt.Errorf("%w: %s to %s, expected %s", ErrSkippedStep, from, to, next)
}
