package types

// RequestStatus is the lifecycle state of an ad request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusInReview  RequestStatus = "in-review"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCompleted RequestStatus = "completed"
)

// Statuses lists every lifecycle state in flow order.
var Statuses = []RequestStatus{StatusPending, StatusInReview, StatusApproved, StatusRejected, StatusCompleted}

// Valid reports whether s is one of the five lifecycle states.
func (s RequestStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the normal review flow.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// TransitionPolicy decides whether a request may move between two states.
type TransitionPolicy interface {
	Allowed(from, to RequestStatus) bool
}

// PermissiveTransitions allows any state to be overwritten by any other
// valid state through an explicit admin action.
type PermissiveTransitions struct{}

func (PermissiveTransitions) Allowed(from, to RequestStatus) bool {
	return to.Valid()
}

// StrictTransitions only allows the forward review flow
// pending -> in-review -> approved|rejected, approved -> completed,
// plus re-opening a rejected request for review. Setting the current
// state again is always allowed.
type StrictTransitions struct{}

var strictTable = map[RequestStatus][]RequestStatus{
	StatusPending:  {StatusInReview, StatusRejected},
	StatusInReview: {StatusApproved, StatusRejected, StatusPending},
	StatusApproved: {StatusCompleted, StatusInReview},
	StatusRejected: {StatusInReview},
}

func (StrictTransitions) Allowed(from, to RequestStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range strictTable[from] {
		if next == to {
			return true
		}
	}
	return false
}
