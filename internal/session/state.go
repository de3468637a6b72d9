package session

import "fmt"

// State is a phase of the analysis session.
type State int

const (
	// Idle has no staged image.
	Idle State = iota
	// Staged has an image ready and no request sent.
	Staged
	// Submitting has exactly one request in flight.
	Submitting
	// Result holds a successful diagnosis.
	Result
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Staged:
		return "staged"
	case Submitting:
		return "submitting"
	case Result:
		return "result"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// allowedFrom lists the states each operation may start from.
var allowedFrom = map[string][]State{
	opAttach: {Idle, Staged},
	opRemove: {Staged},
	opSubmit: {Staged},
	opReset:  {Result, Submitting},
}

const (
	opAttach = "attach_image"
	opRemove = "remove_image"
	opSubmit = "submit"
	opReset  = "reset"
)

func allowed(op string, s State) bool {
	for _, from := range allowedFrom[op] {
		if from == s {
			return true
		}
	}
	return false
}

// SubmitStatus describes how a Submit call ended.
type SubmitStatus int

const (
	// SubmitRejected means Submit was not valid in the current state; nothing was sent.
	SubmitRejected SubmitStatus = iota
	// SubmitApplied means the result was stored and the session moved to Result.
	SubmitApplied
	// SubmitFailed means the service rejected the image; the session is back in Staged.
	SubmitFailed
	// SubmitDuplicate means a submission was already in flight; nothing was sent.
	SubmitDuplicate
	// SubmitStale means the response arrived after Reset or a new attach and was discarded.
	SubmitStale
)

func (s SubmitStatus) String() string {
	switch s {
	case SubmitRejected:
		return "rejected"
	case SubmitApplied:
		return "applied"
	case SubmitFailed:
		return "failed"
	case SubmitDuplicate:
		return "duplicate"
	case SubmitStale:
		return "stale"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
