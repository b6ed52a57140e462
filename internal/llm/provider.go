// Package llm provides the AI text/vision capability consumed by the
// classification pipeline. Callers must treat any availability other than
// Ready as unavailable and fall back to deterministic heuristics.
package llm

import "context"

// Availability is the tri-state readiness of the AI capability.
type Availability int

const (
	Unavailable Availability = iota
	Downloading
	Ready
)

func (a Availability) String() string {
	switch a {
	case Ready:
		return "ready"
	case Downloading:
		return "downloading"
	default:
		return "unavailable"
	}
}

// SessionOptions configures sampling for a session. Low temperature keeps
// constrained-grammar classification deterministic.
type SessionOptions struct {
	Temperature float32
	TopK        int32
}

// Session is a single prompting session. Destroy must be called exactly
// once after use, success or failure; leaked sessions are the dominant
// resource-exhaustion risk under load.
type Session interface {
	// Prompt sends text and an optional attached image, returning the raw
	// model response.
	Prompt(ctx context.Context, text string, image []byte) (string, error)
	Destroy()
}

// Provider creates sessions and reports capability availability.
type Provider interface {
	Availability() Availability
	NewSession(opts SessionOptions) (Session, error)
}
