package secondary

import (
	"context"

	"github.com/example/courier/internal/core/pipeline"
)

// GenerationRequest carries everything one pipeline stage needs from
// the generation collaborator. PersonaVersion pins the prompt/persona
// configuration explicitly; the collaborator must hold no ambient
// per-user state.
type GenerationRequest struct {
	Stage          pipeline.Stage
	PersonaVersion string
	UserID         string
	Payload        string // original inbound text
	PriorOutput    string // output of the previous stage, empty for draft
}

// GenerationClient is the opaque generation collaborator. Calls must be
// safely retryable; exactly-once semantics are the core's concern, not
// the collaborator's.
type GenerationClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// ClassifierClient is the coherence classification collaborator. It
// returns raw structured text; the core parses it defensively and never
// crashes on malformed output.
type ClassifierClient interface {
	Classify(ctx context.Context, snapshot string) (string, error)
}
