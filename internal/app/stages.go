package app

import (
	"context"

	"github.com/example/courier/internal/core/pipeline"
	"github.com/example/courier/internal/ports/secondary"
)

// NewStageRunner builds the pipeline runner whose stages all call the
// generation collaborator. Each stage sees the original payload plus
// the latest prior output; the draft stage sees no prior output.
func NewStageRunner(gen secondary.GenerationClient, policies map[pipeline.Stage]pipeline.RetryPolicy) (*pipeline.Runner, error) {
	stages := make(map[pipeline.Stage]pipeline.Func, len(pipeline.Order))
	for _, stage := range pipeline.Order {
		stage := stage
		stages[stage] = func(ctx context.Context, x pipeline.Exchange) (string, error) {
			prior := ""
			if stage != pipeline.StageDraft {
				prior = x.Latest()
			}
			return gen.Generate(ctx, secondary.GenerationRequest{
				Stage:          stage,
				PersonaVersion: x.PersonaVersion,
				UserID:         x.Event.UserID,
				Payload:        x.Event.Payload,
				PriorOutput:    prior,
			})
		}
	}
	return pipeline.NewRunner(stages, policies)
}
