package summarizer

import (
	"context"

	"github.com/trezcool/peerly/core"
	"github.com/trezcool/peerly/core/review"
)

// Noop never produces a synthesis.
type Noop struct{}

var _ review.Summarizer = (*Noop)(nil)

func (Noop) Summarize(context.Context, review.SynthesisRequest) (string, error) { return "", nil }

// New returns the OpenAI summarizer when enabled, Noop otherwise.
func New(conf *core.Config) review.Summarizer {
	if !conf.Summarizer.Enabled {
		return &Noop{}
	}
	return NewOpenAI(conf.Summarizer)
}
