package llm

import (
	"context"
	"iter"
)

// ScriptedProvider is a deterministic in-memory Provider used by tests. It
// returns one pre-configured Response per call, advancing through Turns in
// order; the last Turn repeats once exhausted.
type ScriptedProvider struct {
	ProviderName string
	Turns        []Response
	calls        int
}

var _ Provider = (*ScriptedProvider)(nil)

func (p *ScriptedProvider) Name() string {
	if p.ProviderName == "" {
		return "scripted"
	}
	return p.ProviderName
}

func (p *ScriptedProvider) GenerateContent(_ context.Context, _ *Request, stream bool) iter.Seq2[*Response, error] {
	turn := p.nextTurn()
	return func(yield func(*Response, error) bool) {
		if !stream || turn.Text == "" {
			yield(&turn, nil)
			return
		}
		// Emit the text as two partial chunks then the aggregated final,
		// matching the teacher's Partial=true...Partial=false sequencing.
		half := len(turn.Text) / 2
		if half == 0 {
			half = len(turn.Text)
		}
		if !yield(&Response{Text: turn.Text[:half], Partial: true}, nil) {
			return
		}
		if half < len(turn.Text) {
			if !yield(&Response{Text: turn.Text[half:], Partial: true}, nil) {
				return
			}
		}
		yield(&turn, nil)
	}
}

func (p *ScriptedProvider) nextTurn() Response {
	if len(p.Turns) == 0 {
		return Response{Text: "", FinishReason: FinishStop}
	}
	idx := p.calls
	if idx >= len(p.Turns) {
		idx = len(p.Turns) - 1
	}
	p.calls++
	return p.Turns[idx]
}
