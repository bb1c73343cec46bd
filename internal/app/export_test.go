package app

import (
	"context"

	"github.com/MrWong99/choicerec/internal/transcript"
	"github.com/MrWong99/choicerec/pkg/grammar"
	"github.com/MrWong99/choicerec/pkg/recognition"
)

// Grammars returns the grammars used by the aligner and the evaluator.
func Grammars(a *App) (aligner, evaluator *grammar.Sliced) {
	return a.aligner.Grammar(), a.evaluator().Policy().Grammar()
}

// Aligner returns the aligner feeding the evaluate loop.
func Aligner(a *App) *transcript.Aligner { return a.aligner }

// Evaluate runs the evaluate loop over events until the channel closes.
func Evaluate(ctx context.Context, a *App, events <-chan recognition.Event) error {
	return a.evaluate(ctx, events)
}
