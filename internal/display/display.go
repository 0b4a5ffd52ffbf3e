// Package display shows the live camera preview and the running
// conversation, and decides when the assistant quits.
//
// [Terminal] renders in the terminal and quits on Esc or q. [Headless] shows
// nothing and runs until its context ends.
package display

import (
	"context"

	"github.com/MrWong99/oculus/internal/conversation"
	"github.com/MrWong99/oculus/pkg/frame"
)

// Display is the foreground loop of the assistant.
type Display interface {
	// Run blocks until the user quits, returning nil, or until ctx ends,
	// returning ctx.Err().
	Run(ctx context.Context) error
}

// FrameSource yields the newest camera frame without copying it.
// [*frame.Buffer] implements it.
type FrameSource interface {
	Latest() (*frame.Frame, bool)
}

// TurnSource yields the conversation so far. [*conversation.History]
// implements it.
type TurnSource interface {
	Turns() []conversation.Turn
}

var (
	_ FrameSource = (*frame.Buffer)(nil)
	_ TurnSource  = (*conversation.History)(nil)
	_ Display     = (*Terminal)(nil)
	_ Display     = Headless{}
)

// Headless is a [Display] without output, for running as a service.
type Headless struct{}

// Run blocks until ctx ends.
func (Headless) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
