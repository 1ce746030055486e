package activitypub

import (
	"context"

	"github.com/deemkeen/stegofed/vocab"
)

// HookFunc observes a handled activity after its effects were applied.
type HookFunc func(ctx context.Context, act *vocab.Activity, r *Recipient, out Outcome)

// Hooks run after dispatch: type-specific hooks first, then the catch-all
// ones. Hooks do not run for disallowed activities.
type Hooks struct {
	Any    []HookFunc
	ByType map[string][]HookFunc
}

// On registers fn for activities of typ.
func (h *Hooks) On(typ string, fn HookFunc) {
	if h.ByType == nil {
		h.ByType = map[string][]HookFunc{}
	}
	h.ByType[typ] = append(h.ByType[typ], fn)
}

// OnAny registers fn for every activity.
func (h *Hooks) OnAny(fn HookFunc) {
	h.Any = append(h.Any, fn)
}

func (h Hooks) fire(ctx context.Context, act *vocab.Activity, r *Recipient, out Outcome) {
	for _, fn := range h.ByType[act.Type()] {
		fn(ctx, act, r, out)
	}
	for _, fn := range h.Any {
		fn(ctx, act, r, out)
	}
}
