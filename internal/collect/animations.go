package collect

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

const animationsJS = `(() => {
	const describe = el => {
		if (!el || !el.tagName) return '';
		let s = el.tagName.toLowerCase();
		if (el.id) s += '#' + el.id;
		if (typeof el.className === 'string' && el.className.trim()) s += '.' + el.className.trim().split(/\s+/).join('.');
		return s;
	};
	return document.getAnimations().map(a => {
		const timing = a.effect ? a.effect.getComputedTiming() : {};
		return {
			name: a.animationName || a.transitionProperty || a.id || '',
			type: a.constructor.name,
			target: a.effect ? describe(a.effect.target) : '',
			infinite: timing.iterations === Infinity,
			running: a.playState === 'running',
		};
	});
})()`

type pageAnimation struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Target   string `json:"target"`
	Infinite bool   `json:"infinite"`
	Running  bool   `json:"running"`
}

// Animations inventories running animations and flags those that loop
// forever without user input.
type Animations struct {
	browser Browser
}

func (c *Animations) ID() trace.CollectorID { return trace.CollectAnimations }

func (c *Animations) Collect(ctx context.Context, target orchestrator.Target) (trace.Block, error) {
	return withPage(ctx, c.browser, trace.CollectAnimations, target, nil, func(page Page) (trace.Block, error) {
		var raw []pageAnimation
		if err := page.Evaluate(ctx, animationsJS, &raw); err != nil {
			return nil, fmt.Errorf("failed to list animations: %w", err)
		}
		return summarizeAnimations(raw), nil
	})
}

func summarizeAnimations(raw []pageAnimation) *trace.AnimationTraces {
	out := &trace.AnimationTraces{Total: len(raw), NotReactive: []trace.Animation{}}
	for _, a := range raw {
		if a.Infinite && a.Running {
			out.NotReactive = append(out.NotReactive, trace.Animation{Name: a.Name, Type: a.Type, Target: a.Target})
		}
	}
	return out
}
