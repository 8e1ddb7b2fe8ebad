package mitigation

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/bioscope/internal/model"
)

var (
	errBlankAction = eris.New("mitigation: blank action")
	errTierPanic   = eris.New("mitigation: tier panicked")
)

type tierFunc func(ctx context.Context, q Query) (model.MitigationResult, error)

type namedTier struct {
	name model.Tier
	fn   tierFunc
}

// try runs the tier, converting panics and blank actions into errors.
func (t namedTier) try(ctx context.Context, q Query) (res model.MitigationResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = model.MitigationResult{}
			err = eris.Wrapf(errTierPanic, "%s: %v", t.name, p)
		}
	}()

	res, err = t.fn(ctx, q)
	if err != nil {
		return model.MitigationResult{}, err
	}
	if strings.TrimSpace(res.ActionText) == "" {
		return model.MitigationResult{}, errBlankAction
	}
	return res, nil
}

// chain tries tiers in order until one produces an action.
type chain struct {
	tiers []namedTier
	miss  func(tier model.Tier, err error)
}

func firstOf(tiers ...namedTier) chain {
	return chain{tiers: tiers}
}

// onMiss registers a hook called for every tier that falls through.
func (c chain) onMiss(fn func(tier model.Tier, err error)) chain {
	c.miss = fn
	return c
}

// orElse closes the chain with a total fallback.
func (c chain) orElse(fallback func(q Query) model.MitigationResult) func(ctx context.Context, q Query) model.MitigationResult {
	return func(ctx context.Context, q Query) model.MitigationResult {
		for _, t := range c.tiers {
			if ctx.Err() != nil {
				if c.miss != nil {
					c.miss(t.name, ctx.Err())
				}
				continue
			}
			res, err := t.try(ctx, q)
			if err == nil {
				return res
			}
			if c.miss != nil {
				c.miss(t.name, err)
			}
		}
		return fallback(q)
	}
}

// titleCase upper-cases the first letter of each word. A Caser holds
// state, so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
