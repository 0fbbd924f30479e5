// internal/engine/resolver.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
)

// Resolver turns semantic targets into element handles. It holds no state
// between calls.
type Resolver struct {
	q      browser.Querier
	r      browser.Reader
	logger *zap.Logger
}

// NewResolver creates a resolver over a driver's query and read surfaces.
func NewResolver(drv interface {
	browser.Querier
	browser.Reader
}, logger *zap.Logger) *Resolver {
	return &Resolver{q: drv, r: drv, logger: logger.Named("resolver")}
}

// Resolve returns the handles t currently points at, in document order. For a
// substring label on the self and scan steps, elements whose text equals the
// label come first. Zero matches is not an error; only driver failures are.
func (r *Resolver) Resolve(ctx context.Context, t Target) ([]browser.Handle, error) {
	if t.Label.Text == "" {
		hs, err := r.q.QueryAll(ctx, t.Scope, t.Selector())
		if err != nil {
			return nil, fmt.Errorf("failed to query %q: %w", t.Selector(), err)
		}
		return hs, nil
	}

	labels, err := r.q.QueryText(ctx, t.Scope, t.Label)
	if err != nil {
		return nil, fmt.Errorf("failed to find text %s: %w", t.Label, err)
	}

	if t.Relation == RelationSelf {
		return r.self(ctx, t, labels)
	}

	for _, step := range t.Relation.steps() {
		var hs []browser.Handle
		switch step {
		case RelationDescendant:
			hs, err = r.within(ctx, t, labels, 0)
		case RelationSibling:
			hs, err = r.within(ctx, t, labels, 1)
		case RelationAncestor:
			hs, err = r.within(ctx, t, labels, 2)
		case RelationScan:
			hs, err = r.scan(ctx, t)
		}
		if err != nil {
			return nil, err
		}
		if len(hs) > 0 {
			r.logger.Debug("Target resolved.",
				zap.Stringer("target", t),
				zap.Stringer("step", step),
				zap.Int("matches", len(hs)))
			return hs, nil
		}
	}
	return nil, nil
}

func (r *Resolver) self(ctx context.Context, t Target, labels []browser.Handle) ([]browser.Handle, error) {
	if t.Kind == KindAny && t.Attrs == "" && t.CSS == "" {
		return r.exactFirst(ctx, t.Label, labels)
	}
	var out handleSet
	for _, l := range labels {
		h, err := r.q.Closest(ctx, l, t.Selector())
		if err != nil {
			return nil, fmt.Errorf("failed to find enclosing %s: %w", t.Kind, err)
		}
		out.add(h)
	}
	return r.exactFirst(ctx, t.Label, out.list)
}

// exactFirst moves the handles whose own text equals m's text ahead of the
// rest, keeping document order within both groups.
func (r *Resolver) exactFirst(ctx context.Context, m browser.TextMatch, hs []browser.Handle) ([]browser.Handle, error) {
	if m.Exact || len(hs) < 2 {
		return hs, nil
	}
	exact := browser.Exactly(m.Text)
	var first, rest []browser.Handle
	for _, h := range hs {
		st, err := r.r.Describe(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("failed to read candidate: %w", err)
		}
		if st.Found && exact.Matches(st.Text) {
			first = append(first, h)
		} else {
			rest = append(rest, h)
		}
	}
	return append(first, rest...), nil
}

// within collects kind-filtered elements nested in the element hops levels
// above each label. Labels whose ancestor would be the document are skipped.
// A container holding several candidates prefers the ones whose own
// container carries the label.
func (r *Resolver) within(ctx context.Context, t Target, labels []browser.Handle, hops int) ([]browser.Handle, error) {
	var out handleSet
	for _, l := range labels {
		root := l
		if hops > 0 {
			up, err := r.q.Ancestor(ctx, l, hops)
			if err != nil {
				return nil, fmt.Errorf("failed to walk up from label: %w", err)
			}
			if up == "" {
				continue
			}
			root = up
		}
		hs, err := r.q.QueryAll(ctx, root, t.Selector())
		if err != nil {
			return nil, fmt.Errorf("failed to query %q: %w", t.Selector(), err)
		}
		if hops > 0 && len(hs) > 1 {
			if hs, err = r.narrow(ctx, t.Label, hs); err != nil {
				return nil, err
			}
		}
		out.add(hs...)
	}
	return out.list, nil
}

// narrow keeps the candidates whose own container carries the label text.
// When none does, every candidate stays.
func (r *Resolver) narrow(ctx context.Context, m browser.TextMatch, hs []browser.Handle) ([]browser.Handle, error) {
	var kept []browser.Handle
	for _, h := range hs {
		up, err := r.q.Ancestor(ctx, h, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to walk up from candidate: %w", err)
		}
		if up == "" {
			continue
		}
		st, err := r.r.Describe(ctx, up)
		if err != nil {
			return nil, fmt.Errorf("failed to read candidate container: %w", err)
		}
		if st.Found && m.Matches(st.Text) {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		return hs, nil
	}
	return kept, nil
}

// scan checks every kind-filtered element in scope against the text of its
// container. A container whose whole text is the label wins, then container
// matches, then matches on the container's parent, which in a list also
// holds the text of neighbouring rows.
func (r *Resolver) scan(ctx context.Context, t Target) ([]browser.Handle, error) {
	all, err := r.q.QueryAll(ctx, t.Scope, t.Selector())
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", t.Selector(), err)
	}
	exact := browser.Exactly(t.Label.Text)
	var named, near, far handleSet
	for _, h := range all {
		for hops := 1; hops <= 2; hops++ {
			up, err := r.q.Ancestor(ctx, h, hops)
			if err != nil {
				return nil, fmt.Errorf("failed to walk up from candidate: %w", err)
			}
			if up == "" {
				break
			}
			st, err := r.r.Describe(ctx, up)
			if err != nil {
				return nil, fmt.Errorf("failed to read candidate container: %w", err)
			}
			if st.Found && t.Label.Matches(st.Text) {
				switch {
				case exact.Matches(st.Text):
					named.add(h)
				case hops == 1:
					near.add(h)
				default:
					far.add(h)
				}
				break
			}
		}
	}
	for _, set := range []handleSet{named, near, far} {
		if len(set.list) > 0 {
			return set.list, nil
		}
	}
	return nil, nil
}

// handleSet is an insertion-ordered set.
type handleSet struct {
	seen map[browser.Handle]bool
	list []browser.Handle
}

func (s *handleSet) add(hs ...browser.Handle) {
	if s.seen == nil {
		s.seen = make(map[browser.Handle]bool)
	}
	for _, h := range hs {
		if h == "" || s.seen[h] {
			continue
		}
		s.seen[h] = true
		s.list = append(s.list, h)
	}
}
