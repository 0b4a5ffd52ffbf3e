package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] failed or had an
// open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds a primary provider and ordered fallbacks of the same type,
// each guarded by its own [Breaker].
type Group[T any] struct {
	cfg     BreakerConfig
	members []member[T]
}

// NewGroup creates a [Group] with primary as its first member.
func NewGroup[T any](name string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback. Members are tried in the order they were added.
func (g *Group[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Names returns the member names in order.
func (g *Group[T]) Names() []string {
	out := make([]string, len(g.members))
	for i, m := range g.members {
		out[i] = m.name
	}
	return out
}

// Primary returns the first member.
func (g *Group[T]) Primary() T { return g.members[0].value }

// Call runs fn against each member in order until one succeeds. Members with
// an open breaker are skipped. Permanent errors and cancellations stop the
// walk immediately. When all members fail the result wraps [ErrAllFailed]
// and every member error.
func Call[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range g.members {
		m := &g.members[i]
		var res R
		err := m.breaker.Execute(func() error {
			var err error
			res, err = fn(m.value)
			return err
		})
		if err == nil {
			return res, nil
		}
		if IsPermanent(err) || isCancellation(err) {
			return zero, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", m.name)
			continue
		}
		if i < len(g.members)-1 {
			slog.Warn("provider failed, trying next", "provider", m.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
