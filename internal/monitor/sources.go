package monitor

import "context"

// FuncSource adapts a lookup function into a ForegroundSource.
type FuncSource struct {
	name string
	fn   func(ctx context.Context) (string, bool)
}

// NewFuncSource wraps fn as a named foreground source.
func NewFuncSource(name string, fn func(ctx context.Context) (string, bool)) *FuncSource {
	return &FuncSource{name: name, fn: fn}
}

func (s *FuncSource) Name() string { return s.name }

func (s *FuncSource) Current(ctx context.Context) (string, bool) {
	return s.fn(ctx)
}
