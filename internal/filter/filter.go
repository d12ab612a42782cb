// Package filter evaluates user-supplied expressions against extracted
// frames, selecting which frames reach the output.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
)

// Expressible is implemented by frame types that can expose themselves to
// filter expressions.
type Expressible interface {
	ExprEnv() map[string]any
}

// Filter holds a pre-compiled frame predicate.
// A nil or empty filter matches everything.
type Filter[F Expressible] struct {
	program *vm.Program
	log     zerolog.Logger
}

// New compiles expression into a filter. The expression must evaluate to a
// boolean; variables resolve against the frame's ExprEnv map (for HTTP:
// type, method, path, host, status, body_size, header).
func New[F Expressible](expression string, log zerolog.Logger) (*Filter[F], error) {
	f := &Filter[F]{log: log.With().Str("component", "filter").Logger()}
	if expression == "" {
		return f, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling filter expression %q: %w", expression, err)
	}
	f.program = program
	return f, nil
}

// Match reports whether the frame passes the filter. Evaluation errors
// exclude the frame rather than aborting the tracer.
func (f *Filter[F]) Match(frame F) bool {
	if f == nil || f.program == nil {
		return true
	}

	out, err := expr.Run(f.program, frame.ExprEnv())
	if err != nil {
		f.log.Debug().Err(err).Msg("filter expression failed, excluding frame")
		return false
	}

	matched, ok := out.(bool)
	return ok && matched
}
