package filter

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrame map[string]any

func (f fakeFrame) ExprEnv() map[string]any { return f }

func TestFilter_EmptyMatchesAll(t *testing.T) {
	f, err := New[fakeFrame]("", zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, f.Match(fakeFrame{"status": 200}))
}

func TestFilter_NilMatchesAll(t *testing.T) {
	var f *Filter[fakeFrame]
	assert.True(t, f.Match(fakeFrame{}))
}

func TestFilter_Predicate(t *testing.T) {
	f, err := New[fakeFrame](`status >= 500`, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, f.Match(fakeFrame{"status": 503}))
	assert.False(t, f.Match(fakeFrame{"status": 200}))
}

func TestFilter_StringAndMapAccess(t *testing.T) {
	f, err := New[fakeFrame](`method == "GET" && header["Content-Type"] == "application/json"`, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, f.Match(fakeFrame{
		"method": "GET",
		"header": map[string]string{"Content-Type": "application/json"},
	}))
	assert.False(t, f.Match(fakeFrame{
		"method": "POST",
		"header": map[string]string{"Content-Type": "application/json"},
	}))
}

func TestFilter_UndefinedVariableExcludes(t *testing.T) {
	f, err := New[fakeFrame](`nonexistent == "x"`, zerolog.Nop())
	require.NoError(t, err)

	// Undefined variables resolve to nil at runtime; nil != "x".
	assert.False(t, f.Match(fakeFrame{"status": 200}))
}

func TestFilter_InvalidExpression(t *testing.T) {
	_, err := New[fakeFrame](`status >=`, zerolog.Nop())
	assert.Error(t, err)
}

func TestFilter_NonBooleanExpression(t *testing.T) {
	// AsBool rejects expressions that cannot produce a boolean.
	_, err := New[fakeFrame](`1 + 2`, zerolog.Nop())
	assert.Error(t, err)
}
