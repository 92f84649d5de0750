package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactMatcher(t *testing.T) {
	m := NewExact([]byte("beta"))

	assert.True(t, m.Matches([]byte("beta")))
	assert.False(t, m.Matches([]byte("alpha")))
	assert.False(t, m.Matches([]byte("betas")))
	assert.False(t, m.Matches([]byte("alph")))
}

func TestSubstringMatcher(t *testing.T) {
	m := NewSubstring([]byte("alph"))

	assert.True(t, m.Matches([]byte("alpha")))
	assert.True(t, m.Matches([]byte("xxalphxx")))
	assert.False(t, m.Matches([]byte("beta")))
}

func TestSubstringMatcherSingleByte(t *testing.T) {
	m := NewSubstring([]byte("a"))

	assert.True(t, m.Matches([]byte("gamma")))
	assert.False(t, m.Matches([]byte("xyz")))
}

func TestRegexMatcher(t *testing.T) {
	m, err := NewRegex(`^g.*a$`)
	require.NoError(t, err)

	assert.True(t, m.Matches([]byte("gamma")))
	assert.False(t, m.Matches([]byte("beta")))
}

func TestNewRegexInvalidPattern(t *testing.T) {
	_, err := NewRegex(`(unclosed`)
	require.Error(t, err)
}

func TestExactMatcherEmptyLine(t *testing.T) {
	m := NewExact([]byte(""))
	assert.True(t, m.Matches([]byte("")))
	assert.False(t, m.Matches([]byte("x")))
}
