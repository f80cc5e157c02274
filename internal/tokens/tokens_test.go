package tokens_test

import (
	"testing"

	"github.com/arialive/memcore/internal/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproximateEmpty(t *testing.T) {
	assert.Equal(t, 0, tokens.Approximate(""))
}

func TestApproximateEnglish(t *testing.T) {
	// 10 latin words at ~1.3 tokens per word.
	got := tokens.Approximate("one two three four five six seven eight nine ten")
	assert.Equal(t, 13, got)
}

func TestApproximateKorean(t *testing.T) {
	// 10 hangul runes at ~2 runes per token.
	got := tokens.Approximate("안녕하세요 반갑습니다")
	assert.Equal(t, 5, got)
}

func TestApproximateMixed(t *testing.T) {
	mixed := tokens.Approximate("hello 세계")
	assert.Greater(t, mixed, tokens.Approximate("hello"))
	assert.Greater(t, mixed, tokens.Approximate("세계"))
}

func TestApproximateMonotonicInLength(t *testing.T) {
	short := tokens.Approximate("likes coffee")
	long := tokens.Approximate("likes coffee and also enjoys long walks at the beach")
	assert.Greater(t, long, short)
}

func TestNewTiktoken(t *testing.T) {
	counter, err := tokens.NewTiktoken("cl100k_base")
	if err != nil {
		// The vocabulary is fetched on first use.
		t.Skipf("encoding unavailable: %v", err)
	}
	require.NotNil(t, counter)

	assert.Equal(t, 0, counter(""))
	got := counter("The quick brown fox jumps over the lazy dog")
	assert.Greater(t, got, 0)
	assert.LessOrEqual(t, got, 12, "short English text encodes to roughly one token per word")
}

func TestNewTiktokenUnknownEncoding(t *testing.T) {
	_, err := tokens.NewTiktoken("no-such-encoding")
	assert.Error(t, err)
}

func TestFixed(t *testing.T) {
	counter := tokens.Fixed(7)
	assert.Equal(t, 7, counter(""))
	assert.Equal(t, 7, counter("anything at all"))
}
