package randstr

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

func TestGenerate_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 256).Draw(t, "n")
		s := Generate(n)
		if len(s) != n {
			t.Fatalf("len(Generate(%d)) = %d", n, len(s))
		}
		if !isAlphanumeric(s) {
			t.Fatalf("non-alphanumeric output %q", s)
		}
	})
}

func TestGenerator_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Uint64().Draw(t, "seed")
		n := rapid.IntRange(1, 64).Draw(t, "n")
		g := NewGenerator(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		s := g.Generate(n)
		if len(s) != n || !isAlphanumeric(s) {
			t.Fatalf("bad output %q for n=%d", s, n)
		}
	})
}

func TestGenerate_NonPositiveLength(t *testing.T) {
	assert.Equal(t, "", Generate(0))
	assert.Equal(t, "", Generate(-3))
	assert.Equal(t, "", NewGenerator(rand.NewPCG(1, 2)).Generate(-1))
}

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(rand.NewPCG(7, 11)).Generate(16)
	b := NewGenerator(rand.NewPCG(7, 11)).Generate(16)
	assert.Equal(t, a, b)
}

func TestGenerate_SuccessiveCallsDiffer(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := Generate(8)
		assert.False(t, seen[s], "collision on %q", s)
		seen[s] = true
	}
}
