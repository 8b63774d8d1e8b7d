// Package randstr builds random alphanumeric strings for test data that must
// not collide across repeated runs.
package randstr

import (
	"math/rand/v2"
	"sync"
)

// Alphabet is the set of characters Generate draws from.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Generator produces random strings from a single source.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator returns a generator reading from src.
func NewGenerator(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

// Generate returns n random characters from Alphabet. n <= 0 yields "".
func (g *Generator) Generate(n int) string {
	if n <= 0 {
		return ""
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	b := make([]byte, n)
	for i := range b {
		b[i] = Alphabet[g.rnd.IntN(len(Alphabet))]
	}
	return string(b)
}

// Generate returns n random alphanumeric characters using the runtime's
// auto-seeded source.
func Generate(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = Alphabet[rand.IntN(len(Alphabet))]
	}
	return string(b)
}
