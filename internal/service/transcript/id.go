package transcript

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out transcript IDs. The counter is shared across prefixes.
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Next(prefix string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-utt-%d", prefix, n)
}
