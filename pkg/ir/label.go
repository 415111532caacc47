package ir

import "strconv"

// DefaultLabelPrefix is the prefix of canonical block labels (L0, L1, ...).
const DefaultLabelPrefix = "L"

// LabelGenerator hands out fresh labels from a monotonic counter. A
// generator is owned by one stage run and is not safe for concurrent use.
type LabelGenerator struct {
	prefix string
	next   int
}

// NewLabelGenerator creates a generator whose first label is prefix+"0".
func NewLabelGenerator(prefix string) *LabelGenerator {
	if prefix == "" {
		prefix = DefaultLabelPrefix
	}
	return &LabelGenerator{prefix: prefix}
}

// Next returns a label never returned before by this generator.
func (g *LabelGenerator) Next() string {
	label := g.prefix + strconv.Itoa(g.next)
	g.next++
	return label
}

// Count returns how many labels have been generated.
func (g *LabelGenerator) Count() int {
	return g.next
}
