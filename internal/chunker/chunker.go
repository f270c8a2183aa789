package chunker

import (
	"crypto/sha256"

	"github.com/dshills/tome/internal/parser"
	"github.com/dshills/tome/pkg/types"
)

// Chunker partitions a document into a tree of sections whose own content
// never exceeds the budget
type Chunker struct {
	parser    *parser.Parser
	estimator Estimator
	budget    int
}

// Option configures a Chunker
type Option func(*Chunker)

// WithBudget sets the maximum weight of a section's own content
func WithBudget(budget int) Option {
	return func(c *Chunker) {
		if budget > 0 {
			c.budget = budget
		}
	}
}

// WithEstimator sets the weight function
func WithEstimator(e Estimator) Option {
	return func(c *Chunker) {
		if e != nil {
			c.estimator = e
		}
	}
}

// New creates a new Chunker instance
func New(opts ...Option) *Chunker {
	c := &Chunker{
		parser:    parser.New(),
		estimator: WordEstimator{},
		budget:    DefaultBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Budget returns the configured budget
func (c *Chunker) Budget() int {
	return c.budget
}

// Estimator returns the configured weight function
func (c *Chunker) Estimator() Estimator {
	return c.estimator
}

// Weigh returns the weight of text under the configured estimator
func (c *Chunker) Weigh(text string) int {
	return c.estimator.Estimate(text)
}

// emitter assigns positions in emission order. One emitter lives for one
// Chunk call, so positions are unique and follow pre-order.
type emitter struct {
	specs []types.SectionSpec
}

func (e *emitter) emit(spec types.SectionSpec) int {
	spec.Position = len(e.specs)
	e.specs = append(e.specs, spec)
	return spec.Position
}

// Chunk splits text into sections. A text within budget becomes a single
// heading-less root. Otherwise the root holds the text before the first
// top-level heading and every heading becomes a child, split recursively
// at its own shallowest sub-headings until each piece fits.
//
// Chunk fails with a *types.UnsplittableError when a span is over budget
// and has no heading left to split on. No partial result is returned.
func (c *Chunker) Chunk(text string) ([]types.SectionSpec, error) {
	e := &emitter{}

	if weight := c.Weigh(text); weight <= c.budget {
		e.emit(types.SectionSpec{
			Parent:  types.NoParent,
			Level:   0,
			Content: text,
			Tokens:  weight,
		})
		return e.specs, nil
	}

	intro, headings, err := c.partition(text, 0, "")
	if err != nil {
		return nil, err
	}

	root := e.emit(types.SectionSpec{
		Parent:  types.NoParent,
		Level:   0,
		Content: intro,
		Tokens:  c.Weigh(intro),
	})

	for _, h := range headings {
		if err := c.chunkSection(e, root, h); err != nil {
			return nil, err
		}
	}

	return e.specs, nil
}

// chunkSection emits h under parent, recursing into its sub-headings when
// its body does not fit. Markup is stored apart from content and is not
// charged against the budget.
func (c *Chunker) chunkSection(e *emitter, parent int, h parser.Heading) error {
	heading := h.Text

	if c.Weigh(h.Body) <= c.budget {
		e.emit(types.SectionSpec{
			Parent:  parent,
			Heading: &heading,
			Level:   h.Level,
			Markup:  h.Markup,
			Content: h.Body,
			Tokens:  c.Weigh(h.Body),
		})
		return nil
	}

	intro, children, err := c.partition(h.Body, h.Level, heading)
	if err != nil {
		return err
	}

	self := e.emit(types.SectionSpec{
		Parent:  parent,
		Heading: &heading,
		Level:   h.Level,
		Markup:  h.Markup,
		Content: intro,
		Tokens:  c.Weigh(intro),
	})

	for _, child := range children {
		if err := c.chunkSection(e, self, child); err != nil {
			return err
		}
	}
	return nil
}

// partition splits text at its shallowest headings deeper than scope. An
// intro that is still over budget is split again at its own deeper
// headings, which then come first among the children, so the returned
// intro always fits. enclosing names the heading reported on failure.
func (c *Chunker) partition(text string, scope int, enclosing string) (string, []parser.Heading, error) {
	split := c.parser.Split(text, scope)
	if len(split.Headings) == 0 {
		return "", nil, &types.UnsplittableError{Heading: enclosing, Tokens: c.Weigh(text), Budget: c.budget}
	}
	if c.Weigh(split.Intro) <= c.budget {
		return split.Intro, split.Headings, nil
	}

	intro, lead, err := c.partition(split.Intro, scope, enclosing)
	if err != nil {
		return "", nil, err
	}
	return intro, append(lead, split.Headings...), nil
}

// ComputeContentHash computes a SHA-256 hash of raw document text
func ComputeContentHash(content string) [32]byte {
	return sha256.Sum256([]byte(content))
}
