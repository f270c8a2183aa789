// Package chunker partitions heading-structured documents into a tree of
// sections whose own content stays within a weight budget.
//
// # Algorithm
//
// A document that fits the budget becomes one heading-less root section.
// Otherwise it is split at its shallowest heading level: the root keeps the
// text before the first heading and each heading becomes a child. A
// heading section that still does not fit keeps only its preface (the text
// between its heading line and its first sub-heading) and is split again at
// its own shallowest sub-headings. Recursion stops as soon as a piece fits.
//
//	c := chunker.New(chunker.WithBudget(8000))
//	specs, err := c.Chunk(text)
//	if err != nil {
//	    return err // *types.UnsplittableError
//	}
//
// Positions are assigned in emission order, which is document order, so the
// slice returned by Chunk is a pre-order walk of the tree and each parent
// precedes its children.
//
// # Reconstruction
//
// Every heading section records the heading lines exactly as written, ATX
// or setext. Concatenating each section's markup and content in position
// order gives back the input byte for byte:
//
//	types.Reconstruct(specs) == text
//
// # Weights
//
// WordEstimator (the default) counts whitespace-separated words; because
// splits fall on line starts the weights of the pieces sum to the weight of
// the whole. ByteEstimator approximates tokens as bytes/4.
//
// # Failure
//
// A span over budget with no heading to split on, or a preface that alone
// is over budget, fails the whole call with *types.UnsplittableError
// (errors.Is(err, types.ErrUnsplittable)). The chunker never truncates.
package chunker
