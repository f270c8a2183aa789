// Package types holds the values shared between the chunker, the store and
// the query surfaces.
//
// SectionSpec is the chunker's output: an arena of sections where each
// parent is referenced by slice index. The store turns indexes into row IDs
// when it persists a tree, so nothing outside the chunker ever holds a live
// pointer between sections.
//
//	specs, err := chk.Chunk(text)
//	if errors.Is(err, types.ErrUnsplittable) {
//	    // operator must add headings to the source
//	}
//	fmt.Print(types.Reconstruct(specs)) // identical to text
package types
