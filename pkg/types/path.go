package types

import "strings"

// Path sentinels accepted wherever a document path is expected.
const (
	PathIndex = "INDEX"
	PathFull  = "FULL"

	IndexPath = "/llms.txt"
	FullPath  = "/llms-full.txt"
)

// NormalizePath resolves sentinels and guarantees a leading slash. An empty
// path resolves to the index document.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	switch strings.ToUpper(path) {
	case "", PathIndex:
		return IndexPath
	case PathFull:
		return FullPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
