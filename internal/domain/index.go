package domain

import "context"

// IndexState is the lifecycle of a location index for an open document.
type IndexState int

const (
	IndexAbsent IndexState = iota
	IndexLoading
	IndexReady
	IndexFailed
)

func (s IndexState) String() string {
	switch s {
	case IndexAbsent:
		return "absent"
	case IndexLoading:
		return "loading"
	case IndexReady:
		return "ready"
	case IndexFailed:
		return "failed"
	}
	return "unknown"
}

// IndexEntry maps a whole-document progress percentage to the renderer
// locator of the section starting at that point.
type IndexEntry struct {
	Percent float64 `json:"percent"`
	Locator string  `json:"locator"`
}

// IndexCache is durable storage for generated location indexes, keyed by
// document identity. The mapping is a deterministic function of immutable
// document content, so entries never expire.
type IndexCache interface {
	// Get returns the cached raw index for the document, or (nil, nil)
	// on a cache miss.
	Get(documentID string) ([]byte, error)
	Put(documentID string, raw []byte) error
	Close() error
}

// Section is one spine item of a document, as reported by the client that
// parsed the book.
type Section struct {
	Locator   string `json:"locator"`
	CharCount int    `json:"char_count"`
}

// SectionSource supplies the document's sections for index generation.
// Walking a large book can take seconds, hence the context.
type SectionSource interface {
	Sections(ctx context.Context) ([]Section, error)
}
