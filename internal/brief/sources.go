package brief

// Source kinds recorded in an ingest result.
const (
	SourceURL    = "url"
	SourceUpload = "upload"
)

// SourceResult describes the outcome of reading one source.
type SourceResult struct {
	Kind      string `json:"kind"`
	Location  string `json:"location"`
	CharCount int    `json:"charCount"`
	Truncated bool   `json:"truncated,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the source produced usable text.
func (s SourceResult) OK() bool {
	return s.Error == "" && s.CharCount > 0
}

// IngestResult is the material generation works from. It is stored as the
// "sources" artifact so regeneration and revision reuse it.
type IngestResult struct {
	Sources    []SourceResult `json:"sources"`
	Chunks     []string       `json:"chunks"`
	FailedURLs []string       `json:"failedUrls,omitempty"`
}

// Succeeded returns the sources that produced text.
func (r IngestResult) Succeeded() []SourceResult {
	out := make([]SourceResult, 0, len(r.Sources))
	for _, s := range r.Sources {
		if s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// SourceKinds returns the distinct kinds of successful sources, in first-seen order.
func (r IngestResult) SourceKinds() []string {
	seen := make(map[string]struct{}, 2)
	var kinds []string
	for _, s := range r.Succeeded() {
		if _, ok := seen[s.Kind]; ok {
			continue
		}
		seen[s.Kind] = struct{}{}
		kinds = append(kinds, s.Kind)
	}
	return kinds
}
