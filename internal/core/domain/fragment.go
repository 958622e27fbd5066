package domain

// Fragment is a bounded slice of a case-file document's extracted text,
// embedded and indexed upstream. Fragments are read-only to this service.
type Fragment struct {
	FragmentID    string            `json:"fragment_id"`
	DocumentID    string            `json:"document_id"`
	DocumentName  string            `json:"document_name"`
	CaseFileRef   CaseFileReference `json:"case_file_ref"`
	Text          string            `json:"text"`
	FragmentIndex int               `json:"fragment_index"`
	FragmentCount int               `json:"fragment_count"`
	PageStart     int               `json:"page_start"`
	PageEnd       int               `json:"page_end"`
	Score         float64           `json:"similarity_score"`
	IsAudio       bool              `json:"is_audio"`
}

// Malformed reports whether the fragment is missing the metadata the
// aggregator needs; such fragments are skipped, not fatal.
func (f Fragment) Malformed() bool {
	return f.DocumentID == "" || f.FragmentIndex < 0
}
