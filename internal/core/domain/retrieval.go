package domain

type ReferenceKind string

const (
	ReferenceExplicit   ReferenceKind = "explicit"
	ReferenceContextual ReferenceKind = "contextual"
	ReferenceNone       ReferenceKind = "none"
)

// ReferenceResolution is the outcome of classifying a query against the
// conversation context. Kind=Contextual with an empty Reference means a
// contextual phrase matched but no case file could be found in the history.
type ReferenceResolution struct {
	Kind      ReferenceKind     `json:"kind"`
	Reference CaseFileReference `json:"reference,omitempty"`
}

func (r ReferenceResolution) Resolved() bool {
	return r.Reference != ""
}

type RetrievalMode string

const (
	ModeFullCaseFile     RetrievalMode = "full_case_file"
	ModeSemanticFallback RetrievalMode = "semantic_fallback"
)

// SearchResult carries the fragments produced by the fallback ladder along
// with the stage that produced them.
type SearchResult struct {
	Fragments        []Fragment `json:"fragments"`
	Stage            int        `json:"stage"`
	SatisfiedMinimum bool       `json:"satisfied_minimum"`
}

// FormattedContext is the LLM-ready context block handed to the
// prompt-construction layer.
type FormattedContext struct {
	Text          string `json:"text"`
	DocumentCount int    `json:"document_count"`
	FragmentCount int    `json:"fragment_count"`
	TotalChars    int    `json:"total_chars"`
}

// RetrievalResult is the full per-request outcome, including how the
// fragments were obtained. Stage is zero in full-case-file mode.
type RetrievalResult struct {
	Context       FormattedContext  `json:"context"`
	Mode          RetrievalMode     `json:"mode"`
	Stage         int               `json:"stage,omitempty"`
	Reference     CaseFileReference `json:"reference,omitempty"`
	ReferenceKind ReferenceKind     `json:"reference_kind"`
}
