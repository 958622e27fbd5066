package usecase

import (
	"regexp"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
)

// referencePattern is one entry of the resolver's classifier table. Entries
// are evaluated in order; the first match decides the reference kind.
type referencePattern struct {
	kind domain.ReferenceKind
	re   *regexp.Regexp
}

// contextualPatterns covers two phrase families: deictic references to an
// already-mentioned case file, and topic phrases that only make sense as
// "more about the current case". Matter vocabulary is Spanish because the
// indexed expedientes are Spanish-language judicial records.
// Word boundaries are ASCII-only in Go regexps, so no \b may sit next to
// an accented letter; alternations spell out the accented variants instead.
var contextualPatterns = []string{
	// deictic / anaphoric
	`(?i)[úu]ltim[oa]s?\s+(caso|expediente)\b`,
	`(?i)\b(ese|este|aquel|dicho|mismo)\s+(caso|expediente)\b`,
	`(?i)\b(caso|expediente)\s+(anterior|previo|mencionado|citado)\b`,
	`(?i)\b(primer|primera)\s+(caso|expediente)\b`,
	`(?i)\bel\s+que\s+(mencion|indic|cit)`,
	// topic phrases implying the case under discussion
	`(?i)\b(bit[áa]cora|historial)\b`,
	`(?i)\bantecedentes\b`,
	`(?i)\b(pruebas|evidencias?)\b`,
	`(?i)\bqui[eé]n(es)?\s+(es|son)\b`,
	`(?i)\b(demandante|demandada?|actora?)\b`,
	`(?i)\b(apoderad[oa]|representante)\b`,
	`(?i)\b(monto|cuant[íi]a)\b`,
	`(?i)\bfecha\b`,
	`(?i)\b(sentencia|resoluci[oó]n|fallo)\b`,
}

// ReferenceResolver classifies a query as carrying an explicit case-file
// reference, an implicit contextual one, or neither. It is a pure function
// of (query, conversation context) plus its fixed pattern table.
type ReferenceResolver struct {
	patterns []referencePattern
}

func NewReferenceResolver() *ReferenceResolver {
	patterns := make([]referencePattern, 0, len(contextualPatterns)+1)
	// Explicit always outranks contextual: a query that spells out a case
	// number must resolve to it even inside a deictic phrase.
	patterns = append(patterns, referencePattern{
		kind: domain.ReferenceExplicit,
		re:   regexp.MustCompile(`\b\d{4}-\d{6}-\d{4}-[A-Za-z]{2}\b`),
	})
	for _, expr := range contextualPatterns {
		patterns = append(patterns, referencePattern{
			kind: domain.ReferenceContextual,
			re:   regexp.MustCompile(expr),
		})
	}
	return &ReferenceResolver{patterns: patterns}
}

// Resolve runs the classifier table against the query. For a contextual
// match the reference is the last case-file token in the conversation
// context (recency wins, never frequency); when the context holds none the
// resolution is returned unresolved and the caller falls back to semantic
// search.
func (r *ReferenceResolver) Resolve(query, conversationContext string) domain.ReferenceResolution {
	for _, p := range r.patterns {
		if !p.re.MatchString(query) {
			continue
		}
		switch p.kind {
		case domain.ReferenceExplicit:
			ref := domain.NormalizeCaseFileReference(p.re.FindString(query))
			return domain.ReferenceResolution{Kind: domain.ReferenceExplicit, Reference: ref}
		case domain.ReferenceContextual:
			ref, _ := domain.LastCaseFileReference(conversationContext)
			return domain.ReferenceResolution{Kind: domain.ReferenceContextual, Reference: ref}
		}
	}
	return domain.ReferenceResolution{Kind: domain.ReferenceNone}
}
