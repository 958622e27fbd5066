package domain

import (
	"regexp"
	"strings"
)

// CaseFileReference is a normalized judicial case-file identifier:
// four-digit year, six-digit sequence, four-digit office code and a
// two-letter matter code, e.g. "2022-063557-6597-LA".
type CaseFileReference string

var caseFileRegexp = regexp.MustCompile(`\b\d{4}-\d{6}-\d{4}-[A-Za-z]{2}\b`)

func (r CaseFileReference) String() string {
	return string(r)
}

func (r CaseFileReference) Valid() bool {
	return caseFileRegexp.FindString(string(r)) == string(r)
}

// NormalizeCaseFileReference upper-cases the matter code so that the same
// case file always resolves to the same reference value.
func NormalizeCaseFileReference(raw string) CaseFileReference {
	return CaseFileReference(strings.ToUpper(strings.TrimSpace(raw)))
}

// FindCaseFileReferences returns every case-file token in text, in text order.
func FindCaseFileReferences(text string) []CaseFileReference {
	matches := caseFileRegexp.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]CaseFileReference, 0, len(matches))
	for _, m := range matches {
		out = append(out, NormalizeCaseFileReference(m))
	}
	return out
}

// FirstCaseFileReference returns the first case-file token in text.
func FirstCaseFileReference(text string) (CaseFileReference, bool) {
	m := caseFileRegexp.FindString(text)
	if m == "" {
		return "", false
	}
	return NormalizeCaseFileReference(m), true
}

// LastCaseFileReference returns the most recently mentioned case-file token,
// i.e. the last occurrence in text order.
func LastCaseFileReference(text string) (CaseFileReference, bool) {
	refs := FindCaseFileReferences(text)
	if len(refs) == 0 {
		return "", false
	}
	return refs[len(refs)-1], true
}
