package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
)

// NoContextMarker is the body of the FormattedContext returned when every
// retrieval source came back empty. The answer-generation layer keys off
// FragmentCount == 0; the marker keeps the prompt template stable.
const NoContextMarker = "NO CASE-FILE INFORMATION WAS FOUND FOR THIS QUERY."

const (
	ellipsisMarker     = "..."
	documentSeparator  = "----------------------------------------"
	globalSeparator    = "========================================"
	sentenceEndWindow  = 100
	whitespaceWindow   = 50
	inaudiblePlacehold = "[inaudible]"
	noisePlaceholder   = "[noise]"
)

var (
	whitespaceRunRE = regexp.MustCompile(`\s+`)
	// raw transcript timestamps: [00:12:03], (1:02:45), [12:03]
	audioTimestampRE = regexp.MustCompile(`[\[(]\s*\d{1,2}:\d{2}(?::\d{2})?\s*[\])]`)
	inaudibleRE      = regexp.MustCompile(`(?i)[\[(]\s*(inaudible|ininteligible|incomprensible)\s*[\])]`)
	noiseRE          = regexp.MustCompile(`(?i)[\[(]\s*(ruido|noise|m[uú]sica|sonido)\s*[\])]`)
)

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {}, ".ogg": {}, ".opus": {}, ".aac": {},
}

// AggregatorConfig bounds a single aggregation call.
type AggregatorConfig struct {
	MaxFragments        int
	MaxCharsPerFragment int
}

func (c AggregatorConfig) normalize() AggregatorConfig {
	out := c
	if out.MaxFragments <= 0 {
		out.MaxFragments = 30
	}
	if out.MaxCharsPerFragment <= 0 {
		out.MaxCharsPerFragment = 1500
	}
	return out
}

// ChunkAggregator groups retrieved fragments by source document and builds
// the structured context block consumed by the prompt layer. Format is a
// pure function: identical input and parameters always produce a
// byte-identical string.
type ChunkAggregator struct {
	cfg AggregatorConfig
}

func NewChunkAggregator(cfg AggregatorConfig) *ChunkAggregator {
	return &ChunkAggregator{cfg: cfg.normalize()}
}

type documentGroup struct {
	documentID   string
	documentName string
	caseFileRef  domain.CaseFileReference
	isAudio      bool
	total        int
	fragments    []domain.Fragment
}

// Format truncates the score-ranked input to MaxFragments, groups by
// document in encounter order, sorts each group by fragment index, and
// emits the context block. Fragments missing a document id or carrying a
// negative index are skipped, never fatal.
func (a *ChunkAggregator) Format(fragments []domain.Fragment) domain.FormattedContext {
	if len(fragments) > a.cfg.MaxFragments {
		fragments = fragments[:a.cfg.MaxFragments]
	}

	groups := groupByDocument(fragments)
	if len(groups) == 0 {
		return domain.FormattedContext{Text: NoContextMarker}
	}

	var b strings.Builder
	fragmentCount := 0
	for _, g := range groups {
		fragmentCount += len(g.fragments)
	}

	fmt.Fprintf(&b, "RETRIEVED CONTEXT: %d document(s), %d fragment(s)\n", len(groups), fragmentCount)
	b.WriteString(globalSeparator)
	b.WriteString("\n")

	for ordinal, g := range groups {
		lo := g.fragments[0].FragmentIndex + 1
		hi := g.fragments[len(g.fragments)-1].FragmentIndex + 1
		total := g.total
		if total < len(g.fragments) {
			total = len(g.fragments)
		}

		b.WriteString("\n")
		b.WriteString(documentSeparator)
		b.WriteString("\n")
		fmt.Fprintf(&b, "[DOCUMENT %d] %s: %s\n", ordinal+1, documentLabel(g), g.documentName)
		fmt.Fprintf(&b, "Case file: %s\n", g.caseFileRef)
		fmt.Fprintf(&b, "Fragments %d-%d of %d\n", lo, hi, total)
		b.WriteString(documentSeparator)
		b.WriteString("\n")

		for _, f := range g.fragments {
			text := cleanFragmentText(f)
			text = smartTruncate(text, a.cfg.MaxCharsPerFragment)
			fmt.Fprintf(&b, "\n[FRAGMENT %d] (pages %d-%d, %d chars)\n%s\n",
				f.FragmentIndex+1, f.PageStart, f.PageEnd, len([]rune(text)), text)
		}
	}

	text := b.String()
	return domain.FormattedContext{
		Text:          text,
		DocumentCount: len(groups),
		FragmentCount: fragmentCount,
		TotalChars:    len([]rune(text)),
	}
}

func groupByDocument(fragments []domain.Fragment) []*documentGroup {
	ordered := make([]*documentGroup, 0)
	index := make(map[string]*documentGroup)

	for _, f := range fragments {
		if f.Malformed() {
			continue
		}
		key := f.DocumentID + "\x00" + f.DocumentName
		g, ok := index[key]
		if !ok {
			g = &documentGroup{
				documentID:   f.DocumentID,
				documentName: f.DocumentName,
				caseFileRef:  f.CaseFileRef,
				isAudio:      f.IsAudio,
				total:        f.FragmentCount,
			}
			index[key] = g
			ordered = append(ordered, g)
		}
		if f.IsAudio {
			g.isAudio = true
		}
		if f.FragmentCount > g.total {
			g.total = f.FragmentCount
		}
		g.fragments = append(g.fragments, f)
	}

	for _, g := range ordered {
		sort.SliceStable(g.fragments, func(i, j int) bool {
			return g.fragments[i].FragmentIndex < g.fragments[j].FragmentIndex
		})
	}
	return ordered
}

func documentLabel(g *documentGroup) string {
	if g.isAudio || hasAudioExtension(g.documentName) {
		return "Audio transcript"
	}
	return "Document"
}

func hasAudioExtension(name string) bool {
	dot := strings.LastIndex(name, ".")
	if dot < 0 {
		return false
	}
	_, ok := audioExtensions[strings.ToLower(name[dot:])]
	return ok
}

// cleanFragmentText collapses whitespace runs and strips control
// characters; audio transcripts additionally lose raw timestamps and get
// their noise markers normalized to fixed placeholders.
func cleanFragmentText(f domain.Fragment) string {
	text := f.Text
	if f.IsAudio {
		text = audioTimestampRE.ReplaceAllString(text, " ")
		text = inaudibleRE.ReplaceAllString(text, inaudiblePlacehold)
		text = noiseRE.ReplaceAllString(text, noisePlaceholder)
	}
	text = stripControlRunes(text)
	text = whitespaceRunRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func stripControlRunes(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}

// smartTruncate bounds text to maxChars runes, preferring the last
// sentence end within the final 100 runes of the limit, then the last
// whitespace within the final 50; only the latter two cases append an
// ellipsis marker.
func smartTruncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	window := runes[:maxChars]

	lo := maxChars - sentenceEndWindow
	if lo < 0 {
		lo = 0
	}
	for i := maxChars - 1; i >= lo; i-- {
		if isSentenceEnd(window[i]) {
			return string(window[:i+1])
		}
	}

	lo = maxChars - whitespaceWindow
	if lo < 0 {
		lo = 0
	}
	for i := maxChars - 1; i >= lo; i-- {
		if unicode.IsSpace(window[i]) {
			return strings.TrimRight(string(window[:i]), " ") + ellipsisMarker
		}
	}

	return string(window) + ellipsisMarker
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	default:
		return false
	}
}
