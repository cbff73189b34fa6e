// Package directmatch answers curated questions without invoking the chat
// model. It scans a tenant's Q&A sources with word-set Jaccard similarity and
// its free-text sources with labeled-field patterns, returning a direct
// answer only when confidence is high. Falling through to generation is
// normal; a wrong direct answer is the failure mode the threshold guards
// against.
package directmatch

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/botforge/botcore/internal/content"
)

// Default matcher parameters.
const (
	// DefaultThreshold is the minimum Jaccard score for a Q&A hit.
	DefaultThreshold = 0.8

	// DefaultInfoConfidence is the fixed confidence assigned to a
	// labeled-field hit. Field matches are keyword-triggered, not
	// similarity-scored, so the confidence is a constant.
	DefaultInfoConfidence = 0.7
)

// Result is the outcome of a direct-match attempt. Not persisted.
type Result struct {
	// Found reports whether a confident direct answer exists.
	Found bool

	// Answer is the curated answer text when Found is true.
	Answer string

	// Confidence is in [0, 1]: the Jaccard score for Q&A hits, a fixed
	// value for field hits, 0 on a miss.
	Confidence float64

	// Source is "qa" or "info" when Found is true.
	Source string
}

// FieldPattern maps question keywords to a labeled line in a tenant's
// free-text sources. When the normalized question contains any keyword and a
// source contains a "Label: value" line for one of Labels, the value is
// returned as a direct answer.
type FieldPattern struct {
	// Field names the business fact (e.g. "phone").
	Field string

	// Keywords trigger the field when present in the normalized question.
	Keywords []string

	// Labels are the recognized line prefixes, matched case-insensitively.
	Labels []string
}

// DefaultFields covers the common business facts a storefront bot is asked
// about. English and Hebrew forms are both recognized so the matcher works
// for either audience without per-tenant setup.
func DefaultFields() []FieldPattern {
	return []FieldPattern{
		{
			Field:    "hours",
			Keywords: []string{"hours", "open", "opening", "closing", "שעות", "פתוח", "פתיחה", "סגירה"},
			Labels:   []string{"Hours", "Opening hours", "שעות", "שעות פעילות"},
		},
		{
			Field:    "phone",
			Keywords: []string{"phone", "call", "number", "טלפון", "להתקשר", "מספר"},
			Labels:   []string{"Phone", "Tel", "טלפון"},
		},
		{
			Field:    "address",
			Keywords: []string{"address", "located", "location", "where", "כתובת", "ממוקם", "איפה"},
			Labels:   []string{"Address", "Location", "כתובת"},
		},
		{
			Field:    "email",
			Keywords: []string{"email", "mail", "אימייל", "מייל", "דואר"},
			Labels:   []string{"Email", "Mail", "אימייל", "מייל"},
		},
		{
			Field:    "price",
			Keywords: []string{"price", "cost", "much", "מחיר", "עולה", "כמה"},
			Labels:   []string{"Price", "Pricing", "מחיר", "מחירים"},
		},
		{
			Field:    "about",
			Keywords: []string{"about", "who", "company", "אודות", "מי", "חברה"},
			Labels:   []string{"About", "אודות"},
		},
		{
			Field:    "website",
			Keywords: []string{"website", "site", "url", "אתר"},
			Labels:   []string{"Website", "Site", "אתר"},
		},
	}
}

// Config tunes the matcher. The zero value is usable: defaults are applied
// by New.
type Config struct {
	// Threshold is the minimum Jaccard score for a Q&A hit (default 0.8).
	Threshold float64

	// SelectBest scans every Q&A pair and keeps the highest score instead
	// of stopping at the first pair over the threshold.
	SelectBest bool

	// QAFormat configures the delimiter grammar used to parse qa sources.
	// Nil uses content.DefaultQAFormat.
	QAFormat *content.QAFormat

	// Fields are the labeled-field patterns. Nil uses DefaultFields.
	Fields []FieldPattern

	// InfoConfidence is the confidence reported for field hits (default 0.7).
	InfoConfidence float64
}

// SourceReader is the slice of the content store the matcher needs.
type SourceReader interface {
	SourcesByTenant(ctx context.Context, tenantID string, types ...content.SourceType) ([]content.TrainingSource, error)
}

// Matcher answers questions from curated sources. Safe for concurrent use.
type Matcher struct {
	sources        SourceReader
	threshold      float64
	selectBest     bool
	qaFormat       *content.QAFormat
	fields         []FieldPattern
	infoConfidence float64
}

// New constructs a Matcher over the given source reader.
func New(sources SourceReader, cfg *Config) (*Matcher, error) {
	if sources == nil {
		return nil, fmt.Errorf("directmatch: source reader must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	infoConfidence := cfg.InfoConfidence
	if infoConfidence <= 0 {
		infoConfidence = DefaultInfoConfidence
	}
	fields := cfg.Fields
	if fields == nil {
		fields = DefaultFields()
	}
	return &Matcher{
		sources:        sources,
		threshold:      threshold,
		selectBest:     cfg.SelectBest,
		qaFormat:       cfg.QAFormat,
		fields:         fields,
		infoConfidence: infoConfidence,
	}, nil
}

// Match attempts a direct answer for the question. A miss returns
// Result{Found: false} with a nil error; errors are reserved for store
// failures.
func (m *Matcher) Match(ctx context.Context, tenantID, question string) (Result, error) {
	normalized := Normalize(question)
	if normalized == "" {
		return Result{}, nil
	}
	questionWords := wordSet(normalized)

	qaSources, err := m.sources.SourcesByTenant(ctx, tenantID, content.SourceQA)
	if err != nil {
		return Result{}, fmt.Errorf("directmatch: load qa sources for tenant %s: %w", tenantID, err)
	}

	best := Result{}
	for _, src := range qaSources {
		for _, pair := range content.ParseQAPairs(src.RawContent, m.qaFormat) {
			score := Jaccard(questionWords, wordSet(Normalize(pair.Question)))
			if score < m.threshold || score <= best.Confidence {
				continue
			}
			best = Result{Found: true, Answer: pair.Answer, Confidence: score, Source: "qa"}
			if !m.selectBest {
				return best, nil
			}
		}
	}
	if best.Found {
		return best, nil
	}

	infoSources, err := m.sources.SourcesByTenant(ctx, tenantID,
		content.SourceText, content.SourceFile, content.SourceInfo)
	if err != nil {
		return Result{}, fmt.Errorf("directmatch: load info sources for tenant %s: %w", tenantID, err)
	}

	for _, field := range m.fields {
		if !containsAnyWord(normalized, field.Keywords) {
			continue
		}
		for _, src := range infoSources {
			if value, ok := findLabeledValue(src.RawContent, field.Labels); ok {
				return Result{Found: true, Answer: value, Confidence: m.infoConfidence, Source: "info"}, nil
			}
		}
	}

	return Result{}, nil
}

// Normalize lowercases, strips punctuation, and collapses whitespace.
// Letters and digits of any script are kept, so Hebrew questions normalize
// the same way English ones do.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Jaccard returns |a ∩ b| / |a ∪ b| over word sets. Two empty sets score 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// stopwords are function words excluded from Jaccard word sets. They carry no
// question intent but inflate the union, so "What are your hours?" and
// "What are the hours?" should score as the same question. English and Hebrew
// forms are covered.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "do": {}, "does": {},
	"your": {}, "you": {}, "please": {}, "can": {}, "i": {}, "we": {}, "my": {},
	"של": {}, "שלכם": {}, "שלך": {}, "שלי": {}, "את": {}, "האם": {},
	"אני": {}, "אתם": {}, "בבקשה": {},
}

// wordSet splits a normalized string into its set of content words. If
// stopword removal would leave the set empty (an all-function-word question),
// the full word set is kept so short questions still compare meaningfully.
func wordSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	if len(set) == 0 {
		for _, w := range strings.Fields(normalized) {
			set[w] = struct{}{}
		}
	}
	return set
}

// hebrewClitics are the one-letter prefixes that attach directly to Hebrew
// nouns: the definite article and the preposition/conjunction letters. "טלפון"
// appears in questions as "הטלפון", "בטלפון", or "ולטלפון".
const hebrewClitics = "הבלמוכש"

// containsAnyWord reports whether the normalized question contains any of the
// keywords as a whole word. Hebrew keywords also match with up to two clitic
// prefix letters attached.
func containsAnyWord(normalized string, keywords []string) bool {
	words := wordSet(normalized)
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for w := range words {
			if matchesKeyword(w, kw) {
				return true
			}
		}
	}
	return false
}

// matchesKeyword reports whether the question word is the keyword itself or
// the keyword carrying a short Hebrew clitic prefix.
func matchesKeyword(word, kw string) bool {
	if word == kw {
		return true
	}
	if !strings.HasSuffix(word, kw) {
		return false
	}
	prefix := []rune(strings.TrimSuffix(word, kw))
	if len(prefix) == 0 || len(prefix) > 2 {
		return false
	}
	for _, r := range prefix {
		if !strings.ContainsRune(hebrewClitics, r) {
			return false
		}
	}
	return true
}

// findLabeledValue scans raw source text for a "Label: value" line matching
// any of the labels, case-insensitively, and returns the value.
func findLabeledValue(raw string, labels []string) (string, bool) {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		prefix := strings.TrimSpace(line[:idx])
		for _, label := range labels {
			if strings.EqualFold(prefix, label) {
				value := strings.TrimSpace(line[idx+1:])
				if value != "" {
					return value, true
				}
			}
		}
	}
	return "", false
}
