package content

import "strings"

// QAPair is a curated question/answer pair parsed from a qa-typed source.
// Pairs are a view over the source's raw text — they are recomputed on each
// direct-match attempt, never stored separately.
type QAPair struct {
	// Question is the curated question text.
	Question string
	// Answer is the curated answer text.
	Answer string
}

// QAFormat describes the delimiter grammar used to parse qa-typed sources.
// The labels are injectable so the matcher is not coupled to one human
// language's phrasing.
type QAFormat struct {
	// Delimiter separates pair blocks (a line equal to this string).
	Delimiter string
	// QuestionLabels are the accepted line prefixes marking a question.
	QuestionLabels []string
	// AnswerLabels are the accepted line prefixes marking an answer.
	AnswerLabels []string
}

// DefaultQAFormat returns the default delimiter grammar: "---" block
// separators with "Question:"/"Q:" and "Answer:"/"A:" labels.
func DefaultQAFormat() *QAFormat {
	return &QAFormat{
		Delimiter:      "---",
		QuestionLabels: []string{"Question:", "Q:"},
		AnswerLabels:   []string{"Answer:", "A:"},
	}
}

// ParseQAPairs parses raw qa-source text into pairs using the given format.
// A nil format uses DefaultQAFormat. Blocks missing either a question or an
// answer are skipped. Answer text may span multiple lines, ending at the next
// label or the end of the block.
func ParseQAPairs(raw string, f *QAFormat) []QAPair {
	if f == nil {
		f = DefaultQAFormat()
	}

	var pairs []QAPair
	for _, block := range splitBlocks(raw, f.Delimiter) {
		var question string
		var answer strings.Builder
		inAnswer := false

		for _, line := range strings.Split(block, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if rest, ok := stripLabel(trimmed, f.QuestionLabels); ok {
				question = rest
				inAnswer = false
				continue
			}
			if rest, ok := stripLabel(trimmed, f.AnswerLabels); ok {
				answer.Reset()
				answer.WriteString(rest)
				inAnswer = true
				continue
			}
			if inAnswer {
				answer.WriteString("\n")
				answer.WriteString(trimmed)
			}
		}

		q := strings.TrimSpace(question)
		a := strings.TrimSpace(answer.String())
		if q != "" && a != "" {
			pairs = append(pairs, QAPair{Question: q, Answer: a})
		}
	}

	return pairs
}

// splitBlocks splits raw text into blocks separated by lines equal to the
// delimiter. An empty delimiter treats the whole input as one block.
func splitBlocks(raw, delimiter string) []string {
	if delimiter == "" {
		return []string{raw}
	}

	var blocks []string
	var current strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == delimiter {
			blocks = append(blocks, current.String())
			current.Reset()
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	blocks = append(blocks, current.String())
	return blocks
}

// stripLabel returns the text after the first matching label prefix, with a
// case-insensitive comparison, or ("", false) when no label matches.
func stripLabel(line string, labels []string) (string, bool) {
	for _, label := range labels {
		if len(line) >= len(label) && strings.EqualFold(line[:len(label)], label) {
			return strings.TrimSpace(line[len(label):]), true
		}
	}
	return "", false
}
