package content

import "testing"

func Test_ParseQAPairs_DefaultFormat(t *testing.T) {
	t.Parallel()
	raw := `Question: What are your hours?
Answer: 9am-5pm
---
Q: Do you ship abroad?
A: Yes, to most countries.
We use registered mail.`

	pairs := ParseQAPairs(raw, nil)
	if len(pairs) != 2 {
		t.Fatalf("want 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Question != "What are your hours?" || pairs[0].Answer != "9am-5pm" {
		t.Errorf("pair 0: got %+v", pairs[0])
	}
	if pairs[1].Answer != "Yes, to most countries.\nWe use registered mail." {
		t.Errorf("pair 1 answer: got %q", pairs[1].Answer)
	}
}

func Test_ParseQAPairs_CustomLabels(t *testing.T) {
	t.Parallel()
	raw := `שאלה: מה שעות הפעילות?
תשובה: 9-18
===
שאלה: איפה אתם נמצאים?
תשובה: תל אביב`

	f := &QAFormat{
		Delimiter:      "===",
		QuestionLabels: []string{"שאלה:"},
		AnswerLabels:   []string{"תשובה:"},
	}
	pairs := ParseQAPairs(raw, f)
	if len(pairs) != 2 {
		t.Fatalf("want 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Question != "מה שעות הפעילות?" || pairs[0].Answer != "9-18" {
		t.Errorf("pair 0: got %+v", pairs[0])
	}
}

func Test_ParseQAPairs_IncompleteBlocksSkipped(t *testing.T) {
	t.Parallel()
	raw := `Question: orphan question with no answer
---
Answer: orphan answer with no question
---
Question: complete
Answer: pair`

	pairs := ParseQAPairs(raw, nil)
	if len(pairs) != 1 {
		t.Fatalf("want 1 pair, got %d", len(pairs))
	}
	if pairs[0].Question != "complete" {
		t.Errorf("got %+v", pairs[0])
	}
}

func Test_ParseQAPairs_EmptyInput(t *testing.T) {
	t.Parallel()
	if pairs := ParseQAPairs("", nil); len(pairs) != 0 {
		t.Errorf("want no pairs, got %d", len(pairs))
	}
}

func Test_ParseQAPairs_CaseInsensitiveLabels(t *testing.T) {
	t.Parallel()
	raw := `question: lowered label
answer: still parsed`

	pairs := ParseQAPairs(raw, nil)
	if len(pairs) != 1 {
		t.Fatalf("want 1 pair, got %d", len(pairs))
	}
	if pairs[0].Answer != "still parsed" {
		t.Errorf("got %+v", pairs[0])
	}
}
