package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
)

const paperResponse = `{
	"name": "June 2023 Paper 2",
	"total_marks": 60,
	"time_minutes": 90,
	"sections": [
		{"name": "Section A", "question_type": "multiple_choice", "num_questions": 2, "marks_per_question": 1},
		{"name": "Section B", "question_type": "structured", "num_questions": 1, "marks_per_question": 6}
	],
	"questions": [
		{
			"section_index": 0,
			"question_text": "Which of these is a noble gas?",
			"options": ["Oxygen", "Argon", "Chlorine", "Nitrogen"],
			"correct_option_index": 1,
			"max_marks": 1,
			"mark_scheme": [{"label": "B1", "marks": 1}]
		},
		{
			"section_index": 1,
			"question_text": "Describe how fractional distillation separates crude oil.",
			"max_marks": 6
		},
		{
			"section_index": 9,
			"question_text": "Question with out-of-range section.",
			"max_marks": -2
		},
		{"section_index": 0, "question_text": "   "}
	],
	"questions_truncated": false
}`

func TestExtractPaper(t *testing.T) {
	mock := llm.NewMockClient(paperResponse)
	engine := NewPaperExtractionEngine(mock, testLogger())

	result, err := engine.Extract(context.Background(), PaperSource{Text: "PAPER 2\n--- PAGE BREAK ---\nSection A..."})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if result.Format.Name != "June 2023 Paper 2" {
		t.Errorf("format name = %q", result.Format.Name)
	}
	if len(result.Format.Sections) != 2 {
		t.Fatalf("got %d sections", len(result.Format.Sections))
	}
	if result.Format.Sections[1].QuestionType != models.ShortAnswer {
		t.Errorf("section B type = %q", result.Format.Sections[1].QuestionType)
	}

	// Blank question dropped; bad section index and marks normalized.
	if len(result.Questions) != 3 {
		t.Fatalf("got %d questions, want 3", len(result.Questions))
	}
	mcq := result.Questions[0]
	if len(mcq.Options) != 4 || mcq.CorrectOptionIndex == nil || *mcq.CorrectOptionIndex != 1 {
		t.Errorf("mcq = %+v", mcq)
	}
	if q := result.Questions[1]; q.MarkScheme == nil {
		t.Error("missing mark scheme not normalized to empty slice")
	}
	if q := result.Questions[2]; q.SectionIndex != 0 || q.MaxMarks != 1 {
		t.Errorf("out-of-range question not normalized: %+v", q)
	}
}

func TestExtractEmptySource(t *testing.T) {
	engine := NewPaperExtractionEngine(llm.NewMockClient(), testLogger())
	if _, err := engine.Extract(context.Background(), PaperSource{}); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestExtractUnparseableIsError(t *testing.T) {
	mock := llm.NewMockClient("the pages are too blurry to read")
	engine := NewPaperExtractionEngine(mock, testLogger())

	if _, err := engine.Extract(context.Background(), PaperSource{Text: "blurry scan"}); err == nil {
		t.Fatal("expected error for unparseable extraction")
	}
}

func TestExtractTruncatesLongText(t *testing.T) {
	var sawLen int
	mock := &llm.MockClient{Respond: func(_ int, messages []llm.Message, _ llm.Options) (string, error) {
		sawLen = len(messages[len(messages)-1].Text)
		return paperResponse, nil
	}}
	engine := NewPaperExtractionEngine(mock, testLogger())

	long := strings.Repeat("question text ", 5000)
	if _, err := engine.Extract(context.Background(), PaperSource{Text: long}); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if sawLen > maxPaperTextChars+len(BuildPaperExtractionPrompt())+40 {
		t.Errorf("prompt length %d suggests paper text was not truncated", sawLen)
	}
}
