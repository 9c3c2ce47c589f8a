package generator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestNormalizeQuestionType(t *testing.T) {
	tests := []struct {
		raw  string
		want models.QuestionType
	}{
		{"mcq", models.MCQ},
		{"Multiple Choice", models.MCQ},
		{"multiple-choice", models.MCQ},
		{"short_answer", models.ShortAnswer},
		{"structured", models.ShortAnswer},
		{"essay", models.LongAnswer},
		{"Extended Response", models.LongAnswer},
		{"numerical", models.Calculation},
		{"data analysis", models.DataAnalysis},
		{"something else entirely", models.ShortAnswer},
		{"", models.ShortAnswer},
	}
	for _, tt := range tests {
		if got := NormalizeQuestionType(tt.raw); got != tt.want {
			t.Errorf("NormalizeQuestionType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSanitizeFormatFallback(t *testing.T) {
	spec := sanitizeFormat(&inferredFormat{}, "GCSE Chemistry Paper 2")

	if spec.Name != "GCSE Chemistry Paper 2" {
		t.Errorf("Name = %q", spec.Name)
	}
	if len(spec.Sections) != 2 {
		t.Fatalf("got %d fallback sections, want 2", len(spec.Sections))
	}
	if spec.Sections[0].QuestionType != models.MCQ || spec.Sections[0].NumQuestions != 20 {
		t.Errorf("fallback section A = %+v", spec.Sections[0])
	}
	if spec.Sections[1].QuestionType != models.ShortAnswer || spec.Sections[1].NumQuestions != 5 {
		t.Errorf("fallback section B = %+v", spec.Sections[1])
	}
	if m := spec.Sections[1].MarksPerQuestion; m == nil || *m != 4 {
		t.Errorf("fallback section B marks = %v, want 4", m)
	}
}

func TestSanitizeFormatDropsInvalidSections(t *testing.T) {
	count := float64(12)
	bad := float64(-3)
	huge := float64(500)
	in := &inferredFormat{
		Name: "  Paper 1  ",
		Sections: []inferredSection{
			{Name: "Section A", QuestionType: "multiple_choice", NumQuestions: &count},
			{Name: "", QuestionType: "mcq", NumQuestions: &count},
			{Name: "Section B", QuestionType: "essay", NumQuestions: &bad},
			{Name: "Section C", QuestionType: "essay"},
			{Name: "Section D", QuestionType: "weird", NumQuestions: &huge},
		},
	}
	spec := sanitizeFormat(in, "fallback name")

	if spec.Name != "Paper 1" {
		t.Errorf("Name = %q", spec.Name)
	}
	if len(spec.Sections) != 2 {
		t.Fatalf("got %d sections, want 2: %+v", len(spec.Sections), spec.Sections)
	}
	if spec.Sections[0].QuestionType != models.MCQ {
		t.Errorf("section 0 type = %q", spec.Sections[0].QuestionType)
	}
	if spec.Sections[1].NumQuestions != 100 {
		t.Errorf("oversized section clamped to %d, want 100", spec.Sections[1].NumQuestions)
	}
	if spec.Sections[1].QuestionType != models.ShortAnswer {
		t.Errorf("unknown type mapped to %q", spec.Sections[1].QuestionType)
	}
}

func TestInferHappyPath(t *testing.T) {
	mock := llm.NewMockClient(`{
		"name": "A-Level Physics Paper 1",
		"description": "Covers mechanics and materials.",
		"total_marks": 85,
		"time_minutes": 120,
		"sections": [
			{"name": "Section A", "question_type": "multiple_choice", "num_questions": 30, "marks_per_question": 1},
			{"name": "Section B", "question_type": "calculation", "num_questions": 5, "marks_per_question": 6}
		]
	}`)
	engine := NewFormatInferenceEngine(mock, testLogger())

	spec, err := engine.Infer(context.Background(), "A-Level Physics Paper 1", "Physics", "A-Level")
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if spec.TotalMarks == nil || *spec.TotalMarks != 85 {
		t.Errorf("TotalMarks = %v", spec.TotalMarks)
	}
	if len(spec.Sections) != 2 {
		t.Fatalf("got %d sections", len(spec.Sections))
	}
	if spec.Sections[1].QuestionType != models.Calculation {
		t.Errorf("section B type = %q", spec.Sections[1].QuestionType)
	}
}

func TestInferUnparseableFallsBack(t *testing.T) {
	mock := llm.NewMockClient("I am not sure what that exam looks like.")
	engine := NewFormatInferenceEngine(mock, testLogger())

	spec, err := engine.Infer(context.Background(), "Mystery Exam", "", "")
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if spec.Name != "Mystery Exam" {
		t.Errorf("Name = %q", spec.Name)
	}
	if len(spec.Sections) != 2 {
		t.Errorf("expected fallback sections, got %+v", spec.Sections)
	}
}

func TestInferProviderError(t *testing.T) {
	mock := &llm.MockClient{Respond: func(int, []llm.Message, llm.Options) (string, error) {
		return "", llm.ClassifyError(credsErr{})
	}}
	engine := NewFormatInferenceEngine(mock, testLogger())

	_, err := engine.Infer(context.Background(), "Any", "", "")
	if err == nil {
		t.Fatal("expected provider error to propagate")
	}
	if !llm.IsCredentialError(err) {
		t.Errorf("error %v not classified as credential error", err)
	}
}

type credsErr struct{}

func (credsErr) Error() string { return "invalid x-api-key" }
