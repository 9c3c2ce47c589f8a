package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
	"gorm.io/datatypes"
)

func strPtr(s string) *string { return &s }

func mcqQuestion(t *testing.T) *models.ExamQuestion {
	t.Helper()
	correct := 2
	return &models.ExamQuestion{
		ID:                 1,
		QuestionText:       "Which particle has a relative charge of -1?",
		Options:            datatypes.JSON(`["Proton","Neutron","Electron","Positron"]`),
		CorrectOptionIndex: &correct,
		MaxMarks:           1,
	}
}

func writtenQuestion() *models.ExamQuestion {
	return &models.ExamQuestion{
		ID:           2,
		QuestionText: "Explain why ionic compounds conduct when molten.",
		MaxMarks:     4,
		MarkScheme:   datatypes.JSON(`[{"label":"M1","description":"ions free to move","marks":4}]`),
	}
}

func TestMarkMCQFastPath(t *testing.T) {
	mock := llm.NewMockClient()
	engine := NewMarkingEngine(mock, nil, testLogger())
	q := mcqQuestion(t)

	correct := 2
	result, err := engine.Mark(context.Background(), q, AnswerInput{SelectedOptionIndex: &correct}, "")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if result.Score != 1 || result.Feedback != "Correct." {
		t.Errorf("result = %+v", result)
	}

	wrong := 0
	result, err = engine.Mark(context.Background(), q, AnswerInput{SelectedOptionIndex: &wrong}, "")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if result.Score != 0 {
		t.Errorf("score = %v, want 0", result.Score)
	}
	if !strings.Contains(result.Feedback, "Electron") {
		t.Errorf("feedback %q does not name the correct answer", result.Feedback)
	}

	if mock.Calls() != 0 {
		t.Errorf("mcq marking made %d provider calls, want 0", mock.Calls())
	}
}

func TestMarkClampsScore(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"above max", `{"score": 10, "maxMarks": 4, "feedback": "great"}`, 4},
		{"negative", `{"score": -2, "maxMarks": 4, "feedback": "poor"}`, 0},
		{"half marks kept", `{"score": 2.5, "maxMarks": 4, "feedback": "partial"}`, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockClient(tt.response)
			engine := NewMarkingEngine(mock, nil, testLogger())

			result, err := engine.Mark(context.Background(), writtenQuestion(), AnswerInput{Text: strPtr("The ions can move.")}, "")
			if err != nil {
				t.Fatalf("Mark: %v", err)
			}
			if result.Score != tt.want {
				t.Errorf("Score = %v, want %v", result.Score, tt.want)
			}
			if result.MaxMarks != 4 {
				t.Errorf("MaxMarks = %d, want 4", result.MaxMarks)
			}
		})
	}
}

func TestMarkMissingScore(t *testing.T) {
	mock := llm.NewMockClient(`{"feedback": "nice try"}`)
	engine := NewMarkingEngine(mock, nil, testLogger())

	_, err := engine.Mark(context.Background(), writtenQuestion(), AnswerInput{Text: strPtr("answer")}, "")
	var pf *ParseFailure
	if !errors.As(err, &pf) {
		t.Fatalf("err = %v, want *ParseFailure", err)
	}
}

func TestMarkEmptyAnswer(t *testing.T) {
	mock := llm.NewMockClient()
	engine := NewMarkingEngine(mock, nil, testLogger())

	result, err := engine.Mark(context.Background(), writtenQuestion(), AnswerInput{}, "")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if result.Score != 0 {
		t.Errorf("Score = %v, want 0", result.Score)
	}
	if mock.Calls() != 0 {
		t.Errorf("empty answer made %d provider calls, want 0", mock.Calls())
	}
}

func TestMarkRubricOverride(t *testing.T) {
	var sawPrompt string
	mock := &llm.MockClient{Respond: func(_ int, messages []llm.Message, _ llm.Options) (string, error) {
		sawPrompt = messages[len(messages)-1].Text
		return `{"score": 3, "maxMarks": 4, "feedback": "ok"}`, nil
	}}
	engine := NewMarkingEngine(mock, nil, testLogger())

	_, err := engine.Mark(context.Background(), writtenQuestion(), AnswerInput{Text: strPtr("answer")}, "Award all marks for mentioning mobile ions.")
	if err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if !strings.Contains(sawPrompt, "mobile ions") {
		t.Error("override rubric not in prompt")
	}
	if strings.Contains(sawPrompt, "ions free to move") {
		t.Error("stored scheme leaked into prompt despite override")
	}
}

type fakePdfExtractor struct{ text string }

func (f fakePdfExtractor) ExtractText(_ context.Context, _ []byte) (string, error) {
	return f.text, nil
}

func TestMarkPdfAttachment(t *testing.T) {
	var sawPrompt string
	mock := &llm.MockClient{Respond: func(_ int, messages []llm.Message, _ llm.Options) (string, error) {
		sawPrompt = messages[len(messages)-1].Text
		return `{"score": 2, "maxMarks": 4, "feedback": "ok"}`, nil
	}}
	engine := NewMarkingEngine(mock, fakePdfExtractor{text: "handwritten working from scan"}, testLogger())

	answer := AnswerInput{
		Attachments: []Attachment{{FileName: "working.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}},
	}
	if _, err := engine.Mark(context.Background(), writtenQuestion(), answer, ""); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if !strings.Contains(sawPrompt, "handwritten working from scan") {
		t.Error("pdf text not included in marking prompt")
	}
}

func TestMarkUnsupportedAttachment(t *testing.T) {
	engine := NewMarkingEngine(llm.NewMockClient(), nil, testLogger())

	answer := AnswerInput{
		Attachments: []Attachment{{FileName: "notes.docx", MimeType: "application/msword"}},
	}
	if _, err := engine.Mark(context.Background(), writtenQuestion(), answer, ""); err == nil {
		t.Fatal("expected error for unsupported attachment type")
	}
}

func TestHintTiersAndLimit(t *testing.T) {
	var prompts []string
	mock := &llm.MockClient{Respond: func(_ int, messages []llm.Message, _ llm.Options) (string, error) {
		prompts = append(prompts, messages[len(messages)-1].Text)
		return `{"hint": "What do charged particles need in order to carry current?"}`, nil
	}}
	engine := NewMarkingEngine(mock, nil, testLogger())
	q := writtenQuestion()

	hint, err := engine.Hint(context.Background(), q, nil, 0)
	if err != nil {
		t.Fatalf("Hint: %v", err)
	}
	if hint == "" {
		t.Error("empty hint")
	}
	if !strings.Contains(prompts[0], "first, gentle hint") {
		t.Error("first hint prompt not tier 1")
	}

	if _, err := engine.Hint(context.Background(), q, strPtr("something about electrons"), 1); err != nil {
		t.Fatalf("Hint: %v", err)
	}
	if !strings.Contains(prompts[1], "more direct hint") {
		t.Error("second hint prompt not tier 2")
	}

	if _, err := engine.Hint(context.Background(), q, nil, 2); !errors.Is(err, ErrHintLimit) {
		t.Errorf("err = %v, want ErrHintLimit", err)
	}
	if mock.Calls() != 2 {
		t.Errorf("provider called %d times, want 2", mock.Calls())
	}
}

func TestFullAnswerPlainText(t *testing.T) {
	mock := llm.NewMockClient("When molten, the ions are free to move and carry charge through the liquid.")
	engine := NewMarkingEngine(mock, nil, testLogger())

	answer, err := engine.FullAnswer(context.Background(), writtenQuestion())
	if err != nil {
		t.Fatalf("FullAnswer: %v", err)
	}
	if !strings.Contains(answer, "free to move") {
		t.Errorf("answer = %q", answer)
	}
}
