package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/studyowl/exam-service/internal/events"
	"github.com/studyowl/exam-service/internal/llm"
)

const generatedMCQ = `{
	"question_text": "Which particle has a relative charge of -1?",
	"options": ["Proton", "Neutron", "Electron", "Positron"],
	"correct_option_index": 2,
	"max_marks": 1,
	"mark_scheme": [{"label": "B1", "marks": 1}]
}`

const generatedShortAnswer = `{
	"question_text": "Explain why the rate doubles when temperature rises by 10 K.",
	"max_marks": 4,
	"mark_scheme": [
		{"label": "M1", "description": "more particles exceed Ea", "marks": 2},
		{"label": "M2", "description": "more frequent successful collisions", "marks": 2}
	]
}`

func respondByQuestionType(_ int, messages []llm.Message, _ llm.Options) (string, error) {
	if strings.Contains(messages[len(messages)-1].Text, "multiple choice") {
		return generatedMCQ, nil
	}
	return generatedShortAnswer, nil
}

func TestGenerateBankReplacesExisting(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Respond = respondByQuestionType
	svc := env.generationService()
	ctx := context.Background()

	oldID := env.mcq.ID
	result, err := svc.GenerateBank(ctx, env.format.ID, testUser)
	if err != nil {
		t.Fatalf("GenerateBank: %v", err)
	}
	if result.Requested != 3 || result.Generated != 3 {
		t.Errorf("result = %d/%d, want 3/3", result.Generated, result.Requested)
	}
	if result.Mode != "full" {
		t.Errorf("mode = %q, want full", result.Mode)
	}

	questions, err := svc.ListQuestions(ctx, env.format.ID, testUser)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("bank holds %d questions, want 3", len(questions))
	}
	for _, q := range questions {
		if q.ID == oldID {
			t.Error("regeneration kept an old question")
		}
		if q.TopicID == nil {
			t.Errorf("question %d has no topic", q.ID)
		}
	}

	if gen := env.eventsOfType(events.TypeQuestionsGenerated); len(gen) != 1 {
		t.Errorf("published %d questions.generated events, want 1", len(gen))
	}
}

func TestGenerateBankPartialFailureIsSuccess(t *testing.T) {
	env := newTestEnv(t)
	calls := 0
	env.provider.Respond = func(_ int, messages []llm.Message, _ llm.Options) (string, error) {
		calls++
		if strings.Contains(messages[len(messages)-1].Text, "multiple choice") {
			return generatedMCQ, nil
		}
		return "", fmt.Errorf("model overloaded")
	}
	svc := env.generationService()

	result, err := svc.GenerateBank(context.Background(), env.format.ID, testUser)
	if err != nil {
		t.Fatalf("GenerateBank: %v", err)
	}
	if result.Generated != 2 {
		t.Errorf("generated = %d, want the 2 mcq units", result.Generated)
	}
	if result.Generated == result.Requested {
		t.Error("expected a partial result")
	}
}

func TestGenerateBankTotalFailure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Respond = func(_ int, _ []llm.Message, _ llm.Options) (string, error) {
		return "", fmt.Errorf("model overloaded")
	}
	svc := env.generationService()

	_, err := svc.GenerateBank(context.Background(), env.format.ID, testUser)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", err)
	}

	// A failed full run must not wipe the existing bank.
	count, _ := env.repo.Question().CountByFormat(context.Background(), nil, env.format.ID)
	if count != 2 {
		t.Errorf("bank holds %d questions after failed run, want 2", count)
	}
}

func TestGenerateMoreAppends(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Respond = respondByQuestionType
	svc := env.generationService()
	ctx := context.Background()

	result, err := svc.GenerateMore(ctx, &GenerateMoreRequest{FormatID: env.format.ID, Count: 2, Difficulty: 4}, testUser)
	if err != nil {
		t.Fatalf("GenerateMore: %v", err)
	}
	if result.Generated != 2 || result.Mode != "batch" {
		t.Errorf("result = %+v", result)
	}

	count, _ := env.repo.Question().CountByFormat(ctx, nil, env.format.ID)
	if count != 4 {
		t.Errorf("bank holds %d questions, want 4 (2 existing + 2 appended)", count)
	}
	if appended := env.eventsOfType(events.TypeQuestionsAppended); len(appended) != 1 {
		t.Errorf("published %d questions.appended events, want 1", len(appended))
	}
}

func TestGenerateBankOwnership(t *testing.T) {
	env := newTestEnv(t)
	svc := env.generationService()

	_, err := svc.GenerateBank(context.Background(), env.format.ID, otherUser)
	if !IsPermissionError(err) {
		t.Errorf("err = %v, want permission error", err)
	}
}

func TestListQuestionsUnknownFormat(t *testing.T) {
	env := newTestEnv(t)
	svc := env.generationService()

	_, err := svc.ListQuestions(context.Background(), 9999, testUser)
	if !errors.Is(err, ErrFormatNotFound) {
		t.Errorf("err = %v, want ErrFormatNotFound", err)
	}
}
