package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/studyowl/exam-service/internal/events"
	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
)

const markingResponse = `{"score": 3, "maxMarks": 4, "feedback": "Good, but mention ion mobility."}`

func TestStartAttempt(t *testing.T) {
	env := newTestEnv(t)
	svc := env.attemptService()
	ctx := context.Background()

	resp, err := svc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID}, testUser)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resp.Mode != models.ModePractice {
		t.Errorf("mode = %q, want practice default", resp.Mode)
	}
	if len(resp.Questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(resp.Questions))
	}
	if !resp.CanSubmit {
		t.Error("new attempt should be submittable")
	}

	// The student view must not leak answers.
	raw := mustJSON(t, resp.Questions)
	if strings.Contains(raw, "correct_option_index") || strings.Contains(raw, "mark_scheme") {
		t.Errorf("question view leaks marking data: %s", raw)
	}
}

func TestStartAttemptResumesActive(t *testing.T) {
	env := newTestEnv(t)
	svc := env.attemptService()
	ctx := context.Background()

	first, err := svc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID}, testUser)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	second, err := svc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID}, testUser)
	if err != nil {
		t.Fatalf("Start again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second start created attempt %d, want resume of %d", second.ID, first.ID)
	}
	if !second.Resumed {
		t.Error("resumed flag not set")
	}
}

func TestStartAttemptEmptyBank(t *testing.T) {
	env := newTestEnv(t)
	delete(env.repo.questions, env.mcq.ID)
	delete(env.repo.questions, env.written.ID)
	svc := env.attemptService()

	_, err := svc.Start(context.Background(), &StartAttemptRequest{FormatID: env.format.ID}, testUser)
	if !errors.Is(err, ErrEmptyQuestionBank) {
		t.Errorf("err = %v, want ErrEmptyQuestionBank", err)
	}
}

func TestSubmitAnswerPracticeMarksImmediately(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Respond = respondBySystemPrompt(markingResponse, "", "")
	svc := env.attemptService()
	ctx := context.Background()

	attempt, err := svc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID}, testUser)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// MCQ with the correct option: fast path, no provider call.
	answer, err := svc.SubmitAnswer(ctx, attempt.ID, &SubmitAnswerRequest{
		QuestionID:          env.mcq.ID,
		SelectedOptionIndex: intPtr(1),
	}, testUser)
	if err != nil {
		t.Fatalf("SubmitAnswer mcq: %v", err)
	}
	if answer.Score == nil || *answer.Score != 1 {
		t.Errorf("mcq score = %v, want 1", answer.Score)
	}
	if env.provider.Calls() != 0 {
		t.Errorf("provider called %d times for mcq, want 0", env.provider.Calls())
	}

	// Written answer goes through the marking engine.
	answer, err = svc.SubmitAnswer(ctx, attempt.ID, &SubmitAnswerRequest{
		QuestionID: env.written.ID,
		AnswerText: strPtr("Ions become free to move."),
	}, testUser)
	if err != nil {
		t.Fatalf("SubmitAnswer written: %v", err)
	}
	if answer.Score == nil || *answer.Score != 3 {
		t.Errorf("written score = %v, want 3", answer.Score)
	}
	if env.provider.Calls() != 1 {
		t.Errorf("provider called %d times, want 1", env.provider.Calls())
	}

	if marked := env.eventsOfType(events.TypeAnswerMarked); len(marked) != 2 {
		t.Errorf("published %d answer.marked events, want 2", len(marked))
	}
}

func TestSubmitAnswerExamModeDefersMarking(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Respond = respondBySystemPrompt(markingResponse, "", "")
	svc := env.attemptService()
	ctx := context.Background()

	attempt, err := svc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID, Mode: models.ModeExam}, testUser)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	answer, err := svc.SubmitAnswer(ctx, attempt.ID, &SubmitAnswerRequest{
		QuestionID: env.written.ID,
		AnswerText: strPtr("Ions become free to move."),
	}, testUser)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if answer.IsMarked() {
		t.Error("exam mode answer marked before submission")
	}
	if env.provider.Calls() != 0 {
		t.Errorf("provider called %d times before submission, want 0", env.provider.Calls())
	}

	submitted, err := svc.Submit(ctx, attempt.ID, testUser)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.TotalScore == nil || *submitted.TotalScore != 3 {
		t.Errorf("total score = %v, want 3", submitted.TotalScore)
	}
	if submitted.MaxScore == nil || *submitted.MaxScore != 5 {
		t.Errorf("max score = %v, want 5", submitted.MaxScore)
	}
	if subs := env.eventsOfType(events.TypeAttemptSubmitted); len(subs) != 1 {
		t.Errorf("published %d attempt.submitted events, want 1", len(subs))
	}

	_, err = svc.Submit(ctx, attempt.ID, testUser)
	if !errors.Is(err, ErrAttemptAlreadySubmitted) {
		t.Errorf("second submit err = %v, want ErrAttemptAlreadySubmitted", err)
	}
}

func TestSubmitSkipsUnmarkableAnswers(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Respond = func(_ int, messages []llm.Message, _ llm.Options) (string, error) {
		return "", fmt.Errorf("model overloaded")
	}
	svc := env.attemptService()
	ctx := context.Background()

	attempt, err := svc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID, Mode: models.ModeExam}, testUser)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, attempt.ID, &SubmitAnswerRequest{
		QuestionID:          env.mcq.ID,
		SelectedOptionIndex: intPtr(1),
	}, testUser); err != nil {
		t.Fatalf("SubmitAnswer mcq: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, attempt.ID, &SubmitAnswerRequest{
		QuestionID: env.written.ID,
		AnswerText: strPtr("Ions move."),
	}, testUser); err != nil {
		t.Fatalf("SubmitAnswer written: %v", err)
	}

	// The written answer cannot be marked; submission still succeeds with
	// the MCQ fast-path score only.
	submitted, err := svc.Submit(ctx, attempt.ID, testUser)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if submitted.TotalScore == nil || *submitted.TotalScore != 1 {
		t.Errorf("total score = %v, want 1", submitted.TotalScore)
	}
	if !submitted.IsSubmitted() {
		t.Error("attempt not submitted")
	}
}

func TestSubmitAbortsOnCredentialError(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Respond = func(_ int, _ []llm.Message, _ llm.Options) (string, error) {
		return "", llm.ClassifyError(fmt.Errorf("invalid x-api-key"))
	}
	svc := env.attemptService()
	ctx := context.Background()

	attempt, err := svc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID, Mode: models.ModeExam}, testUser)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.SubmitAnswer(ctx, attempt.ID, &SubmitAnswerRequest{
		QuestionID: env.written.ID,
		AnswerText: strPtr("Ions move."),
	}, testUser); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	_, err = svc.Submit(ctx, attempt.ID, testUser)
	if !llm.IsCredentialError(err) {
		t.Errorf("err = %v, want credential error", err)
	}
}

func TestSubmitAnswerOwnership(t *testing.T) {
	env := newTestEnv(t)
	svc := env.attemptService()
	ctx := context.Background()

	attempt, err := svc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID}, testUser)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = svc.SubmitAnswer(ctx, attempt.ID, &SubmitAnswerRequest{
		QuestionID:          env.mcq.ID,
		SelectedOptionIndex: intPtr(0),
	}, otherUser)
	if !IsPermissionError(err) {
		t.Errorf("err = %v, want permission error", err)
	}
}

func TestSubmitAnswerKeepsHintCount(t *testing.T) {
	env := newTestEnv(t)
	env.provider.Respond = respondBySystemPrompt(markingResponse, `{"hint": "Think about charge carriers."}`, "")
	attemptSvc := env.attemptService()
	markingSvc := env.markingService()
	ctx := context.Background()

	attempt, err := attemptSvc.Start(ctx, &StartAttemptRequest{FormatID: env.format.ID, Mode: models.ModeExam}, testUser)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := markingSvc.GetHint(ctx, attempt.ID, &HintRequest{QuestionID: env.written.ID}, testUser); err != nil {
		t.Fatalf("GetHint: %v", err)
	}

	answer, err := attemptSvc.SubmitAnswer(ctx, attempt.ID, &SubmitAnswerRequest{
		QuestionID: env.written.ID,
		AnswerText: strPtr("Ions move."),
	}, testUser)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if answer.HintsUsed != 1 {
		t.Errorf("hints used = %d after revising answer, want 1", answer.HintsUsed)
	}
}
