package generator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
)

// MaxHints caps Socratic hints per question attempt.
const MaxHints = 2

// ErrHintLimit is returned when a student has used both hints already.
var ErrHintLimit = fmt.Errorf("hint limit of %d reached", MaxHints)

// Attachment is a file uploaded as part of an answer: a photo of working or
// a scanned document.
type Attachment struct {
	FileName string
	MimeType string
	Data     []byte
}

// AnswerInput is the student's submission for one question.
type AnswerInput struct {
	Text                *string
	SelectedOptionIndex *int
	Attachments         []Attachment
}

// MarkingResult is the outcome of marking one answer.
type MarkingResult struct {
	Score    float64 `json:"score"`
	MaxMarks int     `json:"maxMarks"`
	Feedback string  `json:"feedback"`
}

type markingWire struct {
	Score    *float64 `json:"score"`
	Feedback string   `json:"feedback"`
}

type hintWire struct {
	Hint string `json:"hint"`
}

// MarkingEngine marks answers, issues hints and writes model answers. MCQ
// answers with a selected option are scored by index comparison and never
// reach the model.
type MarkingEngine struct {
	provider llm.ChatCompletionProvider
	pdf      PdfTextExtractor
	logger   *slog.Logger
}

func NewMarkingEngine(provider llm.ChatCompletionProvider, pdf PdfTextExtractor, logger *slog.Logger) *MarkingEngine {
	return &MarkingEngine{provider: provider, pdf: pdf, logger: logger}
}

// Mark scores an answer against the question's mark scheme. rubricOverride,
// when non-empty, replaces the stored scheme for this call only. The returned
// score is always within [0, MaxMarks].
func (e *MarkingEngine) Mark(ctx context.Context, q *models.ExamQuestion, answer AnswerInput, rubricOverride string) (*MarkingResult, error) {
	if q.IsMCQ() && answer.SelectedOptionIndex != nil {
		return markMCQ(q, *answer.SelectedOptionIndex), nil
	}

	text, images, err := e.renderAnswer(ctx, answer)
	if err != nil {
		return nil, err
	}
	if text == "" && len(images) == 0 {
		return &MarkingResult{Score: 0, MaxMarks: q.MaxMarks, Feedback: "No answer was submitted for this question."}, nil
	}
	if text == "" {
		text = "(see attached images)"
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: markingSystemPrompt},
		{Role: llm.RoleUser, Text: BuildMarkingPrompt(q, text, rubricOverride), Images: images},
	}
	raw, err := e.provider.Complete(ctx, messages, llm.Options{Temperature: 0.25, MaxTokens: 800})
	if err != nil {
		return nil, err
	}

	var wire markingWire
	if err := DecodeObject(raw, &wire); err != nil {
		return nil, err
	}
	if wire.Score == nil {
		return nil, &ParseFailure{Raw: raw, Err: fmt.Errorf("marking response missing score")}
	}

	score := *wire.Score
	if score < 0 {
		score = 0
	}
	if score > float64(q.MaxMarks) {
		e.logger.Warn("marking score exceeded max marks, clamping",
			"question_id", q.ID, "score", score, "max_marks", q.MaxMarks)
		score = float64(q.MaxMarks)
	}
	feedback := strings.TrimSpace(wire.Feedback)
	if feedback == "" {
		feedback = "Marked."
	}

	return &MarkingResult{Score: score, MaxMarks: q.MaxMarks, Feedback: feedback}, nil
}

// markMCQ scores a multiple choice answer by index comparison. Full marks or
// zero; no partial credit and no model call.
func markMCQ(q *models.ExamQuestion, selected int) *MarkingResult {
	if q.CorrectOptionIndex != nil && selected == *q.CorrectOptionIndex {
		return &MarkingResult{
			Score:    float64(q.MaxMarks),
			MaxMarks: q.MaxMarks,
			Feedback: "Correct.",
		}
	}
	feedback := "Incorrect."
	if options := q.OptionList(); q.CorrectOptionIndex != nil && *q.CorrectOptionIndex < len(options) {
		feedback = fmt.Sprintf("Incorrect. The correct answer was: %s", options[*q.CorrectOptionIndex])
	}
	return &MarkingResult{Score: 0, MaxMarks: q.MaxMarks, Feedback: feedback}
}

// Hint returns the next Socratic hint. hintsUsed is how many the student has
// already received for this question; the second hint is the last.
func (e *MarkingEngine) Hint(ctx context.Context, q *models.ExamQuestion, currentAnswer *string, hintsUsed int) (string, error) {
	if hintsUsed >= MaxHints {
		return "", ErrHintLimit
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: hintSystemPrompt},
		{Role: llm.RoleUser, Text: BuildHintPrompt(q, currentAnswer, hintsUsed+1)},
	}
	raw, err := e.provider.Complete(ctx, messages, llm.Options{Temperature: 0.5, MaxTokens: 400})
	if err != nil {
		return "", err
	}

	var wire hintWire
	if err := DecodeObject(raw, &wire); err != nil {
		return "", err
	}
	hint := strings.TrimSpace(wire.Hint)
	if hint == "" {
		return "", &ParseFailure{Raw: raw, Err: fmt.Errorf("hint response missing hint")}
	}
	return hint, nil
}

// FullAnswer returns a full worked model answer as plain text.
func (e *MarkingEngine) FullAnswer(ctx context.Context, q *models.ExamQuestion) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: fullAnswerSystemPrompt},
		{Role: llm.RoleUser, Text: BuildFullAnswerPrompt(q)},
	}
	raw, err := e.provider.Complete(ctx, messages, llm.Options{Temperature: 0.3, MaxTokens: 1200})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return "", fmt.Errorf("empty model answer")
	}
	return answer, nil
}

// renderAnswer flattens the answer into prompt text plus inline images.
// Image attachments travel as multimodal parts; PDF attachments are reduced
// to text through the extractor.
func (e *MarkingEngine) renderAnswer(ctx context.Context, answer AnswerInput) (string, []llm.Image, error) {
	var parts []string
	if answer.Text != nil && strings.TrimSpace(*answer.Text) != "" {
		parts = append(parts, strings.TrimSpace(*answer.Text))
	}

	var images []llm.Image
	for _, att := range answer.Attachments {
		switch {
		case strings.HasPrefix(att.MimeType, "image/"):
			images = append(images, llm.Image{
				MimeType: att.MimeType,
				Data:     base64.StdEncoding.EncodeToString(att.Data),
			})
		case att.MimeType == "application/pdf":
			if e.pdf == nil {
				return "", nil, fmt.Errorf("pdf attachment %q: no pdf extractor configured", att.FileName)
			}
			text, err := e.pdf.ExtractText(ctx, att.Data)
			if err != nil {
				return "", nil, fmt.Errorf("pdf attachment %q: %w", att.FileName, err)
			}
			if len(text) > maxPaperTextChars {
				text = text[:maxPaperTextChars]
			}
			parts = append(parts, "[Uploaded document content:]\n"+text)
		default:
			return "", nil, fmt.Errorf("unsupported attachment type %q", att.MimeType)
		}
	}

	return strings.Join(parts, "\n\n"), images, nil
}
