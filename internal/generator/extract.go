package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
)

// PdfTextExtractor turns an uploaded PDF into plain text, one marker per page
// boundary. Implementations live at the edge of the service; engines only
// consume the text.
type PdfTextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// PageBreakMarker separates pages in extracted PDF text.
const PageBreakMarker = "\n--- PAGE BREAK ---\n"

// maxPaperTextChars caps how much extracted paper text is sent to the model.
const maxPaperTextChars = 20000

// PaperSource is the content of an uploaded past paper: extracted text,
// page images, or both.
type PaperSource struct {
	Text   string
	Images []llm.Image
}

// ExtractedQuestion is one question lifted from a past paper, already
// normalized to valid defaults.
type ExtractedQuestion struct {
	SectionIndex       int                    `json:"section_index"`
	QuestionText       string                 `json:"question_text"`
	Dataset            *string                `json:"dataset,omitempty"`
	Options            []string               `json:"options,omitempty"`
	CorrectOptionIndex *int                   `json:"correct_option_index,omitempty"`
	MaxMarks           int                    `json:"max_marks"`
	MarkScheme         []models.MarkCriterion `json:"mark_scheme"`
}

// PaperExtractionResult is the sanitized outcome of analyzing a past paper.
type PaperExtractionResult struct {
	Format             *FormatSpec         `json:"format"`
	Questions          []ExtractedQuestion `json:"questions"`
	QuestionsTruncated bool                `json:"questions_truncated"`
}

type extractedQuestionWire struct {
	SectionIndex       *float64               `json:"section_index"`
	QuestionText       string                 `json:"question_text"`
	Dataset            *string                `json:"dataset"`
	Options            []string               `json:"options"`
	CorrectOptionIndex *float64               `json:"correct_option_index"`
	MaxMarks           *float64               `json:"max_marks"`
	MarkScheme         []models.MarkCriterion `json:"mark_scheme"`
}

type extractedPaperWire struct {
	inferredFormat
	Questions          []extractedQuestionWire `json:"questions"`
	QuestionsTruncated bool                    `json:"questions_truncated"`
}

// PaperExtractionEngine analyzes an uploaded past paper and recovers its
// format and questions. Past papers feed the format; their questions are
// reported for review, not stored, since stored content must be generated.
type PaperExtractionEngine struct {
	provider llm.ChatCompletionProvider
	logger   *slog.Logger
}

func NewPaperExtractionEngine(provider llm.ChatCompletionProvider, logger *slog.Logger) *PaperExtractionEngine {
	return &PaperExtractionEngine{provider: provider, logger: logger}
}

// Extract sends the paper content to the model and sanitizes the response.
// Unlike inference, an unparseable response is an error: there is no sensible
// fallback for a paper the model could not read.
func (e *PaperExtractionEngine) Extract(ctx context.Context, source PaperSource) (*PaperExtractionResult, error) {
	if source.Text == "" && len(source.Images) == 0 {
		return nil, fmt.Errorf("paper source has no content")
	}

	text := source.Text
	if len(text) > maxPaperTextChars {
		text = text[:maxPaperTextChars]
		e.logger.Warn("paper text truncated before extraction", "chars", maxPaperTextChars)
	}

	user := llm.Message{Role: llm.RoleUser, Text: BuildPaperExtractionPrompt(), Images: source.Images}
	if text != "" {
		user.Text += "\n\nPaper content:\n" + text
	}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: extractionSystemPrompt},
		user,
	}

	raw, err := e.provider.Complete(ctx, messages, llm.Options{Temperature: 0.2, MaxTokens: 8000})
	if err != nil {
		return nil, err
	}

	var paper extractedPaperWire
	if err := DecodeObject(raw, &paper); err != nil {
		return nil, fmt.Errorf("paper extraction: %w", err)
	}

	format := sanitizeFormat(&paper.inferredFormat, "")
	result := &PaperExtractionResult{
		Format:             format,
		QuestionsTruncated: paper.QuestionsTruncated,
	}

	for _, q := range paper.Questions {
		questionText := strings.TrimSpace(q.QuestionText)
		if questionText == "" {
			continue
		}
		sectionIndex := 0
		if q.SectionIndex != nil && *q.SectionIndex >= 0 && int(*q.SectionIndex) < len(format.Sections) {
			sectionIndex = int(*q.SectionIndex)
		}
		marks := 1
		if q.MaxMarks != nil && *q.MaxMarks > 0 {
			marks = int(*q.MaxMarks)
		}
		scheme := q.MarkScheme
		if scheme == nil {
			scheme = []models.MarkCriterion{}
		}
		extracted := ExtractedQuestion{
			SectionIndex: sectionIndex,
			QuestionText: questionText,
			Dataset:      trimmedOrNil(q.Dataset),
			MaxMarks:     marks,
			MarkScheme:   scheme,
		}
		if len(q.Options) == 4 && q.CorrectOptionIndex != nil {
			if idx := int(*q.CorrectOptionIndex); idx >= 0 && idx < 4 {
				extracted.Options = q.Options
				extracted.CorrectOptionIndex = &idx
			}
		}
		result.Questions = append(result.Questions, extracted)
		if len(result.Questions) >= maxExtractionQuestions {
			result.QuestionsTruncated = result.QuestionsTruncated || len(paper.Questions) > maxExtractionQuestions
			break
		}
	}

	return result, nil
}
