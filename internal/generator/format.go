package generator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
)

// SectionSpec is a sanitized section as produced by inference or extraction,
// before it becomes a persisted ExamSection.
type SectionSpec struct {
	Name             string              `json:"name"`
	QuestionType     models.QuestionType `json:"question_type"`
	NumQuestions     int                 `json:"num_questions"`
	MarksPerQuestion *int                `json:"marks_per_question,omitempty"`
	Instructions     *string             `json:"instructions,omitempty"`
}

// FormatSpec is a sanitized exam format proposal. It is always structurally
// valid: non-empty name, at least one section, every section with a known
// question type and positive counts.
type FormatSpec struct {
	Name         string        `json:"name"`
	Description  *string       `json:"description,omitempty"`
	TotalMarks   *int          `json:"total_marks,omitempty"`
	TimeMinutes  *int          `json:"time_minutes,omitempty"`
	Instructions *string       `json:"instructions,omitempty"`
	Sections     []SectionSpec `json:"sections"`
}

// wire shapes are deliberately loose: the model decides the field types.
type inferredSection struct {
	Name             string   `json:"name"`
	QuestionType     string   `json:"question_type"`
	NumQuestions     *float64 `json:"num_questions"`
	MarksPerQuestion *float64 `json:"marks_per_question"`
	Instructions     *string  `json:"instructions"`
}

type inferredFormat struct {
	Name         string            `json:"name"`
	Description  *string           `json:"description"`
	TotalMarks   *float64          `json:"total_marks"`
	TimeMinutes  *float64          `json:"time_minutes"`
	Instructions *string           `json:"instructions"`
	Sections     []inferredSection `json:"sections"`
}

// typeAliases maps the question type spellings models actually produce onto
// the closed QuestionType set. Unknown spellings fall back to short_answer.
var typeAliases = map[string]models.QuestionType{
	"mcq":               models.MCQ,
	"multiple_choice":   models.MCQ,
	"multiple-choice":   models.MCQ,
	"multiplechoice":    models.MCQ,
	"choice":            models.MCQ,
	"objective":         models.MCQ,
	"short_answer":      models.ShortAnswer,
	"short":             models.ShortAnswer,
	"structured":        models.ShortAnswer,
	"fill_blank":        models.ShortAnswer,
	"definition":        models.ShortAnswer,
	"long_answer":       models.LongAnswer,
	"essay":             models.LongAnswer,
	"extended":          models.LongAnswer,
	"extended_response": models.LongAnswer,
	"discussion":        models.LongAnswer,
	"data_analysis":     models.DataAnalysis,
	"data":              models.DataAnalysis,
	"practical":         models.DataAnalysis,
	"graph":             models.DataAnalysis,
	"source_analysis":   models.DataAnalysis,
	"calculation":       models.Calculation,
	"numerical":         models.Calculation,
	"numeric":           models.Calculation,
	"quantitative":      models.Calculation,
	"problem":           models.Calculation,
}

// NormalizeQuestionType maps a model-produced type label onto the closed set.
func NormalizeQuestionType(raw string) models.QuestionType {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if t, ok := typeAliases[key]; ok {
		return t
	}
	return models.ShortAnswer
}

// FormatInferenceEngine proposes an exam format from an exam name alone.
// Its output is advisory; the caller presents it for review before saving.
type FormatInferenceEngine struct {
	provider llm.ChatCompletionProvider
	logger   *slog.Logger
}

func NewFormatInferenceEngine(provider llm.ChatCompletionProvider, logger *slog.Logger) *FormatInferenceEngine {
	return &FormatInferenceEngine{provider: provider, logger: logger}
}

// Infer asks the model for the typical structure of the named exam and
// sanitizes the result. Provider errors are returned as-is (classified);
// parse failures are not errors here because SanitizeFormat always yields a
// usable fallback format.
func (e *FormatInferenceEngine) Infer(ctx context.Context, examName, courseName, levelName string) (*FormatSpec, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: formatSystemPrompt},
		{Role: llm.RoleUser, Text: BuildFormatInferencePrompt(examName, courseName, levelName)},
	}

	raw, err := e.provider.Complete(ctx, messages, llm.Options{Temperature: 0.3, MaxTokens: 1200})
	if err != nil {
		return nil, err
	}

	var inferred inferredFormat
	if err := DecodeObject(raw, &inferred); err != nil {
		e.logger.Warn("format inference response unparseable, using fallback", "exam_name", examName, "error", err)
		inferred = inferredFormat{}
	}

	return sanitizeFormat(&inferred, examName), nil
}

// sanitizeFormat is total: whatever shape the model produced, the result is a
// structurally valid format. Sections with no name or a non-positive question
// count are dropped; if none survive, DefaultSections applies.
func sanitizeFormat(in *inferredFormat, examName string) *FormatSpec {
	spec := &FormatSpec{
		Name:         strings.TrimSpace(in.Name),
		Description:  trimmedOrNil(in.Description),
		Instructions: trimmedOrNil(in.Instructions),
		TotalMarks:   positiveInt(in.TotalMarks),
		TimeMinutes:  positiveInt(in.TimeMinutes),
	}
	if spec.Name == "" {
		spec.Name = strings.TrimSpace(examName)
	}
	if spec.Name == "" {
		spec.Name = "Practice Exam"
	}

	for _, s := range in.Sections {
		name := strings.TrimSpace(s.Name)
		count := 0
		if s.NumQuestions != nil {
			count = int(*s.NumQuestions)
		}
		if name == "" || count <= 0 {
			continue
		}
		if count > 100 {
			count = 100
		}
		spec.Sections = append(spec.Sections, SectionSpec{
			Name:             name,
			QuestionType:     NormalizeQuestionType(s.QuestionType),
			NumQuestions:     count,
			MarksPerQuestion: positiveInt(s.MarksPerQuestion),
			Instructions:     trimmedOrNil(s.Instructions),
		})
	}

	if len(spec.Sections) == 0 {
		spec.Sections = DefaultSections()
	}
	return spec
}

// DefaultSections is the fallback structure used when inference yields
// nothing usable: 20 single-mark multiple choice plus 5 four-mark short
// answer questions.
func DefaultSections() []SectionSpec {
	one, four := 1, 4
	return []SectionSpec{
		{Name: "Section A: Multiple Choice", QuestionType: models.MCQ, NumQuestions: 20, MarksPerQuestion: &one},
		{Name: "Section B: Short Answer", QuestionType: models.ShortAnswer, NumQuestions: 5, MarksPerQuestion: &four},
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func positiveInt(f *float64) *int {
	if f == nil || *f <= 0 {
		return nil
	}
	v := int(*f)
	if v <= 0 {
		return nil
	}
	return &v
}
