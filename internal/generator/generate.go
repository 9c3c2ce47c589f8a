package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
)

const (
	// generationConcurrency bounds how many completion calls a full
	// generation run keeps in flight at once.
	generationConcurrency = 8

	fullModeTemperature  = 0.9
	batchModeTemperature = 0.85

	// batch mode anti-duplication context: how many prior questions are
	// echoed back, and how much of each.
	maxContextQuestions = 6
	maxSnippetChars     = 120

	maxBatchCount = 20
)

// maxTokensForType scales the response budget to how much text the question
// type needs. Data analysis and long answer carry datasets and multi-line
// mark schemes; MCQ is compact.
func maxTokensForType(t models.QuestionType) int {
	switch t {
	case models.DataAnalysis, models.LongAnswer:
		return 1400
	case models.Calculation:
		return 1000
	case models.MCQ:
		return 700
	default:
		return 900
	}
}

// difficultyForMarks maps a mark value onto the 1-5 depth scale.
func difficultyForMarks(marks int) int {
	switch {
	case marks <= 1:
		return 1
	case marks >= 5:
		return 5
	default:
		return marks
	}
}

// GeneratedQuestion is one model-produced question, validated and bound to
// the section and topic it was generated for.
type GeneratedQuestion struct {
	SectionID          uint
	TopicID            *uint
	QuestionText       string
	Dataset            *string
	Options            []string
	CorrectOptionIndex *int
	MaxMarks           int
	MarkScheme         []models.MarkCriterion
	Depth              int
}

type generatedQuestionWire struct {
	QuestionText       string                 `json:"question_text"`
	Dataset            *string                `json:"dataset"`
	Options            []string               `json:"options"`
	CorrectOptionIndex *float64               `json:"correct_option_index"`
	MaxMarks           *float64               `json:"max_marks"`
	MarkScheme         []models.MarkCriterion `json:"mark_scheme"`
}

// GenerationPlan carries everything a generation run needs besides the
// sections themselves.
type GenerationPlan struct {
	CourseName string
	LevelName  string
	ExamName   string
	Topics     []models.TopicRef
}

type genTask struct {
	section    *models.ExamSection
	topic      models.TopicRef
	marks      int
	difficulty int
}

// QuestionGenerationEngine produces exam questions through the completion
// provider. Full runs parallelize across a bounded worker set; batch runs are
// sequential so each question can see what came before it.
type QuestionGenerationEngine struct {
	provider    llm.ChatCompletionProvider
	logger      *slog.Logger
	concurrency int
}

func NewQuestionGenerationEngine(provider llm.ChatCompletionProvider, logger *slog.Logger) *QuestionGenerationEngine {
	return &QuestionGenerationEngine{
		provider:    provider,
		logger:      logger,
		concurrency: generationConcurrency,
	}
}

// GenerateFull produces the complete question bank for a format: every
// section's NumQuestions, topics assigned round-robin across the whole run.
// Individual failures are logged and skipped; only a run in which every
// question failed is an error.
func (e *QuestionGenerationEngine) GenerateFull(ctx context.Context, sections []models.ExamSection, plan GenerationPlan) ([]GeneratedQuestion, error) {
	var tasks []genTask
	slot := 0
	for i := range sections {
		section := &sections[i]
		marks := section.DefaultMarks()
		for n := 0; n < section.NumQuestions; n++ {
			tasks = append(tasks, genTask{
				section:    section,
				topic:      topicAt(plan.Topics, slot),
				marks:      marks,
				difficulty: difficultyForMarks(marks),
			})
			slot++
		}
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("format has no questions to generate")
	}

	results := make([]*GeneratedQuestion, len(tasks))
	errs := make([]error, len(tasks))

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = e.generateOne(ctx, tasks[i], plan, nil, fullModeTemperature)
		}(i)
	}
	wg.Wait()

	questions := make([]GeneratedQuestion, 0, len(tasks))
	var firstErr error
	for i := range tasks {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			e.logger.Warn("question generation failed, skipping",
				"section", tasks[i].section.Name, "topic", tasks[i].topic.Name, "error", errs[i])
			continue
		}
		questions = append(questions, *results[i])
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("all %d question generations failed: %w", len(tasks), firstErr)
	}
	return questions, nil
}

// GenerateBatch produces count additional questions sequentially, cycling
// through the given sections and topics. Each call carries snippets of the
// questions generated so far in this run so the model does not repeat itself.
func (e *QuestionGenerationEngine) GenerateBatch(ctx context.Context, sections []models.ExamSection, plan GenerationPlan, count, difficulty int) ([]GeneratedQuestion, error) {
	if len(sections) == 0 {
		return nil, fmt.Errorf("no sections to generate into")
	}
	if count <= 0 {
		return nil, fmt.Errorf("batch count must be positive")
	}
	if count > maxBatchCount {
		count = maxBatchCount
	}

	questions := make([]GeneratedQuestion, 0, count)
	recent := make([]string, 0, maxContextQuestions)
	var firstErr error

	for i := 0; i < count; i++ {
		section := &sections[i%len(sections)]
		marks := section.DefaultMarks()
		task := genTask{
			section:    section,
			topic:      topicAt(plan.Topics, i),
			marks:      marks,
			difficulty: difficulty,
		}
		if task.difficulty <= 0 {
			task.difficulty = difficultyForMarks(marks)
		}

		q, err := e.generateOne(ctx, task, plan, recent, batchModeTemperature)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			e.logger.Warn("batch question generation failed, skipping",
				"section", section.Name, "position", i, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		questions = append(questions, *q)

		recent = append(recent, snippet(q.QuestionText))
		if len(recent) > maxContextQuestions {
			recent = recent[len(recent)-maxContextQuestions:]
		}
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("all %d batch generations failed: %w", count, firstErr)
	}
	return questions, nil
}

func (e *QuestionGenerationEngine) generateOne(ctx context.Context, task genTask, plan GenerationPlan, avoid []string, temperature float64) (*GeneratedQuestion, error) {
	prompt := BuildQuestionPrompt(QuestionPromptParams{
		CourseName:    plan.CourseName,
		LevelName:     plan.LevelName,
		ExamName:      plan.ExamName,
		SectionName:   task.section.Name,
		Instructions:  task.section.Instructions,
		QuestionType:  task.section.QuestionType,
		Topic:         task.topic,
		Marks:         task.marks,
		Difficulty:    task.difficulty,
		AvoidSnippets: avoid,
	})
	messages := []llm.Message{
		{Role: llm.RoleSystem, Text: questionSystemPrompt},
		{Role: llm.RoleUser, Text: prompt},
	}

	raw, err := e.provider.Complete(ctx, messages, llm.Options{
		Temperature: temperature,
		MaxTokens:   maxTokensForType(task.section.QuestionType),
	})
	if err != nil {
		return nil, err
	}

	var wire generatedQuestionWire
	if err := DecodeObject(raw, &wire); err != nil {
		return nil, err
	}
	return buildQuestion(&wire, task)
}

// buildQuestion validates the wire question against its section and fills in
// defaults. MCQ sections require exactly 4 options and an in-range answer.
func buildQuestion(wire *generatedQuestionWire, task genTask) (*GeneratedQuestion, error) {
	text := strings.TrimSpace(wire.QuestionText)
	if text == "" {
		return nil, fmt.Errorf("generated question has no question_text")
	}

	marks := task.marks
	if wire.MaxMarks != nil && *wire.MaxMarks > 0 {
		marks = int(*wire.MaxMarks)
	}
	scheme := wire.MarkScheme
	if scheme == nil {
		scheme = []models.MarkCriterion{}
	}

	q := &GeneratedQuestion{
		SectionID:    task.section.ID,
		QuestionText: text,
		Dataset:      trimmedOrNil(wire.Dataset),
		MaxMarks:     marks,
		MarkScheme:   scheme,
		Depth:        task.difficulty,
	}
	if task.topic.ID != 0 {
		topicID := task.topic.ID
		q.TopicID = &topicID
	}

	if task.section.QuestionType == models.MCQ {
		if len(wire.Options) != 4 {
			return nil, fmt.Errorf("mcq question has %d options, want 4", len(wire.Options))
		}
		if wire.CorrectOptionIndex == nil {
			return nil, fmt.Errorf("mcq question has no correct_option_index")
		}
		idx := int(*wire.CorrectOptionIndex)
		if idx < 0 || idx > 3 {
			return nil, fmt.Errorf("mcq correct_option_index %d out of range", idx)
		}
		q.Options = wire.Options
		q.CorrectOptionIndex = &idx
	}

	return q, nil
}

func topicAt(topics []models.TopicRef, slot int) models.TopicRef {
	if len(topics) == 0 {
		return models.TopicRef{}
	}
	return topics[slot%len(topics)]
}

// snippet truncates a question opening for the anti-duplication context.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxSnippetChars {
		return text
	}
	return text[:maxSnippetChars]
}
