package generator

import (
	"fmt"
	"strings"

	"github.com/studyowl/exam-service/internal/models"
)

// Prompt builders are pure functions of their inputs so they can be tested
// without a provider. Engines assemble the returned strings into messages.

const questionSystemPrompt = `You are an experienced exam author writing practice questions for students. ` +
	`You write questions that match the style, difficulty and mark allocation of real past papers. ` +
	`Use LaTeX notation for mathematical expressions where appropriate. ` +
	`Respond with a single JSON object and nothing else.`

const formatSystemPrompt = `You are an expert on school and university examination structures. ` +
	`Given the name of an exam, describe its typical paper structure. ` +
	`Respond with a single JSON object and nothing else.`

const extractionSystemPrompt = `You are a precise document analyst. You are given the content of a past exam paper ` +
	`and must extract its structure and questions faithfully, without inventing content. ` +
	`Respond with a single JSON object and nothing else.`

const markingSystemPrompt = `You are a fair and encouraging examiner marking a student's answer against a mark scheme. ` +
	`Award partial credit where the scheme allows it. Never award more than the maximum marks. ` +
	`Respond with a single JSON object and nothing else.`

const hintSystemPrompt = `You are a Socratic tutor. You guide students toward the answer with questions and nudges. ` +
	`You never reveal the answer itself. Respond with a single JSON object and nothing else.`

const fullAnswerSystemPrompt = `You are an experienced teacher writing a model answer for a practice question. ` +
	`Show full working and explain each step. Respond in plain text, not JSON.`

var questionTypeGuidance = map[models.QuestionType]string{
	models.MCQ:          "Write a multiple choice question with exactly 4 options and exactly one correct option. Distractors must reflect plausible misconceptions.",
	models.ShortAnswer:  "Write a short answer question expecting a response of one to three sentences or a short derivation.",
	models.LongAnswer:   "Write an extended response question expecting a structured multi-paragraph answer.",
	models.DataAnalysis: "Write a data analysis question. Include a dataset (table, readings or description of a figure) in the dataset field and ask the student to interpret it.",
	models.Calculation:  "Write a calculation question with a single numeric final answer. State all given values and required units.",
}

// QuestionPromptParams parameterizes a single question generation request.
type QuestionPromptParams struct {
	CourseName   string
	LevelName    string
	ExamName     string
	SectionName  string
	Instructions *string
	QuestionType models.QuestionType
	Topic        models.TopicRef
	Marks        int
	Difficulty   int // 1-5
	// AvoidSnippets are openings of questions already generated in this run;
	// the new question must not duplicate them.
	AvoidSnippets []string
}

// BuildQuestionPrompt renders the user prompt for generating one question.
func BuildQuestionPrompt(p QuestionPromptParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write one exam question for the course %q", p.CourseName)
	if p.LevelName != "" {
		fmt.Fprintf(&b, " (%s)", p.LevelName)
	}
	if p.ExamName != "" {
		fmt.Fprintf(&b, ", in the style of %q", p.ExamName)
	}
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, "Section: %s\n", p.SectionName)
	if p.Instructions != nil && *p.Instructions != "" {
		fmt.Fprintf(&b, "Section instructions: %s\n", *p.Instructions)
	}
	if p.Topic.Name != "" {
		if p.Topic.SubjectName != "" {
			fmt.Fprintf(&b, "Topic: %s (%s)\n", p.Topic.Name, p.Topic.SubjectName)
		} else {
			fmt.Fprintf(&b, "Topic: %s\n", p.Topic.Name)
		}
	}
	fmt.Fprintf(&b, "Marks: %d\n", p.Marks)
	fmt.Fprintf(&b, "Difficulty: %d of 5\n\n", p.Difficulty)

	if guidance, ok := questionTypeGuidance[p.QuestionType]; ok {
		b.WriteString(guidance)
		b.WriteString("\n\n")
	}

	if len(p.AvoidSnippets) > 0 {
		b.WriteString("Do NOT repeat or closely paraphrase any of these already generated questions:\n")
		for _, s := range p.AvoidSnippets {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	b.WriteString("Return a JSON object with these fields:\n")
	b.WriteString(`{
  "question_text": "the full question text",
  "dataset": "supporting data if the question needs it, otherwise omit",
  "options": ["only for multiple choice: exactly 4 option strings"],
  "correct_option_index": 0,
  "max_marks": ` + fmt.Sprint(p.Marks) + `,
  "mark_scheme": [{"label": "M1", "description": "what earns this mark", "marks": 1}]
}`)
	b.WriteString("\nThe mark_scheme marks must sum to max_marks. Escape backslashes in LaTeX as \\\\.")

	return b.String()
}

// BuildFormatInferencePrompt renders the user prompt for inferring an exam's
// paper structure from its name alone.
func BuildFormatInferencePrompt(examName, courseName, levelName string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Describe the typical structure of the exam %q", examName)
	if courseName != "" {
		fmt.Fprintf(&b, " for the course %q", courseName)
	}
	if levelName != "" {
		fmt.Fprintf(&b, " at %s level", levelName)
	}
	b.WriteString(".\n\n")

	b.WriteString("Allowed question types: mcq, short_answer, long_answer, data_analysis, calculation.\n\n")
	b.WriteString("Return a JSON object with these fields:\n")
	b.WriteString(`{
  "name": "exam name",
  "description": "one paragraph describing the paper",
  "total_marks": 100,
  "time_minutes": 120,
  "instructions": "candidate instructions, if the exam has standard ones",
  "sections": [
    {"name": "Section A", "question_type": "mcq", "num_questions": 20, "marks_per_question": 1, "instructions": "optional"}
  ]
}`)

	return b.String()
}

// maxExtractionQuestions bounds how many questions a single extraction call
// may return; papers longer than this report questions_truncated.
const maxExtractionQuestions = 50

// BuildPaperExtractionPrompt renders the user prompt for extracting structure
// and questions from a past paper. The paper content itself (text or images)
// travels as separate message parts.
func BuildPaperExtractionPrompt() string {
	var b strings.Builder

	b.WriteString("The attached content is a past exam paper. Extract its structure and its questions.\n\n")
	b.WriteString("Allowed question types: mcq, short_answer, long_answer, data_analysis, calculation.\n")
	b.WriteString("Copy question text verbatim, including LaTeX. Do not invent questions that are not in the paper.\n")
	fmt.Fprintf(&b, "Extract at most %d questions; if the paper has more, set questions_truncated to true.\n\n", maxExtractionQuestions)

	b.WriteString("Return a JSON object with these fields:\n")
	b.WriteString(`{
  "name": "paper title",
  "total_marks": 100,
  "time_minutes": 120,
  "instructions": "candidate instructions if printed on the paper",
  "sections": [
    {"name": "Section A", "question_type": "mcq", "num_questions": 20, "marks_per_question": 1}
  ],
  "questions": [
    {
      "section_index": 0,
      "question_text": "verbatim question text",
      "dataset": "any table or data the question refers to",
      "options": ["for mcq only"],
      "correct_option_index": 0,
      "max_marks": 2,
      "mark_scheme": [{"label": "M1", "description": "expected point", "marks": 1}]
    }
  ],
  "questions_truncated": false
}`)
	b.WriteString("\nEscape backslashes in LaTeX as \\\\.")

	return b.String()
}

// BuildMarkingPrompt renders the user prompt for marking a student answer.
// rubricOverride, when non-empty, replaces the question's stored mark scheme.
func BuildMarkingPrompt(q *models.ExamQuestion, studentAnswer, rubricOverride string) string {
	var b strings.Builder

	b.WriteString("Mark the student's answer to this question.\n\n")
	fmt.Fprintf(&b, "Question (%d marks):\n%s\n\n", q.MaxMarks, q.QuestionText)
	if q.Dataset != nil && *q.Dataset != "" {
		fmt.Fprintf(&b, "Data provided with the question:\n%s\n\n", *q.Dataset)
	}
	if options := q.OptionList(); len(options) > 0 {
		b.WriteString("Options:\n")
		for i, opt := range options {
			fmt.Fprintf(&b, "%d. %s\n", i, opt)
		}
		b.WriteString("\n")
	}

	if rubricOverride != "" {
		fmt.Fprintf(&b, "Mark scheme:\n%s\n\n", rubricOverride)
	} else if criteria := q.Criteria(); len(criteria) > 0 {
		b.WriteString("Mark scheme:\n")
		for _, c := range criteria {
			if c.Description != nil && *c.Description != "" {
				fmt.Fprintf(&b, "- %s (%d marks): %s\n", c.Label, c.Marks, *c.Description)
			} else {
				fmt.Fprintf(&b, "- %s (%d marks)\n", c.Label, c.Marks)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Student's answer:\n%s\n\n", studentAnswer)

	b.WriteString("Return a JSON object with these fields:\n")
	fmt.Fprintf(&b, `{"score": 0, "maxMarks": %d, "feedback": "specific feedback referencing the student's work"}`, q.MaxMarks)
	fmt.Fprintf(&b, "\nscore may use half marks and must be between 0 and %d.", q.MaxMarks)

	return b.String()
}

// BuildHintPrompt renders the user prompt for a Socratic hint. tier is 1 for
// the first hint (gentle orientation) and 2 for the second (more direction,
// still no answer).
func BuildHintPrompt(q *models.ExamQuestion, currentAnswer *string, tier int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "A student is stuck on this question (%d marks):\n%s\n\n", q.MaxMarks, q.QuestionText)
	if q.Dataset != nil && *q.Dataset != "" {
		fmt.Fprintf(&b, "Data provided with the question:\n%s\n\n", *q.Dataset)
	}
	if currentAnswer != nil && *currentAnswer != "" {
		fmt.Fprintf(&b, "What they have written so far:\n%s\n\n", *currentAnswer)
	}

	if tier <= 1 {
		b.WriteString("Give a first, gentle hint: point them at the relevant concept or the first step, as a question where possible.\n")
	} else {
		b.WriteString("They have already had one hint. Give a second, more direct hint that narrows the method down, but still do not state the answer.\n")
	}

	b.WriteString("Return a JSON object: {\"hint\": \"your hint\"}")

	return b.String()
}

// BuildFullAnswerPrompt renders the user prompt for a full worked answer.
func BuildFullAnswerPrompt(q *models.ExamQuestion) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a full model answer for this question (%d marks):\n%s\n\n", q.MaxMarks, q.QuestionText)
	if q.Dataset != nil && *q.Dataset != "" {
		fmt.Fprintf(&b, "Data provided with the question:\n%s\n\n", *q.Dataset)
	}
	if options := q.OptionList(); len(options) > 0 {
		b.WriteString("Options:\n")
		for i, opt := range options {
			fmt.Fprintf(&b, "%d. %s\n", i, opt)
		}
		if q.CorrectOptionIndex != nil {
			fmt.Fprintf(&b, "The correct option is %d; explain why it is correct and why the others are not.\n", *q.CorrectOptionIndex)
		}
		b.WriteString("\n")
	}
	if criteria := q.Criteria(); len(criteria) > 0 {
		b.WriteString("The answer should cover every mark scheme point:\n")
		for _, c := range criteria {
			if c.Description != nil && *c.Description != "" {
				fmt.Fprintf(&b, "- %s: %s\n", c.Label, *c.Description)
			} else {
				fmt.Fprintf(&b, "- %s\n", c.Label)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Show full working. Respond in plain text.")

	return b.String()
}
