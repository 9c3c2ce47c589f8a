package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/studyowl/exam-service/internal/models"
)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	validate := validator.New()

	bv := &BusinessValidator{validate: validate}
	bv.registerBusinessRules()

	return bv
}

// Validate validates business rules for any struct
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	err := bv.validate.Struct(s)
	if err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateFormatCreate validates format creation business rules
func (bv *BusinessValidator) ValidateFormatCreate(req *FormatCreateRequest) ValidationErrors {
	var errors ValidationErrors

	// Basic struct validation
	errors = append(errors, bv.Validate(req)...)

	// Section-level business validations
	errors = append(errors, bv.validateSectionRules(req.Sections, req.TotalMarks)...)

	return errors
}

// ValidateFormatUpdate validates format update business rules
func (bv *BusinessValidator) ValidateFormatUpdate(req *FormatUpdateRequest) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	if req.Sections != nil {
		errors = append(errors, bv.validateSectionRules(req.Sections, req.TotalMarks)...)
	}

	return errors
}

// ValidateAttemptAnswer validates that the answer matches the question shape:
// MCQ questions take an option index, written questions take text.
func (bv *BusinessValidator) ValidateAttemptAnswer(req *AnswerSubmitRequest, question *models.ExamQuestion) ValidationErrors {
	var errors ValidationErrors

	errors = append(errors, bv.Validate(req)...)

	if question.IsMCQ() {
		if req.SelectedOptionIndex == nil && (req.AnswerText == nil || strings.TrimSpace(*req.AnswerText) == "") {
			errors = append(errors, ValidationError{
				Field:   "selected_option_index",
				Message: "is required for multiple choice questions",
				Rule:    "business_logic",
			})
		}
	} else if req.SelectedOptionIndex != nil {
		errors = append(errors, ValidationError{
			Field:   "selected_option_index",
			Message: "is only valid for multiple choice questions",
			Value:   *req.SelectedOptionIndex,
			Rule:    "business_logic",
		})
	}

	return errors
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	// Format name validation (1-200 characters)
	bv.validate.RegisterValidation("format_name", func(fl validator.FieldLevel) bool {
		name := strings.TrimSpace(fl.Field().String())
		return len(name) >= 1 && len(name) <= 200
	})

	// Question type must be one of the closed set
	bv.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return models.IsValidQuestionType(models.QuestionType(fl.Field().String()))
	})

	// Questions per section (1-100)
	bv.validate.RegisterValidation("question_count", func(fl validator.FieldLevel) bool {
		count := fl.Field().Int()
		return count >= 1 && count <= 100
	})

	// Marks per question (1-100)
	bv.validate.RegisterValidation("marks_range", func(fl validator.FieldLevel) bool {
		marks := fl.Field().Int()
		return marks >= 1 && marks <= 100
	})

	// Difficulty scale (1-5)
	bv.validate.RegisterValidation("difficulty_level", func(fl validator.FieldLevel) bool {
		level := fl.Field().Int()
		return level >= 1 && level <= 5
	})

	// Batch generation size (1-20)
	bv.validate.RegisterValidation("batch_count", func(fl validator.FieldLevel) bool {
		count := fl.Field().Int()
		return count >= 1 && count <= 20
	})

	// Attempt mode
	bv.validate.RegisterValidation("attempt_mode", func(fl validator.FieldLevel) bool {
		mode := models.AttemptMode(fl.Field().String())
		return mode == models.ModePractice || mode == models.ModeExam
	})
}

// validateSectionRules checks cross-field section rules that tags cannot
// express
func (bv *BusinessValidator) validateSectionRules(sections []SectionRequest, totalMarks *int) ValidationErrors {
	var errors ValidationErrors

	names := make(map[string]bool, len(sections))
	sectionMarks := 0
	for i, s := range sections {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if names[key] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("sections[%d].name", i),
				Message: "duplicate section name",
				Value:   s.Name,
				Rule:    "business_logic",
			})
		}
		names[key] = true

		if s.MarksPerQuestion != nil {
			sectionMarks += s.NumQuestions * *s.MarksPerQuestion
		}
	}

	// Declared total must not be lower than what the sections add up to.
	if totalMarks != nil && sectionMarks > *totalMarks {
		errors = append(errors, ValidationError{
			Field:   "total_marks",
			Message: fmt.Sprintf("is %d but sections add up to %d", *totalMarks, sectionMarks),
			Value:   *totalMarks,
			Rule:    "business_logic",
		})
	}

	return errors
}
