package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
)

type exportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ExportService {
	return &exportService{repo: repo, db: db, logger: logger}
}

var exportHeaders = []string{
	"ID", "Section", "Type", "Question", "Dataset",
	"Option A", "Option B", "Option C", "Option D", "Correct Option",
	"Max Marks", "Difficulty", "Mark Scheme",
}

// ExportQuestions renders the format's question bank as an xlsx workbook.
// Only the format's creator may export, since the workbook includes correct
// answers and mark schemes.
func (s *exportService) ExportQuestions(ctx context.Context, formatID uint, userID string) ([]byte, string, error) {
	s.logger.Info("Exporting question bank", "format_id", formatID, "user_id", userID)

	format, err := s.repo.Format().GetByIDWithSections(ctx, s.db, formatID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrFormatNotFound
		}
		return nil, "", fmt.Errorf("failed to get format: %w", err)
	}
	if format.CreatedBy != userID {
		return nil, "", NewPermissionError(userID, formatID, "format", "export", "not owned by user")
	}

	questions, err := s.repo.Question().GetByFormat(ctx, s.db, formatID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, "", ErrEmptyQuestionBank
	}

	sectionsByID := make(map[uint]*models.ExamSection, len(format.Sections))
	for i := range format.Sections {
		sectionsByID[format.Sections[i].ID] = &format.Sections[i]
	}

	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Questions"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, "", fmt.Errorf("failed to prepare workbook: %w", err)
	}

	for col, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := file.SetCellValue(sheet, cell, header); err != nil {
			return nil, "", fmt.Errorf("failed to write header row: %w", err)
		}
	}

	for row, q := range questions {
		values := questionRow(q, sectionsByID[q.SectionID])
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := file.SetCellValue(sheet, cell, v); err != nil {
				return nil, "", fmt.Errorf("failed to write question row: %w", err)
			}
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	fileName := fmt.Sprintf("%s-questions.xlsx", slugify(format.Name))
	s.logger.Info("Question bank exported", "format_id", formatID, "questions", len(questions))
	return buf.Bytes(), fileName, nil
}

func questionRow(q *models.ExamQuestion, section *models.ExamSection) []interface{} {
	sectionName := ""
	questionType := ""
	if section != nil {
		sectionName = section.Name
		questionType = string(section.QuestionType)
	}

	options := q.OptionList()
	optionCells := make([]interface{}, 4)
	for i := 0; i < 4; i++ {
		if i < len(options) {
			optionCells[i] = options[i]
		} else {
			optionCells[i] = ""
		}
	}

	correct := ""
	if q.CorrectOptionIndex != nil {
		correct = string(rune('A' + *q.CorrectOptionIndex))
	}

	dataset := ""
	if q.Dataset != nil {
		dataset = *q.Dataset
	}

	var scheme []string
	for _, c := range q.Criteria() {
		scheme = append(scheme, fmt.Sprintf("%s (%d)", c.Label, c.Marks))
	}

	return []interface{}{
		q.ID, sectionName, questionType, q.QuestionText, dataset,
		optionCells[0], optionCells[1], optionCells[2], optionCells[3], correct,
		q.MaxMarks, q.Depth, strings.Join(scheme, "; "),
	}
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "exam"
	}
	return slug
}
