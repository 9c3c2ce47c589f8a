package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/studyowl/exam-service/internal/models"
)

func TestExportQuestions(t *testing.T) {
	env := newTestEnv(t)
	svc := NewExportService(env.repo, nil, env.logger)

	data, fileName, err := svc.ExportQuestions(context.Background(), env.format.ID, testUser)
	if err != nil {
		t.Fatalf("ExportQuestions: %v", err)
	}
	if fileName != "paper-1-questions.xlsx" {
		t.Errorf("file name = %q", fileName)
	}

	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer file.Close()

	rows, err := file.GetRows("Questions")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("workbook has %d rows, want header + 2 questions", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][9] != "Correct Option" {
		t.Errorf("header row = %v", rows[0])
	}

	// Question 31 is the MCQ with correct option index 1.
	mcqRow := rows[1]
	if mcqRow[2] != string(models.MCQ) {
		t.Errorf("mcq type cell = %q", mcqRow[2])
	}
	if mcqRow[9] != "B" {
		t.Errorf("correct option cell = %q, want B", mcqRow[9])
	}

	writtenRow := rows[2]
	if writtenRow[12] != "M1 (2); M2 (2)" {
		t.Errorf("mark scheme cell = %q", writtenRow[12])
	}
}

func TestExportQuestionsOwnership(t *testing.T) {
	env := newTestEnv(t)
	svc := NewExportService(env.repo, nil, env.logger)

	_, _, err := svc.ExportQuestions(context.Background(), env.format.ID, otherUser)
	if !IsPermissionError(err) {
		t.Errorf("err = %v, want permission error", err)
	}
}

func TestExportQuestionsEmptyBank(t *testing.T) {
	env := newTestEnv(t)
	delete(env.repo.questions, env.mcq.ID)
	delete(env.repo.questions, env.written.ID)
	svc := NewExportService(env.repo, nil, env.logger)

	_, _, err := svc.ExportQuestions(context.Background(), env.format.ID, testUser)
	if !errors.Is(err, ErrEmptyQuestionBank) {
		t.Errorf("err = %v, want ErrEmptyQuestionBank", err)
	}
}

func TestGetTopicReadiness(t *testing.T) {
	env := newTestEnv(t)
	env.repo.readiness = []*models.TopicReadiness{
		{TopicID: 11, TopicName: "Bonding", QuestionsAttempted: 4, QuestionsCorrect: 3, ReadinessScore: 75},
	}
	svc := NewStudentService(env.repo, nil, env.logger)

	resp, err := svc.GetTopicReadiness(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetTopicReadiness: %v", err)
	}
	if len(resp.Topics) != 1 || resp.Topics[0].ReadinessScore != 75 {
		t.Errorf("topics = %+v", resp.Topics)
	}
}
