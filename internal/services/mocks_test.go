package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studyowl/exam-service/internal/events"
	"github.com/studyowl/exam-service/internal/generator"
	"github.com/studyowl/exam-service/internal/llm"
	"github.com/studyowl/exam-service/internal/models"
	"github.com/studyowl/exam-service/internal/repositories"
	"github.com/studyowl/exam-service/internal/validator"
)

// fakeRepository is an in-memory Repository for service tests. It ignores the
// tx parameter; WithTransaction runs the callback against the same store.
type fakeRepository struct {
	formats   map[uint]*models.ExamFormat
	questions map[uint]*models.ExamQuestion
	attempts  map[uint]*models.ExamAttempt
	answers   map[uint]*models.ExamAttemptAnswer
	courses   map[uint]*models.Course
	topicRefs map[uint][]models.TopicRef
	users     map[uint]*models.User
	readiness []*models.TopicReadiness
	nextID    uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		formats:   make(map[uint]*models.ExamFormat),
		questions: make(map[uint]*models.ExamQuestion),
		attempts:  make(map[uint]*models.ExamAttempt),
		answers:   make(map[uint]*models.ExamAttemptAnswer),
		courses:   make(map[uint]*models.Course),
		topicRefs: make(map[uint][]models.TopicRef),
		users:     make(map[uint]*models.User),
		nextID:    1000,
	}
}

func (f *fakeRepository) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepository) Format() repositories.FormatRepository     { return &fakeFormatRepo{f} }
func (f *fakeRepository) Question() repositories.QuestionRepository { return &fakeQuestionRepo{f} }
func (f *fakeRepository) Attempt() repositories.AttemptRepository   { return &fakeAttemptRepo{f} }
func (f *fakeRepository) Answer() repositories.AnswerRepository     { return &fakeAnswerRepo{f} }
func (f *fakeRepository) Course() repositories.CourseRepository     { return &fakeCourseRepo{f} }
func (f *fakeRepository) User() repositories.UserRepository         { return &fakeUserRepo{f} }

func (f *fakeRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}
func (f *fakeRepository) Ping(ctx context.Context) error { return nil }
func (f *fakeRepository) Close() error                   { return nil }

type fakeFormatRepo struct{ f *fakeRepository }

func (r *fakeFormatRepo) Create(ctx context.Context, tx *gorm.DB, format *models.ExamFormat) error {
	format.ID = r.f.id()
	for i := range format.Sections {
		format.Sections[i].ID = r.f.id()
		format.Sections[i].FormatID = format.ID
		format.Sections[i].SortOrder = i
	}
	r.f.formats[format.ID] = format
	return nil
}

func (r *fakeFormatRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamFormat, error) {
	format, ok := r.f.formats[id]
	if !ok {
		return nil, fmt.Errorf("format not found with ID %d: %w", id, repositories.ErrNotFound)
	}
	return format, nil
}

func (r *fakeFormatRepo) GetByIDWithSections(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamFormat, error) {
	return r.GetByID(ctx, tx, id)
}

func (r *fakeFormatRepo) Update(ctx context.Context, tx *gorm.DB, format *models.ExamFormat) error {
	r.f.formats[format.ID] = format
	return nil
}

func (r *fakeFormatRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.formats, id)
	for qid, q := range r.f.questions {
		if q.FormatID == id {
			delete(r.f.questions, qid)
		}
	}
	return nil
}

func (r *fakeFormatRepo) ReplaceSections(ctx context.Context, tx *gorm.DB, formatID uint, sections []models.ExamSection) error {
	format, ok := r.f.formats[formatID]
	if !ok {
		return fmt.Errorf("format not found with ID %d: %w", formatID, repositories.ErrNotFound)
	}
	for qid, q := range r.f.questions {
		if q.FormatID == formatID {
			delete(r.f.questions, qid)
		}
	}
	for i := range sections {
		sections[i].ID = r.f.id()
		sections[i].FormatID = formatID
		sections[i].SortOrder = i
	}
	format.Sections = sections
	return nil
}

func (r *fakeFormatRepo) GetSections(ctx context.Context, tx *gorm.DB, formatID uint) ([]models.ExamSection, error) {
	format, err := r.GetByID(ctx, tx, formatID)
	if err != nil {
		return nil, err
	}
	return format.Sections, nil
}

func (r *fakeFormatRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.FormatFilters) ([]*models.ExamFormat, int64, error) {
	var out []*models.ExamFormat
	for _, format := range r.f.formats {
		if filters.CourseID != nil && format.CourseID != *filters.CourseID {
			continue
		}
		if filters.CreatedBy != nil && format.CreatedBy != *filters.CreatedBy {
			continue
		}
		out = append(out, format)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

type fakeQuestionRepo struct{ f *fakeRepository }

func (r *fakeQuestionRepo) CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.ExamQuestion) error {
	for _, q := range questions {
		q.ID = r.f.id()
		r.f.questions[q.ID] = q
	}
	return nil
}

func (r *fakeQuestionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamQuestion, error) {
	q, ok := r.f.questions[id]
	if !ok {
		return nil, fmt.Errorf("question not found with ID %d: %w", id, repositories.ErrNotFound)
	}
	return q, nil
}

func (r *fakeQuestionRepo) GetByFormat(ctx context.Context, tx *gorm.DB, formatID uint) ([]*models.ExamQuestion, error) {
	var out []*models.ExamQuestion
	for _, q := range r.f.questions {
		if q.FormatID == formatID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeQuestionRepo) GetBySection(ctx context.Context, tx *gorm.DB, sectionID uint) ([]*models.ExamQuestion, error) {
	var out []*models.ExamQuestion
	for _, q := range r.f.questions {
		if q.SectionID == sectionID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *fakeQuestionRepo) CountByFormat(ctx context.Context, tx *gorm.DB, formatID uint) (int64, error) {
	questions, _ := r.GetByFormat(ctx, tx, formatID)
	return int64(len(questions)), nil
}

func (r *fakeQuestionRepo) DeleteByFormat(ctx context.Context, tx *gorm.DB, formatID uint) error {
	for id, q := range r.f.questions {
		if q.FormatID == formatID {
			delete(r.f.questions, id)
		}
	}
	return nil
}

type fakeAttemptRepo struct{ f *fakeRepository }

func (r *fakeAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	attempt.ID = r.f.id()
	r.f.attempts[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	attempt, ok := r.f.attempts[id]
	if !ok {
		return nil, fmt.Errorf("attempt not found with ID %d: %w", id, repositories.ErrNotFound)
	}
	return attempt, nil
}

func (r *fakeAttemptRepo) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttempt, error) {
	attempt, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	var answers []models.ExamAttemptAnswer
	for _, a := range r.f.answers {
		if a.AttemptID == id {
			answers = append(answers, *a)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].QuestionID < answers[j].QuestionID })
	attempt.Answers = answers
	return attempt, nil
}

func (r *fakeAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.ExamAttempt) error {
	r.f.attempts[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.AttemptFilters) ([]*models.ExamAttempt, int64, error) {
	var out []*models.ExamAttempt
	for _, a := range r.f.attempts {
		if a.UserID != userID {
			continue
		}
		if filters.FormatID != nil && a.FormatID != *filters.FormatID {
			continue
		}
		if filters.Submitted != nil && a.IsSubmitted() != *filters.Submitted {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeAttemptRepo) GetActive(ctx context.Context, tx *gorm.DB, userID string, formatID uint) (*models.ExamAttempt, error) {
	for _, a := range r.f.attempts {
		if a.UserID == userID && a.FormatID == formatID && !a.IsSubmitted() {
			return a, nil
		}
	}
	return nil, nil
}

type fakeAnswerRepo struct{ f *fakeRepository }

func (r *fakeAnswerRepo) Upsert(ctx context.Context, tx *gorm.DB, answer *models.ExamAttemptAnswer) error {
	for _, a := range r.f.answers {
		if a.AttemptID == answer.AttemptID && a.QuestionID == answer.QuestionID {
			answer.ID = a.ID
			r.f.answers[a.ID] = answer
			return nil
		}
	}
	answer.ID = r.f.id()
	r.f.answers[answer.ID] = answer
	return nil
}

func (r *fakeAnswerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamAttemptAnswer, error) {
	a, ok := r.f.answers[id]
	if !ok {
		return nil, fmt.Errorf("answer not found with ID %d: %w", id, repositories.ErrNotFound)
	}
	return a, nil
}

func (r *fakeAnswerRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.ExamAttemptAnswer, error) {
	var out []*models.ExamAttemptAnswer
	for _, a := range r.f.answers {
		if a.AttemptID == attemptID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (r *fakeAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.ExamAttemptAnswer, error) {
	for _, a := range r.f.answers {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeAnswerRepo) GetTopicReadiness(ctx context.Context, tx *gorm.DB, userID string) ([]*models.TopicReadiness, error) {
	return r.f.readiness, nil
}

type fakeCourseRepo struct{ f *fakeRepository }

func (r *fakeCourseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	course, ok := r.f.courses[id]
	if !ok {
		return nil, fmt.Errorf("course not found with ID %d: %w", id, repositories.ErrNotFound)
	}
	return course, nil
}

func (r *fakeCourseRepo) GetTopicRefs(ctx context.Context, tx *gorm.DB, courseID uint) ([]models.TopicRef, error) {
	return r.f.topicRefs[courseID], nil
}

type fakeUserRepo struct{ f *fakeRepository }

func (r *fakeUserRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	for _, u := range r.f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user not found with ID %s: %w", id, repositories.ErrNotFound)
}

func (r *fakeUserRepo) Upsert(ctx context.Context, tx *gorm.DB, user *models.User) error {
	r.f.users[r.f.id()] = user
	return nil
}

// ===== TEST FIXTURES =====

const testUser = "user-1"
const otherUser = "user-2"

type testEnv struct {
	repo      *fakeRepository
	publisher *events.MockEventPublisher
	provider  *llm.MockClient
	logger    *slog.Logger
	validator *validator.Validator

	course   *models.Course
	format   *models.ExamFormat
	mcq      *models.ExamQuestion
	written  *models.ExamQuestion
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newFakeRepository()
	logger := slog.Default()

	course := &models.Course{ID: 1, Name: "Chemistry", LevelName: "A-Level", CreatedBy: testUser}
	repo.courses[course.ID] = course
	repo.topicRefs[course.ID] = []models.TopicRef{
		{ID: 11, Name: "Bonding", SubjectName: "Physical Chemistry"},
		{ID: 12, Name: "Kinetics", SubjectName: "Physical Chemistry"},
	}

	format := &models.ExamFormat{
		ID:        2,
		CourseID:  course.ID,
		Name:      "Paper 1",
		CreatedBy: testUser,
		Sections: []models.ExamSection{
			{ID: 21, FormatID: 2, Name: "Section A", QuestionType: models.MCQ, NumQuestions: 2, MarksPerQuestion: intPtr(1), SortOrder: 0},
			{ID: 22, FormatID: 2, Name: "Section B", QuestionType: models.ShortAnswer, NumQuestions: 1, MarksPerQuestion: intPtr(4), SortOrder: 1},
		},
	}
	repo.formats[format.ID] = format

	correct := 1
	topicID := uint(11)
	mcq := &models.ExamQuestion{
		ID:                 31,
		FormatID:           format.ID,
		SectionID:          21,
		TopicID:            &topicID,
		QuestionText:       "Which bond is strongest?",
		Options:            datatypes.JSON(`["Hydrogen","Covalent","Van der Waals","Dipole"]`),
		CorrectOptionIndex: &correct,
		MaxMarks:           1,
		Depth:              1,
	}
	written := &models.ExamQuestion{
		ID:           32,
		FormatID:     format.ID,
		SectionID:    22,
		TopicID:      &topicID,
		QuestionText: "Explain why ionic compounds conduct when molten.",
		MaxMarks:     4,
		MarkScheme:   datatypes.JSON(`[{"label":"M1","marks":2},{"label":"M2","marks":2}]`),
		Depth:        3,
	}
	repo.questions[mcq.ID] = mcq
	repo.questions[written.ID] = written

	return &testEnv{
		repo:      repo,
		publisher: events.NewMockEventPublisher(logger),
		provider:  llm.NewMockClient(),
		logger:    logger,
		validator: validator.New(),
		course:    course,
		format:    format,
		mcq:       mcq,
		written:   written,
	}
}

func (e *testEnv) attemptService() AttemptService {
	marking := generator.NewMarkingEngine(e.provider, nil, e.logger)
	return NewAttemptService(e.repo, nil, e.logger, e.validator, e.publisher, marking)
}

func (e *testEnv) markingService() MarkingService {
	marking := generator.NewMarkingEngine(e.provider, &fakePdfExtractor{}, e.logger)
	return NewMarkingService(e.repo, nil, e.logger, e.validator, e.publisher, marking)
}

func (e *testEnv) generationService() GenerationService {
	engine := generator.NewQuestionGenerationEngine(e.provider, e.logger)
	return NewGenerationService(e.repo, nil, e.logger, e.validator, e.publisher, engine)
}

func (e *testEnv) formatService() FormatService {
	inference := generator.NewFormatInferenceEngine(e.provider, e.logger)
	extraction := generator.NewPaperExtractionEngine(e.provider, e.logger)
	return NewFormatService(e.repo, nil, e.logger, e.validator, e.publisher, inference, extraction, &fakePdfExtractor{})
}

func (e *testEnv) eventsOfType(eventType string) []*events.Event {
	var out []*events.Event
	for _, ev := range e.publisher.GetPublishedEvents() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fakePdfExtractor struct {
	text string
	err  error
}

func (f *fakePdfExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.text != "" {
		return f.text, nil
	}
	return "extracted paper text", nil
}

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

// respondBySystemPrompt routes scripted responses by which engine is calling.
func respondBySystemPrompt(marking, hint, fullAnswer string) func(int, []llm.Message, llm.Options) (string, error) {
	return func(_ int, messages []llm.Message, _ llm.Options) (string, error) {
		system := messages[0].Text
		switch {
		case strings.Contains(system, "examiner"):
			return marking, nil
		case strings.Contains(system, "Socratic"):
			return hint, nil
		case strings.Contains(system, "model answer"):
			return fullAnswer, nil
		default:
			return "{}", nil
		}
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}
