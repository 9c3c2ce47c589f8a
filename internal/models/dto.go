package models

// TopicReadiness is derived per topic from marked answers; it is never
// stored. An answer counts as correct when its score reaches half the
// question's max marks.
type TopicReadiness struct {
	TopicID            uint   `json:"topic_id"`
	TopicName          string `json:"topic_name"`
	SubjectName        string `json:"subject_name,omitempty"`
	QuestionsAttempted int    `json:"questions_attempted"`
	QuestionsCorrect   int    `json:"questions_correct"`
	ReadinessScore     int    `json:"readiness_score"` // round(correct/attempted*100)
}
