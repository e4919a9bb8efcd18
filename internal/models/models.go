package models

import "time"

// HomeworkStatus is a review state reported by the Practicum API.
type HomeworkStatus string

const (
	StatusApproved  HomeworkStatus = "approved"
	StatusReviewing HomeworkStatus = "reviewing"
	StatusRejected  HomeworkStatus = "rejected"
)

// Verdicts maps every known status to its human-readable text. The strings
// are user-facing contract and stay exactly as the review service words them.
var Verdicts = map[HomeworkStatus]string{
	StatusApproved:  "Работа проверена: ревьюеру всё понравилось. Ура!",
	StatusReviewing: "Работа взята на проверку ревьюером.",
	StatusRejected:  "Работа проверена: у ревьюера есть замечания.",
}

// Homework is a single submission entry from the API response.
type Homework struct {
	ID              int64          `json:"id"`
	HomeworkName    string         `json:"homework_name"`
	Status          HomeworkStatus `json:"status"`
	ReviewerComment string         `json:"reviewer_comment"`
	DateUpdated     string         `json:"date_updated"`
	LessonName      string         `json:"lesson_name"`
}

// StatusRecord is a journaled status change as stored in Postgres.
type StatusRecord struct {
	ID           int64     `json:"id"`
	HomeworkName string    `json:"homework_name"`
	Status       string    `json:"status"`
	Message      string    `json:"message"`
	ChangedAt    time.Time `json:"changed_at"`
	CreatedAt    time.Time `json:"created_at"`
}
