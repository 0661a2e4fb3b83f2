package entity

import "time"

// HistoryEntry records the design of one successfully completed job. Entries are never mutated.
type HistoryEntry struct {
	ID          string    `json:"id" bson:"id"`
	JobID       string    `json:"jobId" bson:"job_id"`
	GeneratedAt time.Time `json:"generatedAt" bson:"generated_at"`
	UserInput   string    `json:"userInput" bson:"user_input"`
	Structure   Structure `json:"structure" bson:"structure"`
}
