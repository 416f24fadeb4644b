package models

import (
	"time"
)

// PipelineCheckpoint is the resumable progress of a backfill run
type PipelineCheckpoint struct {
	LastProcessedDate string    `json:"last_date"` // YYYY-MM-DD of the last completed month
	TotalProcessed    int       `json:"total_processed"`
	TotalSucceeded    int       `json:"total_success"`
	LastUpdated       time.Time `json:"last_updated"`
}
