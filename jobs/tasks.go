package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/neotracker/neotracker/internal/ingest"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIngestCloseApproaches pulls new close approaches into the catalog.
	TaskIngestCloseApproaches = "neo:ingest_close_approaches"
)

// IngestPayload configures one ingestion task.
type IngestPayload struct {
	Params      ingest.Params `json:"params"`
	RequestedBy string        `json:"requested_by,omitempty"`
}

// NewIngestTask constructs an Asynq task.
func NewIngestTask(payload IngestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIngestCloseApproaches, data), nil
}
