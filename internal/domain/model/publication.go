package model

import (
	"time"

	"github.com/google/uuid"
)

type PublicationStatus string

const (
	PublicationDraft     PublicationStatus = "draft"
	PublicationPublished PublicationStatus = "published"
	PublicationRejected  PublicationStatus = "rejected"
)

type Publication struct {
	ID              string
	PoemID          string
	Slug            string
	Status          PublicationStatus
	PublishedAt     *time.Time
	RejectionReason string
	CreatedAt       time.Time
}

func NewPublication(poemID, slug string) *Publication {
	return &Publication{
		ID:        uuid.NewString(),
		PoemID:    poemID,
		Slug:      slug,
		Status:    PublicationDraft,
		CreatedAt: time.Now(),
	}
}

// ActionLog is an append-only audit record written once per phase.
type ActionLog struct {
	ID        string
	JobID     string
	Phase     string
	Action    string
	Input     map[string]any
	Output    map[string]any
	CreatedAt time.Time
}

func NewActionLog(jobID, phase, action string, input, output map[string]any) *ActionLog {
	if input == nil {
		input = map[string]any{}
	}
	if output == nil {
		output = map[string]any{}
	}
	return &ActionLog{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Phase:     phase,
		Action:    action,
		Input:     input,
		Output:    output,
		CreatedAt: time.Now(),
	}
}
