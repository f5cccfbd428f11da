package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"poetry-pipeline/internal/domain"
)

type JobStatus string

const (
	JobStatusQueued          JobStatus = "QUEUED"
	JobStatusAcquiring       JobStatus = "ACQUIRING"
	JobStatusGeneratingArt   JobStatus = "GENERATING_ART"
	JobStatusGeneratingAudio JobStatus = "GENERATING_AUDIO"
	JobStatusAnalyzing       JobStatus = "ANALYZING"
	JobStatusComparing       JobStatus = "COMPARING"
	JobStatusReview          JobStatus = "REVIEW"
	JobStatusCompleted       JobStatus = "COMPLETED"
	JobStatusFailed          JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type AcquisitionMode string

const (
	AcquisitionFound     AcquisitionMode = "found"
	AcquisitionGenerated AcquisitionMode = "generated"
)

type Language string

const (
	LanguageEN Language = "EN"
	LanguageHE Language = "HE"
)

type IllustrationStyle string

const (
	StyleMinimalist IllustrationStyle = "MINIMALIST"
	StyleDalle      IllustrationStyle = "DALLE"
)

// Alternate returns the fallback style used when the requested one fails.
func (s IllustrationStyle) Alternate() IllustrationStyle {
	if s == StyleDalle {
		return StyleMinimalist
	}
	return StyleDalle
}

// JobParams is the submission payload. It is what travels through the broker.
type JobParams struct {
	AcquisitionMode   AcquisitionMode   `json:"acquisitionMode"`
	Topic             string            `json:"topic,omitempty"`
	Language          Language          `json:"language"`
	IllustrationStyle IllustrationStyle `json:"illustrationStyle"`
	SourceModel       string            `json:"sourceModel,omitempty"`
}

// Normalize fills defaults for optional fields and validates enumerations.
func (p *JobParams) Normalize() error {
	if p.AcquisitionMode == "" {
		p.AcquisitionMode = AcquisitionFound
	}
	if p.Language == "" {
		p.Language = LanguageEN
	}
	if p.IllustrationStyle == "" {
		p.IllustrationStyle = StyleMinimalist
	}
	switch p.AcquisitionMode {
	case AcquisitionFound, AcquisitionGenerated:
	default:
		return fmt.Errorf("acquisition mode %q: %w", p.AcquisitionMode, domain.ErrInvalidArgument)
	}
	switch p.Language {
	case LanguageEN, LanguageHE:
	default:
		return fmt.Errorf("language %q: %w", p.Language, domain.ErrInvalidArgument)
	}
	switch p.IllustrationStyle {
	case StyleMinimalist, StyleDalle:
	default:
		return fmt.Errorf("illustration style %q: %w", p.IllustrationStyle, domain.ErrInvalidArgument)
	}
	return nil
}

// Themes splits the comma separated topic. Falls back to def when empty.
func (p JobParams) Themes(def []string) []string {
	return SplitThemes(p.Topic, def)
}

func SplitThemes(topic string, def []string) []string {
	var out []string
	for _, t := range strings.Split(topic, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}

// Job is one pipeline run.
type Job struct {
	ID           string
	Status       JobStatus
	CurrentPhase string
	Progress     int
	TotalCost    float64
	Params       JobParams
	PoemID       string
	ErrorMessage string
	BrokerRef    string
	Attempts     int
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}

func NewJob(params JobParams) (*Job, error) {
	if err := params.Normalize(); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Job{
		ID:           uuid.NewString(),
		Status:       JobStatusQueued,
		CurrentPhase: string(JobStatusQueued),
		Params:       params,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
