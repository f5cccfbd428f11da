package sched

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/infra/metrics"
)

var englishThemes = []string{
	"love,longing",
	"nature,seasons",
	"death,mortality",
	"time,memory",
	"beauty,light",
	"loss,grief",
	"hope,dreams",
	"solitude,reflection",
	"war,peace",
	"childhood,innocence",
	"the sea,water",
	"night,stars",
	"freedom,journey",
	"faith,doubt",
	"art,creation",
}

var hebrewThemes = []string{
	"אהבה,געגועים",
	"מולדת,ארץ ישראל",
	"טבע,עונות השנה",
	"זיכרון,נוסטלגיה",
	"ירושלים,קדושה",
	"מוות,אובדן",
	"תקווה,חלומות",
	"בדידות,ערגה",
	"ילדות,משפחה",
	"חירות,עצמאות",
	"לילה,כוכבים",
	"ים,מים",
	"מלחמה,שלום",
	"אלוהים,אמונה",
	"שירה,יצירה",
}

// Submitter is the part of the job use case the generator needs.
type Submitter interface {
	Submit(ctx context.Context, params model.JobParams) (*model.Job, error)
	Status(ctx context.Context) (adapter.QueueCounts, error)
}

// AutoGenerator submits a small batch of random jobs on a cron schedule
// unless the queue already has a backlog.
type AutoGenerator struct {
	jobs         Submitter
	cron         *cron.Cron
	maxBacklog   int
	sourceModels []string
	log          *zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewAutoGenerator(jobs Submitter, maxBacklog int, sourceModels []string, logger *zerolog.Logger) *AutoGenerator {
	if maxBacklog <= 0 {
		maxBacklog = 3
	}
	l := logger.With().Str("component", "auto_generate").Logger()
	return &AutoGenerator{
		jobs:         jobs,
		cron:         cron.New(),
		maxBacklog:   maxBacklog,
		sourceModels: sourceModels,
		log:          &l,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start registers the schedule (standard five-field cron syntax) and starts the cron runner.
func (g *AutoGenerator) Start(schedule string) error {
	if schedule == "" {
		schedule = "0 */6 * * *"
	}
	if _, err := g.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := g.RunOnce(ctx); err != nil {
			g.log.Error().Err(err).Msg("auto-generate run failed")
		}
	}); err != nil {
		return err
	}
	g.cron.Start()
	g.log.Info().Str("schedule", schedule).Msg("auto-generate scheduler started")
	return nil
}

// Stop waits for a running batch to finish.
func (g *AutoGenerator) Stop() {
	<-g.cron.Stop().Done()
	g.log.Info().Msg("auto-generate scheduler stopped")
}

// RunOnce submits one batch of 1..3 jobs and returns how many were queued.
func (g *AutoGenerator) RunOnce(ctx context.Context) (int, error) {
	counts, err := g.jobs.Status(ctx)
	if err != nil {
		return 0, err
	}
	if backlog := counts.Waiting + counts.Active; backlog >= int64(g.maxBacklog) {
		g.log.Info().Int64("backlog", backlog).Msg("queue busy, skipping run")
		return 0, nil
	}

	n := g.intn(3) + 1
	submitted := 0
	for i := 0; i < n; i++ {
		params := g.randomParams()
		job, err := g.jobs.Submit(ctx, params)
		if err != nil {
			metrics.AddAutoGenerated(submitted)
			return submitted, err
		}
		submitted++
		g.log.Info().
			Str("job_id", job.ID).
			Str("language", string(params.Language)).
			Str("mode", string(params.AcquisitionMode)).
			Str("topic", params.Topic).
			Str("style", string(params.IllustrationStyle)).
			Msg("scheduled job")
	}
	metrics.AddAutoGenerated(submitted)
	return submitted, nil
}

func (g *AutoGenerator) randomParams() model.JobParams {
	p := model.JobParams{
		Language:          model.LanguageEN,
		AcquisitionMode:   model.AcquisitionFound,
		IllustrationStyle: model.StyleMinimalist,
	}
	if g.float() < 0.5 {
		p.Language = model.LanguageHE
		p.Topic = hebrewThemes[g.intn(len(hebrewThemes))]
	} else {
		p.Topic = englishThemes[g.intn(len(englishThemes))]
	}
	if g.float() < 0.4 {
		p.AcquisitionMode = model.AcquisitionGenerated
		if len(g.sourceModels) > 0 {
			p.SourceModel = g.sourceModels[g.intn(len(g.sourceModels))]
		}
	}
	if g.float() < 0.3 {
		p.IllustrationStyle = model.StyleDalle
	}
	return p
}

func (g *AutoGenerator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Intn(n)
}

func (g *AutoGenerator) float() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Float64()
}
