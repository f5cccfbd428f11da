package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/repository"
)

// CancelSignal reports a cooperative cancel request for a running job.
type CancelSignal interface {
	IsCancelled(ctx context.Context, jobID string) (bool, error)
}

// Phases are the steps the agent runs, in order.
type Phases struct {
	Acquire    *Acquirer
	Verify     *Verifier
	Illustrate *Illustrate
	Narrate    *Narrate
	Analyze    *Analyze
	Gloss      *Gloss
	Compare    *Compare
	Publish    *Publish
}

type RunResult struct {
	PoemID       string
	Strategy     string
	Verification VerifyStatus
	Illustrated  bool
	Narrated     bool
	Commentaries int
	Failed       int
	Compared     bool
	Slug         string
	TotalCost    float64
}

// Agent runs the phase sequence for one job. Illustrate, narrate, gloss and
// compare are allowed to fail; acquire, verify, analyze storage errors and
// publish are not.
type Agent struct {
	jobs     repository.JobRepository
	logs     repository.ActionLogRepository
	phases   Phases
	observer PhaseObserver
	log      *zerolog.Logger
}

func NewAgent(jobs repository.JobRepository, logs repository.ActionLogRepository, phases Phases, observer PhaseObserver, logger *zerolog.Logger) *Agent {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Agent{jobs: jobs, logs: logs, phases: phases, observer: observer, log: logger}
}

// Run executes every phase for job and leaves it COMPLETED. It returns
// domain.ErrJobCancelled when a cancel request is seen between phases.
// Re-running a job whose poem exists reuses the poem and skips finished work.
func (a *Agent) Run(ctx context.Context, job *model.Job, cancel CancelSignal) (*RunResult, error) {
	l := a.log.With().Str("job_id", job.ID).Logger()
	res := &RunResult{}
	p := a.phases

	// acquire 0-10
	if err := a.boundary(ctx, job, cancel, model.JobStatusAcquiring, "acquire", 0); err != nil {
		return nil, err
	}
	start := time.Now()
	acq, err := p.Acquire.Acquire(ctx, job.Params, job.PoemID)
	a.observe("acquire", start, err)
	if err != nil {
		a.record(ctx, job.ID, "acquire", "acquire_poem", a.paramsSummary(job), failure(err))
		return nil, err
	}
	job.TotalCost += acq.Cost
	poem := acq.Poem
	if err := a.linkPoem(ctx, job, poem.ID); err != nil {
		return nil, err
	}
	res.Strategy = acq.Strategy
	a.record(ctx, job.ID, "acquire", "acquire_poem", a.paramsSummary(job), map[string]any{
		"poemId":   poem.ID,
		"title":    poem.Title,
		"author":   poem.Author,
		"strategy": acq.Strategy,
		"cost":     acq.Cost,
	})

	res.Verification = VerifySkipped
	if p.Verify != nil && !p.Verify.Skips(poem, acq.Strategy) {
		if err := a.progress(ctx, job, model.JobStatusAcquiring, "verify", 5); err != nil {
			return nil, err
		}
		start = time.Now()
		vr, err := p.Verify.Verify(ctx, poem, acq.Strategy)
		a.observe("verify", start, err)
		if err != nil {
			a.record(ctx, job.ID, "verify", "verify_poem", map[string]any{"poemId": poem.ID}, failure(err))
			return nil, err
		}
		job.TotalCost += vr.Cost
		res.Verification = vr.Status
		if vr.Poem.ID != poem.ID {
			if err := a.linkPoem(ctx, job, vr.Poem.ID); err != nil {
				return nil, err
			}
		}
		a.record(ctx, job.ID, "verify", "verify_poem", map[string]any{"poemId": poem.ID}, map[string]any{
			"status": string(vr.Status),
			"reason": vr.Reason,
			"poemId": vr.Poem.ID,
		})
		poem = vr.Poem
	}
	res.PoemID = poem.ID
	if err := a.progress(ctx, job, model.JobStatusAcquiring, "acquire", 10); err != nil {
		return nil, err
	}

	// illustrate 10-25
	if err := a.boundary(ctx, job, cancel, model.JobStatusGeneratingArt, "illustrate", 10); err != nil {
		return nil, err
	}
	start = time.Now()
	ill, err := p.Illustrate.Run(ctx, poem, job.Params.IllustrationStyle)
	a.observe("illustrate", start, err)
	if ill != nil {
		job.TotalCost += ill.Cost
	}
	in := map[string]any{"style": string(job.Params.IllustrationStyle)}
	if err != nil {
		l.Warn().Err(err).Msg("illustration skipped")
		a.record(ctx, job.ID, "illustrate", "generate_art", in, failure(err))
	} else {
		res.Illustrated = true
		a.record(ctx, job.ID, "illustrate", "generate_art", in, map[string]any{
			"success": true,
			"style":   string(ill.Style),
			"reused":  ill.Skipped,
		})
	}
	if err := a.progress(ctx, job, model.JobStatusGeneratingArt, "illustrate", 25); err != nil {
		return nil, err
	}

	// narrate 25-35
	if err := a.boundary(ctx, job, cancel, model.JobStatusGeneratingAudio, "narrate", 25); err != nil {
		return nil, err
	}
	start = time.Now()
	nar, err := p.Narrate.Run(ctx, poem)
	a.observe("narrate", start, err)
	in = map[string]any{"language": string(poem.Language)}
	if err != nil {
		l.Warn().Err(err).Msg("narration skipped")
		a.record(ctx, job.ID, "narrate", "generate_audio", in, failure(err))
	} else {
		res.Narrated = true
		out := map[string]any{"success": true, "reused": nar.Skipped}
		if nar.Narration != nil {
			out["voice"] = nar.Narration.VoiceName
			out["durationMs"] = nar.Narration.Duration.Milliseconds()
		}
		a.record(ctx, job.ID, "narrate", "generate_audio", in, out)
	}
	if err := a.progress(ctx, job, model.JobStatusGeneratingAudio, "narrate", 35); err != nil {
		return nil, err
	}

	// analyze 35-65
	if err := a.boundary(ctx, job, cancel, model.JobStatusAnalyzing, "analyze", 35); err != nil {
		return nil, err
	}
	start = time.Now()
	an, err := p.Analyze.Run(ctx, poem)
	a.observe("analyze", start, err)
	if err != nil {
		a.record(ctx, job.ID, "analyze", "analyze_poem", nil, failure(err))
		return nil, err
	}
	job.TotalCost += an.Cost
	res.Commentaries, res.Failed = an.Completed, an.Failed
	a.record(ctx, job.ID, "analyze", "analyze_poem", nil, map[string]any{
		"completed": an.Completed,
		"failed":    an.Failed,
		"reused":    providerNames(an.Reused),
		"errors":    an.Errors,
	})
	if err := a.progress(ctx, job, model.JobStatusAnalyzing, "analyze", 65); err != nil {
		return nil, err
	}

	// gloss 65-72
	if err := a.boundary(ctx, job, cancel, model.JobStatusAnalyzing, "gloss", 65); err != nil {
		return nil, err
	}
	start = time.Now()
	gl, err := p.Gloss.Run(ctx, poem)
	a.observe("gloss", start, err)
	if gl != nil {
		job.TotalCost += gl.Cost
	}
	if err != nil {
		l.Warn().Err(err).Msg("gloss incomplete")
		a.record(ctx, job.ID, "gloss", "generate_gloss", nil, failure(err))
	} else {
		a.record(ctx, job.ID, "gloss", "generate_gloss", nil, map[string]any{
			"words":      gl.Words,
			"lines":      gl.Lines,
			"wordsModel": gl.WordsModel,
			"linesModel": gl.LinesModel,
		})
	}
	if err := a.progress(ctx, job, model.JobStatusAnalyzing, "gloss", 72); err != nil {
		return nil, err
	}

	// compare 72-90, only with two or more commentaries
	if err := a.boundary(ctx, job, cancel, model.JobStatusComparing, "compare", 72); err != nil {
		return nil, err
	}
	if an.Completed >= 2 {
		start = time.Now()
		cmp, err := p.Compare.Run(ctx, poem)
		a.observe("compare", start, err)
		if cmp != nil {
			job.TotalCost += cmp.Cost
		}
		if err != nil {
			l.Warn().Err(err).Msg("comparison skipped")
			a.record(ctx, job.ID, "compare", "compare_analyses", nil, failure(err))
		} else {
			res.Compared = true
			a.record(ctx, job.ID, "compare", "compare_analyses", nil, map[string]any{
				"synthesisId":   cmp.Synthesis.ID,
				"agreements":    len(cmp.Synthesis.Agreements),
				"disagreements": len(cmp.Synthesis.Disagreements),
			})
		}
	} else {
		a.record(ctx, job.ID, "compare", "compare_analyses", nil, map[string]any{
			"skipped":   true,
			"completed": an.Completed,
		})
	}
	if err := a.progress(ctx, job, model.JobStatusComparing, "compare", 90); err != nil {
		return nil, err
	}

	// publish 90-100
	if err := a.boundary(ctx, job, cancel, model.JobStatusReview, "publish", 90); err != nil {
		return nil, err
	}
	start = time.Now()
	pub, err := p.Publish.Run(ctx, poem)
	a.observe("publish", start, err)
	if err != nil {
		a.record(ctx, job.ID, "publish", "create_publication", nil, failure(err))
		return nil, err
	}
	res.Slug = pub.Publication.Slug
	a.record(ctx, job.ID, "publish", "create_publication", nil, map[string]any{
		"slug":   pub.Publication.Slug,
		"status": string(pub.Publication.Status),
		"reused": pub.Reused,
	})

	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.CurrentPhase = "done"
	job.Progress = 100
	job.ErrorMessage = ""
	job.CompletedAt = &now
	job.UpdatedAt = now
	if err := a.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	res.TotalCost = job.TotalCost
	l.Info().Str("poem_id", poem.ID).Float64("cost_usd", job.TotalCost).Int("commentaries", res.Commentaries).Msg("pipeline completed")
	return res, nil
}

// boundary checks for cancellation and records the phase start.
func (a *Agent) boundary(ctx context.Context, job *model.Job, cancel CancelSignal, status model.JobStatus, phase string, pct int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cancel != nil {
		stop, err := cancel.IsCancelled(ctx, job.ID)
		if err != nil {
			a.log.Warn().Err(err).Str("job_id", job.ID).Msg("cancel check failed, continuing")
		} else if stop {
			a.log.Info().Str("job_id", job.ID).Str("phase", phase).Msg("cancel observed")
			return domain.ErrJobCancelled
		}
	}
	return a.progress(ctx, job, status, phase, pct)
}

func (a *Agent) progress(ctx context.Context, job *model.Job, status model.JobStatus, phase string, pct int) error {
	job.Status = status
	job.CurrentPhase = phase
	job.Progress = pct
	job.UpdatedAt = time.Now()
	return a.jobs.UpdateProgress(ctx, repository.NoTX, job.ID, status, phase, pct, job.TotalCost)
}

// linkPoem persists the job's poem reference so a retry reuses the poem.
func (a *Agent) linkPoem(ctx context.Context, job *model.Job, poemID string) error {
	if job.PoemID == poemID {
		return nil
	}
	job.PoemID = poemID
	job.UpdatedAt = time.Now()
	return a.jobs.Save(ctx, repository.NoTX, job)
}

// record appends an action log entry. The log is for audit only, so a write
// failure does not stop the run.
func (a *Agent) record(ctx context.Context, jobID, phase, action string, in, out map[string]any) {
	entry := model.NewActionLog(jobID, phase, action, in, out)
	if err := a.logs.Append(ctx, repository.NoTX, entry); err != nil {
		a.log.Error().Err(err).Str("job_id", jobID).Str("phase", phase).Msg("append action log")
	}
}

func (a *Agent) observe(phase string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	a.observer.ObservePhase(phase, outcome, time.Since(start))
}

func (a *Agent) paramsSummary(job *model.Job) map[string]any {
	return map[string]any{
		"mode":     string(job.Params.AcquisitionMode),
		"language": string(job.Params.Language),
		"topic":    job.Params.Topic,
		"poemId":   job.PoemID,
	}
}

func failure(err error) map[string]any {
	return map[string]any{"success": false, "error": err.Error()}
}

func providerNames(ps []model.Provider) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, string(p))
	}
	return out
}
