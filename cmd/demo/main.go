package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/infra/api/apiv1"
)

// demo submits one job to a running operator API and follows it to the end.
func main() {
	base := flag.String("api", "http://localhost:8080", "operator API base URL")
	token := flag.String("token", os.Getenv("ADMIN_TOKEN"), "bearer token for the operator API")
	mode := flag.String("mode", string(model.AcquisitionFound), "found or generated")
	topic := flag.String("topic", "", "optional theme")
	lang := flag.String("lang", string(model.LanguageEN), "EN or HE")
	style := flag.String("style", string(model.StyleMinimalist), "illustration style")
	sourceModel := flag.String("model", "", "source model for generated poems")
	every := flag.Duration("poll", 3*time.Second, "poll interval")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &client{base: *base, token: *token, http: &http.Client{Timeout: 15 * time.Second}}

	params := model.JobParams{
		AcquisitionMode:   model.AcquisitionMode(*mode),
		Topic:             *topic,
		Language:          model.Language(*lang),
		IllustrationStyle: model.IllustrationStyle(*style),
		SourceModel:       *sourceModel,
	}
	var job apiv1.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", params, &job); err != nil {
		log.Fatalf("submit: %v", err)
	}
	log.Printf("submitted job %s", job.ID)

	t := time.NewTicker(*every)
	defer t.Stop()
	lastPhase, lastProgress := "", -1
	for {
		select {
		case <-ctx.Done():
			log.Printf("stopped watching %s; the job keeps running", job.ID)
			return
		case <-t.C:
		}
		if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+job.ID, nil, &job); err != nil {
			log.Printf("poll: %v", err)
			continue
		}
		if job.CurrentPhase != lastPhase || job.Progress != lastProgress {
			log.Printf("%-16s %-12s %3d%%  $%.4f", job.Status, job.CurrentPhase, job.Progress, job.TotalCost)
			lastPhase, lastProgress = job.CurrentPhase, job.Progress
		}
		if model.JobStatus(job.Status).IsTerminal() {
			break
		}
	}

	if job.Status != string(model.JobStatusCompleted) {
		log.Fatalf("job %s ended %s: %s", job.ID, job.Status, job.ErrorMessage)
	}
	var logs []apiv1.ActionLog
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+job.ID+"/logs", nil, &logs); err == nil {
		fmt.Printf("\njob %s completed, poem %s, %d actions logged\n", job.ID, job.PoemID, len(logs))
		for _, l := range logs {
			fmt.Printf("  %s  %-10s %s\n", l.CreatedAt.Format(time.TimeOnly), l.Phase, l.Action)
		}
	}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e apiv1.Error
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
