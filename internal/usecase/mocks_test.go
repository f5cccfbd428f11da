package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
)

var nopLog = zerolog.Nop()

// ---- repositories ----

type memJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	history []model.JobStatus
	saveErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*model.Job{}}
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	m.track(job.Status)
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) UpdateProgress(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, phase string, progress int, cost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status, j.CurrentPhase, j.Progress, j.TotalCost = status, phase, progress, cost
	m.track(status)
	return nil
}

func (m *memJobRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobRepo) track(s model.JobStatus) {
	if n := len(m.history); n == 0 || m.history[n-1] != s {
		m.history = append(m.history, s)
	}
}

func (m *memJobRepo) statuses() []model.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.JobStatus(nil), m.history...)
}

type memLogRepo struct {
	mu      sync.Mutex
	entries []*model.ActionLog
}

func (m *memLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.ActionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memLogRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string, limit int) ([]*model.ActionLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ActionLog
	for _, e := range m.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLogRepo) find(phase string) *model.ActionLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Phase == phase {
			return e
		}
	}
	return nil
}

type memPoemRepo struct {
	mu      sync.Mutex
	poems   map[string]*model.Poem
	creates int
}

func newMemPoemRepo() *memPoemRepo {
	return &memPoemRepo{poems: map[string]*model.Poem{}}
}

func (m *memPoemRepo) Create(ctx context.Context, tx repository.Tx, p *model.Poem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.poems[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.poems[p.ID] = &cp
	m.creates++
	return nil
}

func (m *memPoemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Poem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.poems[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPoemRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.PoemPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.poems[id]
	if !ok {
		return domain.ErrNotFound
	}
	patch.Apply(p)
	return nil
}

func (m *memPoemRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.poems[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.poems, id)
	return nil
}

func (m *memPoemRepo) FindSimilar(ctx context.Context, tx repository.Tx, keys, fingerprints []string) ([]*model.Poem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in := func(v string, set []string) bool {
		for _, s := range set {
			if v != "" && v == s {
				return true
			}
		}
		return false
	}
	var out []*model.Poem
	for _, p := range m.poems {
		if in(p.DedupKey, keys) || in(p.Fingerprint, fingerprints) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPoemRepo) ListDedupKeys(ctx context.Context, tx repository.Tx, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.poems {
		out = append(out, p.DedupKey)
	}
	return out, nil
}

func (m *memPoemRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.poems)
}

type memCommentRepo struct {
	mu    sync.Mutex
	items []*model.Commentary
}

func (m *memCommentRepo) Create(ctx context.Context, tx repository.Tx, c *model.Commentary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.PoemID == c.PoemID && it.Provider == c.Provider {
			return domain.ErrAlreadyExists
		}
	}
	cp := *c
	m.items = append(m.items, &cp)
	return nil
}

func (m *memCommentRepo) ListCompleted(ctx context.Context, tx repository.Tx, poemID string) ([]*model.Commentary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Commentary
	for _, it := range m.items {
		if it.PoemID == poemID && it.Status == model.CommentaryCompleted {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memSynthesisRepo struct {
	mu     sync.Mutex
	byPoem map[string]*model.Synthesis
}

func newMemSynthesisRepo() *memSynthesisRepo {
	return &memSynthesisRepo{byPoem: map[string]*model.Synthesis{}}
}

func (m *memSynthesisRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Synthesis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byPoem[s.PoemID] = &cp
	return nil
}

func (m *memSynthesisRepo) FindByPoemID(ctx context.Context, tx repository.Tx, poemID string) (*model.Synthesis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byPoem[poemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

type memPubRepo struct {
	mu     sync.Mutex
	byPoem map[string]*model.Publication
}

func newMemPubRepo() *memPubRepo {
	return &memPubRepo{byPoem: map[string]*model.Publication{}}
}

func (m *memPubRepo) Create(ctx context.Context, tx repository.Tx, p *model.Publication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPoem[p.PoemID]; ok {
		return domain.ErrAlreadyExists
	}
	m.byPoem[p.PoemID] = p
	return nil
}

func (m *memPubRepo) FindByPoemID(ctx context.Context, tx repository.Tx, poemID string) (*model.Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byPoem[poemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type memMediaRepo struct {
	mu            sync.Mutex
	illustrations map[string]*model.Illustration
	narrations    map[string]*model.Narration
}

func newMemMediaRepo() *memMediaRepo {
	return &memMediaRepo{illustrations: map[string]*model.Illustration{}, narrations: map[string]*model.Narration{}}
}

func (m *memMediaRepo) SaveIllustration(ctx context.Context, tx repository.Tx, ill *model.Illustration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.illustrations[ill.PoemID] = ill
	return nil
}

func (m *memMediaRepo) HasIllustration(ctx context.Context, tx repository.Tx, poemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.illustrations[poemID]
	return ok, nil
}

func (m *memMediaRepo) SaveNarration(ctx context.Context, tx repository.Tx, n *model.Narration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.narrations[n.PoemID] = n
	return nil
}

func (m *memMediaRepo) HasNarration(ctx context.Context, tx repository.Tx, poemID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.narrations[poemID]
	return ok, nil
}

// ---- generators ----

const (
	analysisJSON   = `{"literaryAnalysis":"iambic","thematicAnalysis":"solitude","emotionalAnalysis":"calm","culturalAnalysis":"romantic"}`
	comparisonJSON = `{"comparisonContent":"They agree.","agreements":["tone"],"disagreements":["meter"],"insights":[{"model":"CLAUDE","insight":"x"}]}`
	vocabJSON      = `[{"word":"Lonely","definition":"alone"},{"word":"lonely","definition":"dup"}]`
	linesJSON      = `[{"line":"I wandered lonely as a cloud","explanation":"walked alone"}]`
	poemJSON       = `{"title":"Quiet Hours","content":"The room is still\nthe lamp is low\nI think of you","themes":["solitude","reflection"]}`
	verifiedJSON   = `{"status":"verified","reason":"matches","sourceUrl":"https://example.org/poem"}`
)

// scriptedGen answers by prompt kind. fail makes every call error; a
// per-kind override replaces the canned answer.
type scriptedGen struct {
	provider model.Provider
	model    string
	fail     bool
	cost     float64

	mu        sync.Mutex
	overrides map[string][]string
	calls     map[string]int
	prompts   map[string][]string
}

func newGen(p model.Provider) *scriptedGen {
	return &scriptedGen{provider: p, model: strings.ToLower(string(p)) + "-test", cost: 0.01, overrides: map[string][]string{}, calls: map[string]int{}, prompts: map[string][]string{}}
}

// script queues answers for a prompt kind; the last one repeats.
func (g *scriptedGen) script(kind string, answers ...string) *scriptedGen {
	g.overrides[kind] = answers
	return g
}

func (g *scriptedGen) Provider() model.Provider { return g.provider }
func (g *scriptedGen) Model() string            { return g.model }

func (g *scriptedGen) Generate(ctx context.Context, prompt string, opts adapter.GenerateOptions) (adapter.Generation, error) {
	kind := promptKind(prompt)
	g.mu.Lock()
	n := g.calls[kind]
	g.calls[kind]++
	g.prompts[kind] = append(g.prompts[kind], prompt)
	answers := g.overrides[kind]
	g.mu.Unlock()

	if g.fail {
		return adapter.Generation{}, fmt.Errorf("%s: boom", g.provider)
	}
	text := cannedAnswer(kind)
	if len(answers) > 0 {
		if n >= len(answers) {
			n = len(answers) - 1
		}
		text = answers[n]
	}
	return adapter.Generation{Text: text, CostUSD: g.cost, Model: g.model, FinishReason: "stop", Usage: adapter.Usage{TotalTokens: 10}}, nil
}

func (g *scriptedGen) callCount(kind string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[kind]
}

func (g *scriptedGen) promptsFor(kind string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts[kind]...)
}

func promptKind(p string) string {
	switch {
	case strings.Contains(p, "literary critic and poetry analyst"):
		return "analysis"
	case strings.Contains(p, "meta-critic"):
		return "comparison"
	case strings.Contains(p, "not basic everyday vocabulary"):
		return "vocabulary"
	case strings.Contains(p, "For each line of this poem"):
		return "lines"
	case strings.Contains(p, "Write an original poem"):
		return "generate"
	case strings.Contains(p, "Based on this research about poems"):
		return "extract"
	case strings.Contains(p, "You are verifying whether"):
		return "verify"
	}
	return "unknown"
}

func cannedAnswer(kind string) string {
	switch kind {
	case "analysis":
		return analysisJSON
	case "comparison":
		return comparisonJSON
	case "vocabulary":
		return vocabJSON
	case "lines":
		return linesJSON
	case "generate", "extract":
		return poemJSON
	case "verify":
		return verifiedJSON
	}
	return "{}"
}

// fakeResolver resolves by model id or provider tag.
type fakeResolver struct {
	gens []*scriptedGen
}

func (r *fakeResolver) Resolve(id string) (adapter.TextGenerator, error) {
	for _, g := range r.gens {
		if g.model == id || string(g.provider) == id {
			return g, nil
		}
	}
	if id == "" && len(r.gens) > 0 {
		return r.gens[0], nil
	}
	return nil, fmt.Errorf("model %q: %w", id, domain.ErrProviderUnavailable)
}

func (r *fakeResolver) Commentators() []adapter.TextGenerator {
	out := make([]adapter.TextGenerator, 0, len(r.gens))
	for _, g := range r.gens {
		out = append(out, g)
	}
	return out
}

// ---- research, catalog, registry ----

type fakeResearcher struct {
	err   error
	calls int
}

func (f *fakeResearcher) Research(ctx context.Context, query string, opts adapter.ResearchOptions) (adapter.ResearchResult, error) {
	f.calls++
	if f.err != nil {
		return adapter.ResearchResult{}, f.err
	}
	return adapter.ResearchResult{
		Answer:  "The poem reads...",
		Sources: []adapter.Source{{URL: "https://example.org/poem", Snippet: "text"}},
		Tool:    "fake",
		CostUSD: 0.005,
	}, nil
}

type fakeCatalog struct {
	poem  *adapter.CatalogPoem
	calls int
}

func (f *fakeCatalog) Find(ctx context.Context, themes []string, exclude func(title, author string) bool) (*adapter.CatalogPoem, error) {
	f.calls++
	if f.poem == nil || exclude(f.poem.Title, f.poem.Author) {
		return nil, domain.ErrNotFound
	}
	return f.poem, nil
}

type fakeRegistry struct {
	entry *model.RegistryEntry
}

func (f *fakeRegistry) Pick(ctx context.Context, lang model.Language) (*model.RegistryEntry, error) {
	if f.entry == nil || f.entry.Language != lang {
		return nil, domain.ErrNotFound
	}
	return f.entry, nil
}

// ---- media ----

type fakeIllustrator struct {
	style model.IllustrationStyle
	err   error
	calls int
}

func (f *fakeIllustrator) Style() model.IllustrationStyle { return f.style }

func (f *fakeIllustrator) Illustrate(ctx context.Context, req adapter.IllustrationRequest) (adapter.IllustrationResult, error) {
	f.calls++
	if f.err != nil {
		return adapter.IllustrationResult{}, f.err
	}
	return adapter.IllustrationResult{Image: []byte("<svg/>"), MimeType: "image/svg+xml", CostUSD: 0.002}, nil
}

type fakeSpeech struct {
	err error
}

func (f *fakeSpeech) Voices() []adapter.Voice { return []adapter.Voice{{ID: "v1", Name: "Lily"}} }

func (f *fakeSpeech) Synthesize(ctx context.Context, req adapter.SpeechRequest) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("voice:" + req.Voice.ID), nil
}

type fakeMusic struct {
	err      error
	duration time.Duration
}

func (f *fakeMusic) Compose(ctx context.Context, prompt string, d time.Duration) ([]byte, error) {
	f.duration = d
	if f.err != nil {
		return nil, f.err
	}
	return []byte("music"), nil
}

type fakeMixer struct{}

func (fakeMixer) Mix(ctx context.Context, voice, music []byte) ([]byte, error) {
	return append(append([]byte{}, voice...), music...), nil
}

// ---- broker ----

type fakeBroker struct {
	mu        sync.Mutex
	waiting   map[string]model.JobParams
	active    map[string]bool
	failed    map[string]bool
	cancelled map[string]bool
	addErr    error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		waiting:   map[string]model.JobParams{},
		active:    map[string]bool{},
		failed:    map[string]bool{},
		cancelled: map[string]bool{},
	}
}

func (b *fakeBroker) Add(ctx context.Context, id string, p model.JobParams) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.addErr != nil {
		return "", b.addErr
	}
	if _, ok := b.waiting[id]; ok {
		return "", domain.ErrAlreadyExists
	}
	b.waiting[id] = p
	return "pq:test:" + id, nil
}

func (b *fakeBroker) Cancel(ctx context.Context, id string) (adapter.CancelResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.waiting[id]; ok {
		delete(b.waiting, id)
		return adapter.CancelRemoved, nil
	}
	if b.active[id] {
		b.cancelled[id] = true
		return adapter.CancelFlagged, nil
	}
	return adapter.CancelNotFound, nil
}

func (b *fakeBroker) IsCancelled(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled[id], nil
}

func (b *fakeBroker) Retry(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.failed[id] {
		return false, nil
	}
	delete(b.failed, id)
	b.waiting[id] = model.JobParams{}
	return true, nil
}

func (b *fakeBroker) Counts(ctx context.Context) (adapter.QueueCounts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return adapter.QueueCounts{Waiting: int64(len(b.waiting)), Active: int64(len(b.active)), Failed: int64(len(b.failed))}, nil
}

func (b *fakeBroker) Obliterate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiting = map[string]model.JobParams{}
	b.active = map[string]bool{}
	b.failed = map[string]bool{}
	return nil
}

// cancelAfter reports a cancel once n checks have passed.
type cancelAfter struct {
	n     int
	calls int
}

func (c *cancelAfter) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	c.calls++
	return c.calls > c.n, nil
}

// ---- pipeline fixture ----

type recordingObserver struct {
	mu     sync.Mutex
	fanout map[string]int
}

func (o *recordingObserver) ObservePhase(string, string, time.Duration) {}

func (o *recordingObserver) FanoutOutcome(provider, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fanout == nil {
		o.fanout = map[string]int{}
	}
	o.fanout[outcome]++
}

type pipeline struct {
	jobs      *memJobRepo
	logs      *memLogRepo
	poems     *memPoemRepo
	comments  *memCommentRepo
	syntheses *memSynthesisRepo
	pubs      *memPubRepo
	media     *memMediaRepo
	claude    *scriptedGen
	gpt       *scriptedGen
	gemini    *scriptedGen
	research  *fakeResearcher
	catalog   *fakeCatalog
	observer  *recordingObserver
	agent     *Agent
}

// newPipeline wires every phase over in-memory fakes. Verification is off
// unless verify is set.
func newPipeline(verify *VerifyPolicy) *pipeline {
	p := &pipeline{
		jobs:      newMemJobRepo(),
		logs:      &memLogRepo{},
		poems:     newMemPoemRepo(),
		comments:  &memCommentRepo{},
		syntheses: newMemSynthesisRepo(),
		pubs:      newMemPubRepo(),
		media:     newMemMediaRepo(),
		claude:    newGen(model.ProviderClaude),
		gpt:       newGen(model.ProviderGPT),
		gemini:    newGen(model.ProviderGemini),
		research:  &fakeResearcher{},
		catalog:   &fakeCatalog{},
		observer:  &recordingObserver{},
	}
	gens := &fakeResolver{gens: []*scriptedGen{p.claude, p.gpt, p.gemini}}
	acq := NewAcquirer(p.poems, gens, p.research, p.catalog, nil, AcquireConfig{DefaultSourceModel: "CLAUDE"}, &nopLog)
	policy := VerifyPolicy{}
	if verify != nil {
		policy = *verify
	}
	phases := Phases{
		Acquire: acq,
		Verify:  NewVerifier(p.poems, gens, p.research, acq, policy, "CLAUDE", &nopLog),
		Illustrate: NewIllustrate(p.media, []adapter.Illustrator{
			&fakeIllustrator{style: model.StyleMinimalist},
			&fakeIllustrator{style: model.StyleDalle},
		}, &nopLog),
		Narrate: NewNarrate(p.media, &fakeSpeech{}, &fakeMusic{}, fakeMixer{}, &nopLog),
		Analyze: NewAnalyze(p.comments, gens, p.observer, &nopLog),
		Gloss:   NewGloss(p.poems, gens, []string{"GEMINI", "CLAUDE"}, &nopLog),
		Compare: NewCompare(p.comments, p.syntheses, gens, "CLAUDE", &nopLog),
		Publish: NewPublish(p.pubs, &nopLog),
	}
	p.agent = NewAgent(p.jobs, p.logs, phases, p.observer, &nopLog)
	return p
}

// submit stores a fresh job the way the job use case does.
func (p *pipeline) submit(params model.JobParams) *model.Job {
	job, err := model.NewJob(params)
	if err != nil {
		panic(err)
	}
	if err := p.jobs.Save(context.Background(), repository.NoTX, job); err != nil {
		panic(err)
	}
	return job
}

var errBoom = errors.New("boom")
