package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"poetry-pipeline/internal/domain"
	"poetry-pipeline/internal/domain/dedup"
	"poetry-pipeline/internal/domain/model"
	"poetry-pipeline/internal/domain/ports/adapter"
	"poetry-pipeline/internal/domain/ports/repository"
	"poetry-pipeline/internal/domain/structured"
)

// VerifyPolicy decides when found poems are checked against web research.
type VerifyPolicy struct {
	Enabled bool
	// FailOpen treats an unparsable answer or a research outage as verified.
	FailOpen bool
	// ExemptCatalog skips poems taken from the curated catalog.
	ExemptCatalog bool
}

type VerifyStatus string

const (
	VerifySkipped   VerifyStatus = "skipped"
	VerifyVerified  VerifyStatus = "verified"
	VerifyCorrected VerifyStatus = "corrected"
	VerifyRejected  VerifyStatus = "rejected"
)

type VerifyResult struct {
	Status VerifyStatus
	// Poem is the poem to continue with: the same one, the corrected one or a generated substitute.
	Poem   *model.Poem
	Reason string
	Cost   float64
}

type verdict struct {
	Status             string `json:"status"`
	Reason             string `json:"reason"`
	CorrectedTitle     string `json:"correctedTitle"`
	CorrectedTitleHe   string `json:"correctedTitleHe"`
	CorrectedAuthor    string `json:"correctedAuthor"`
	CorrectedAuthorHe  string `json:"correctedAuthorHe"`
	CorrectedContent   string `json:"correctedContent"`
	CorrectedContentHe string `json:"correctedContentHe"`
	SourceURL          string `json:"sourceUrl"`
}

type Verifier struct {
	poems    repository.PoemRepository
	gens     adapter.GeneratorResolver
	research adapter.Researcher
	acquirer *Acquirer
	policy   VerifyPolicy
	model    string
	log      *zerolog.Logger
}

func NewVerifier(poems repository.PoemRepository, gens adapter.GeneratorResolver, research adapter.Researcher, acquirer *Acquirer, policy VerifyPolicy, modelID string, logger *zerolog.Logger) *Verifier {
	return &Verifier{
		poems:    poems,
		gens:     gens,
		research: research,
		acquirer: acquirer,
		policy:   policy,
		model:    modelID,
		log:      logger,
	}
}

// Skips reports whether a poem acquired by strategy needs no verification.
// Only poems fetched in this run are checked; a reused poem was checked when
// it was first acquired.
func (v *Verifier) Skips(poem *model.Poem, strategy string) bool {
	switch {
	case !v.policy.Enabled, v.research == nil:
		return true
	case poem.Provenance == model.ProvenanceGenerated:
		return true
	case strategy == StrategyExisting, strategy == StrategyGenerate:
		return true
	case strategy == StrategyCatalog && v.policy.ExemptCatalog:
		return true
	}
	return false
}

// Verify confirms, corrects or rejects a found poem. A rejected poem is
// deleted and replaced by a generated one.
func (v *Verifier) Verify(ctx context.Context, poem *model.Poem, strategy string) (*VerifyResult, error) {
	if v.Skips(poem, strategy) {
		return &VerifyResult{Status: VerifySkipped, Poem: poem}, nil
	}

	title, author, content := poem.DisplayTitle(), poem.DisplayAuthor(), poem.DisplayContent()
	res, err := v.research.Research(ctx, verificationQuery(title, author, poem.Language), adapter.ResearchOptions{
		MaxResults: 5,
		Context:    "Verifying poem attribution and text accuracy",
	})
	if err != nil {
		return v.unverifiable(ctx, poem, 0, fmt.Sprintf("research failed: %v", err))
	}
	cost := res.CostUSD

	gen, err := v.gens.Resolve(v.model)
	if err != nil {
		return v.unverifiable(ctx, poem, cost, err.Error())
	}
	out, err := gen.Generate(ctx, verificationPrompt(title, author, content, res), adapter.GenerateOptions{
		Temperature: 0.1,
		JSON:        true,
	})
	if err != nil {
		return v.unverifiable(ctx, poem, cost, fmt.Sprintf("verifier failed: %v", err))
	}
	cost += out.CostUSD

	vd, ok := structured.Decode[verdict](out.Text, verifySchema)
	if !ok {
		return v.unverifiable(ctx, poem, cost, "unparsable verification response")
	}

	switch VerifyStatus(vd.Status) {
	case VerifyVerified:
		if vd.SourceURL != "" && vd.SourceURL != poem.SourceURL {
			if err := v.poems.Update(ctx, repository.NoTX, poem.ID, model.PoemPatch{SourceURL: &vd.SourceURL}); err != nil {
				return nil, err
			}
			poem.SourceURL = vd.SourceURL
		}
		v.log.Info().Str("poem_id", poem.ID).Str("title", title).Msg("poem verified")
		return &VerifyResult{Status: VerifyVerified, Poem: poem, Reason: vd.Reason, Cost: cost}, nil

	case VerifyCorrected:
		patch := vd.patch()
		if !patch.IsEmpty() {
			next := *poem
			patch.Apply(&next)
			key, fp := dedup.Key(next.Title, next.Author), dedup.ContentFingerprint(next.Content)
			patch.DedupKey, patch.Fingerprint = &key, &fp
			if err := v.poems.Update(ctx, repository.NoTX, poem.ID, patch); err != nil {
				return nil, err
			}
			patch.Apply(poem)
		}
		v.log.Info().Str("poem_id", poem.ID).Str("reason", vd.Reason).Msg("poem corrected")
		return &VerifyResult{Status: VerifyCorrected, Poem: poem, Reason: vd.Reason, Cost: cost}, nil

	default:
		return v.reject(ctx, poem, cost, vd.Reason)
	}
}

func (v *Verifier) unverifiable(ctx context.Context, poem *model.Poem, cost float64, reason string) (*VerifyResult, error) {
	if v.policy.FailOpen {
		v.log.Warn().Str("poem_id", poem.ID).Str("reason", reason).Msg("verification inconclusive, treating as verified")
		return &VerifyResult{Status: VerifyVerified, Poem: poem, Reason: reason, Cost: cost}, nil
	}
	return v.reject(ctx, poem, cost, reason)
}

func (v *Verifier) reject(ctx context.Context, poem *model.Poem, cost float64, reason string) (*VerifyResult, error) {
	v.log.Info().Str("poem_id", poem.ID).Str("title", poem.Title).Str("reason", reason).Msg("poem rejected, generating substitute")
	if err := v.poems.Delete(ctx, repository.NoTX, poem.ID); err != nil {
		return nil, fmt.Errorf("delete rejected poem: %w", err)
	}
	sub, genCost, err := v.acquirer.Generate(ctx, poem.Themes, poem.Language, "")
	cost += genCost
	if err != nil {
		return nil, fmt.Errorf("substitute for rejected poem: %v: %w", err, domain.ErrNoArtifact)
	}
	return &VerifyResult{Status: VerifyRejected, Poem: sub, Reason: reason, Cost: cost}, nil
}

func (vd verdict) patch() model.PoemPatch {
	var p model.PoemPatch
	opt := func(s string) *string {
		if s == "" {
			return nil
		}
		return &s
	}
	p.Title = opt(vd.CorrectedTitle)
	p.TitleHe = opt(vd.CorrectedTitleHe)
	p.Author = opt(vd.CorrectedAuthor)
	p.AuthorHe = opt(vd.CorrectedAuthorHe)
	p.Content = opt(vd.CorrectedContent)
	p.ContentHe = opt(vd.CorrectedContentHe)
	p.SourceURL = opt(vd.SourceURL)
	return p
}
