// Package service runs the chain analysis pipeline: resolve a seed ticket into
// its chain, order the timeline, compose the prompt, orchestrate both phases
// and persist what they produce. It also fans the pipeline out over batches.
package service

import (
	"context"
	"fmt"
	"time"

	"ticketchain/internal/adapters/storage"
	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/orchestrator"
	"ticketchain/internal/analysis/ports"
	"ticketchain/internal/analysis/store"
	"ticketchain/internal/chains/prompt"
	"ticketchain/internal/chains/timeline"
	"ticketchain/internal/events"
	tickets "ticketchain/internal/tickets/domain"
	"ticketchain/platform/config"
	"ticketchain/platform/logger"
)

const persistTimeout = 30 * time.Second

// ChainResolver expands a seed ticket id into its chain.
type ChainResolver interface {
	Resolve(ctx context.Context, seedID string) (tickets.Chain, error)
}

// Archiver stores the documents handed to a Phase 2 run.
type Archiver interface {
	ArchiveObjects(ctx context.Context, bucket, folder string, objects []storage.Object) ([]string, error)
}

// Settings holds the pipeline-level limits.
type Settings struct {
	// FreshnessWindow is how long a complete result answers repeat requests.
	// Zero disables reuse.
	FreshnessWindow time.Duration
	// RequestTimeout bounds one chain from resolution to persistence.
	RequestTimeout time.Duration
	// ArtifactBucket receives Phase 2 inputs when an Archiver is configured.
	ArtifactBucket string
}

// SettingsFromConfig builds Settings from the loaded configuration.
func SettingsFromConfig(cfg config.OrchestratorConfig, minio config.MinIOConfig) Settings {
	return Settings{
		FreshnessWindow: cfg.GetFreshnessWindow(),
		RequestTimeout:  cfg.GetRequestTimeout(),
		ArtifactBucket:  minio.GetMinioBucketArtifacts(),
	}
}

// AnalyzeOptions are the per-request switches.
type AnalyzeOptions struct {
	Focus prompt.Focus
	// Force skips the freshness check and always calls the model.
	Force      bool
	SkipPhase2 bool
	// Phase2Only skips the narrative. Only mock runs allow it.
	Phase2Only  bool
	Model       string
	AssistantID string
}

// Report is what one pipeline run produced.
type Report struct {
	SeedTicketID   string                  `json:"seedTicketId"`
	ChainID        string                  `json:"chainId"`
	TicketCount    int                     `json:"ticketCount"`
	Partial        bool                    `json:"partial"`
	Unavailable    []string                `json:"unavailable,omitempty"`
	TimelineEvents int                     `json:"timelineEvents"`
	Prompt         *prompt.Document        `json:"prompt,omitempty"`
	Reused         bool                    `json:"reused"`
	State          string                  `json:"state"`
	Results        []domain.AnalysisResult `json:"results"`
	Artifacts      []string                `json:"artifacts,omitempty"`
}

// Failed returns the failed result, if any.
func (r Report) Failed() *domain.AnalysisResult {
	for i := range r.Results {
		if r.Results[i].Status == domain.StatusFailed {
			return &r.Results[i]
		}
	}
	return nil
}

// Dependencies wires the pipeline. Archive and Clock are optional.
type Dependencies struct {
	Resolver     ChainResolver
	Composer     *prompt.Composer
	Orchestrator *orchestrator.Orchestrator
	Store        store.Store
	Bus          events.Bus
	Archive      Archiver
	Clock        ports.Clock
	Log          *logger.Logger
}

// Pipeline runs one chain end to end.
type Pipeline struct {
	resolver ChainResolver
	composer *prompt.Composer
	orch     *orchestrator.Orchestrator
	store    store.Store
	bus      events.Bus
	archive  Archiver
	clock    ports.Clock
	settings Settings
	log      *logger.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(deps Dependencies, settings Settings) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Pipeline{
		resolver: deps.Resolver,
		composer: deps.Composer,
		orch:     deps.Orchestrator,
		store:    deps.Store,
		bus:      deps.Bus,
		archive:  deps.Archive,
		clock:    clock,
		settings: settings,
		log:      deps.Log,
	}
}

// Analyze runs the pipeline for one seed ticket. Model failures are recorded
// on the report's results and do not produce an error; errors are reserved
// for resolution and persistence problems.
func (p *Pipeline) Analyze(ctx context.Context, seedID string, opts AnalyzeOptions) (Report, error) {
	if p.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.settings.RequestTimeout)
		defer cancel()
	}

	chain, err := p.resolver.Resolve(ctx, seedID)
	if err != nil {
		return Report{SeedTicketID: seedID}, err
	}
	log := p.log.WithChain(chain.ID)

	report := Report{
		SeedTicketID: seedID,
		ChainID:      chain.ID,
		TicketCount:  len(chain.Tickets),
		Partial:      chain.Partial,
		Unavailable:  categoryNames(chain.Unavailable),
	}
	p.bus.Publish(ctx, events.ChainResolved{
		BaseEvent:    events.NewBaseEventAt(p.clock.Now()),
		SeedTicketID: seedID,
		ChainID:      chain.ID,
		TicketCount:  len(chain.Tickets),
		Partial:      chain.Partial,
		Unavailable:  report.Unavailable,
	})

	if !opts.Force {
		reused, ok, err := p.reuse(ctx, chain.ID, opts)
		if err != nil {
			return report, err
		}
		if ok {
			report.Reused = true
			report.State = domain.StatePhase2Complete.String()
			if opts.SkipPhase2 {
				report.State = domain.StatePhase1Complete.String()
			}
			report.Results = reused
			log.Info("fresh analysis reused", "analysisId", reused[len(reused)-1].ID)
			return report, nil
		}
	}

	timelineEvents := timeline.Build(chain)
	doc := p.composer.WithFocus(opts.Focus).Compose(chain, timelineEvents)
	report.TimelineEvents = len(timelineEvents)
	report.Prompt = &doc

	req := orchestrator.Request{
		Chain:       chain,
		Prompt:      doc.Text,
		Model:       opts.Model,
		AssistantID: opts.AssistantID,
		SkipPhase1:  opts.Phase2Only,
		SkipPhase2:  opts.SkipPhase2,
	}
	var files []prompt.File
	if !opts.SkipPhase2 {
		files, err = prompt.Files(chain, timelineEvents)
		if err != nil {
			return report, fmt.Errorf("render run files: %w", err)
		}
		req.Files = files
		req.Instructions = prompt.Extraction(chain)
	}

	outcome := p.orch.Run(ctx, req)
	report.State = outcome.State.String()
	report.Results = outcome.Results()

	// The request context may already be spent when the run timed out.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	for _, r := range report.Results {
		if err := p.store.Save(persistCtx, r); err != nil {
			log.DatabaseError("save analysis", err)
			return report, fmt.Errorf("save phase %d analysis: %w", r.Phase, err)
		}
		p.publishResult(persistCtx, r)
	}

	if outcome.Phase2 != nil && p.archive != nil && len(files) > 0 {
		report.Artifacts = p.archiveFiles(persistCtx, chain.ID, outcome.Phase2.ID.String(), files, log)
	}
	return report, nil
}

// reuse returns the fresh complete results answering opts, newest phase last.
func (p *Pipeline) reuse(ctx context.Context, chainID string, opts AnalyzeOptions) ([]domain.AnalysisResult, bool, error) {
	if p.settings.FreshnessWindow <= 0 {
		return nil, false, nil
	}
	want := domain.PhaseExtraction
	if opts.SkipPhase2 {
		want = domain.PhaseNarrative
	}
	latest, ok, err := p.store.LatestComplete(ctx, chainID, want)
	if err != nil {
		return nil, false, fmt.Errorf("look up latest analysis: %w", err)
	}
	if !ok || !p.fresh(latest) || !matchesPin(latest, want, opts) {
		return nil, false, nil
	}

	results := []domain.AnalysisResult{latest}
	if want == domain.PhaseExtraction && !opts.Phase2Only {
		narrative, ok, err := p.store.LatestComplete(ctx, chainID, domain.PhaseNarrative)
		if err != nil {
			return nil, false, fmt.Errorf("look up latest narrative: %w", err)
		}
		if ok && p.fresh(narrative) {
			results = []domain.AnalysisResult{narrative, latest}
		}
	}

	p.bus.Publish(ctx, events.AnalysisReused{
		BaseEvent:  events.NewBaseEventAt(p.clock.Now()),
		AnalysisID: latest.ID,
		ChainID:    chainID,
		Phase:      int(latest.Phase),
		AgeSeconds: int64(p.clock.Now().Sub(latest.CreatedAt) / time.Second),
	})
	return results, true, nil
}

func (p *Pipeline) fresh(r domain.AnalysisResult) bool {
	return p.clock.Now().Sub(r.CreatedAt) < p.settings.FreshnessWindow
}

// matchesPin rejects a stored result made with a different model than the
// one the caller pinned.
func matchesPin(r domain.AnalysisResult, phase domain.Phase, opts AnalyzeOptions) bool {
	pin := opts.Model
	if phase == domain.PhaseExtraction && opts.AssistantID != "" {
		pin = opts.AssistantID
	}
	return pin == "" || r.ModelID == pin
}

func (p *Pipeline) publishResult(ctx context.Context, r domain.AnalysisResult) {
	base := events.NewBaseEventAt(p.clock.Now())
	if r.Status == domain.StatusComplete {
		p.bus.Publish(ctx, events.AnalysisCompleted{
			BaseEvent:  base,
			AnalysisID: r.ID,
			ChainID:    r.ChainID,
			Phase:      int(r.Phase),
			ModelID:    r.ModelID,
		})
		return
	}
	p.bus.Publish(ctx, events.AnalysisFailed{
		BaseEvent:  base,
		AnalysisID: r.ID,
		ChainID:    r.ChainID,
		Phase:      int(r.Phase),
		Reason:     string(r.FailureReason),
		Detail:     r.FailureDetail,
	})
}

// archiveFiles keeps the run inputs next to the result. Archive problems are
// logged; the analysis itself is already stored.
func (p *Pipeline) archiveFiles(ctx context.Context, chainID, analysisID string, files []prompt.File, log *logger.Logger) []string {
	objects := make([]storage.Object, 0, len(files))
	for _, f := range files {
		objects = append(objects, storage.Object{Name: f.Name, Content: f.Content})
	}
	keys, err := p.archive.ArchiveObjects(ctx, p.settings.ArtifactBucket, storage.ArtifactFolder(chainID, analysisID), objects)
	if err != nil {
		log.Warn("archive run files failed", "analysisId", analysisID, "error", err)
		return nil
	}
	return keys
}

func categoryNames(cats []tickets.Category) []string {
	if len(cats) == 0 {
		return nil
	}
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		out = append(out, c.String())
	}
	return out
}
