package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

type LifecycleDeps struct {
	Identity  *IdentityStore
	Uploader  *UploadDocumentUseCase
	Analysis  *StartAnalysisUseCase
	Poller    *StatusPoller
	Readiness *ReadinessDetector
	Events    ports.EventPublisher
	Clock     ports.Clock
	Logger    *slog.Logger
}

// Lifecycle owns the running loops of one session. Starting a status loop
// cancels the previous status and readiness loops; starting a readiness
// loop cancels the previous readiness loop.
type Lifecycle struct {
	identity  *IdentityStore
	uploader  *UploadDocumentUseCase
	analysis  *StartAnalysisUseCase
	poller    *StatusPoller
	readiness *ReadinessDetector
	events    ports.EventPublisher
	clock     ports.Clock
	logger    *slog.Logger

	mu         sync.Mutex
	statusTask *Task[*domain.DocumentStatus]
	statusGen  uint64
	reportTask *Task[*domain.AnalysisReport]
	reportGen  uint64

	stateMu     sync.Mutex
	progress    domain.Progress
	progressGen uint64
	lastErr     string
}

func NewLifecycle(deps LifecycleDeps) *Lifecycle {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Lifecycle{
		identity:  deps.Identity,
		uploader:  deps.Uploader,
		analysis:  deps.Analysis,
		poller:    deps.Poller,
		readiness: deps.Readiness,
		events:    deps.Events,
		clock:     deps.Clock,
		logger:    deps.Logger.With("session_id", deps.Identity.SessionID()),
	}
}

func (l *Lifecycle) Identity() *IdentityStore {
	return l.identity
}

// Hydrate loads the persisted identities if that has not happened yet.
func (l *Lifecycle) Hydrate(ctx context.Context) error {
	if l.identity.IsHydrated() {
		return nil
	}
	return l.identity.Hydrate(ctx)
}

// Upload submits a file and starts watching its ingestion. The analysis is
// left to the caller or to a worker.
func (l *Lifecycle) Upload(
	ctx context.Context,
	file domain.UploadFile,
	onProgress func(domain.Progress),
) (*domain.UploadReceipt, *Task[*domain.DocumentStatus], error) {
	return l.upload(ctx, file, onProgress, UploadOptions{})
}

func (l *Lifecycle) upload(
	ctx context.Context,
	file domain.UploadFile,
	onProgress func(domain.Progress),
	opts UploadOptions,
) (*domain.UploadReceipt, *Task[*domain.DocumentStatus], error) {
	if err := l.Hydrate(ctx); err != nil {
		return nil, nil, err
	}
	receipt, err := l.uploader.Upload(ctx, file, opts)
	if err != nil {
		l.recordError(err)
		return nil, nil, err
	}
	task := l.WatchDocument(ctx, receipt.DocumentID, WatchOptions{OnProgress: onProgress})
	return receipt, task, nil
}

// WatchDocument starts a status loop for documentID, replacing any running one.
// Progress from a replaced loop never reaches the session state.
func (l *Lifecycle) WatchDocument(ctx context.Context, documentID string, opts WatchOptions) *Task[*domain.DocumentStatus] {
	l.mu.Lock()
	prevStatus, prevReport := l.statusTask, l.reportTask
	l.statusTask = nil
	l.reportTask = nil
	l.statusGen++
	l.reportGen++
	gen := l.statusGen
	l.mu.Unlock()

	cancelTask(prevStatus)
	cancelTask(prevReport)

	l.stateMu.Lock()
	l.progress = domain.Progress{}
	l.progressGen = gen
	l.lastErr = ""
	l.stateMu.Unlock()

	opts.OnProgress = l.progressSink(gen, opts.OnProgress)
	task := l.poller.Watch(ctx, documentID, opts)

	l.mu.Lock()
	current := l.statusGen == gen
	if current {
		l.statusTask = task
	}
	l.mu.Unlock()
	if !current {
		// superseded while starting
		task.Cancel()
		return task
	}

	go l.followStatus(ctx, gen, documentID, task)
	return task
}

// progressSink records progress for generation gen and forwards it to next.
func (l *Lifecycle) progressSink(gen uint64, next func(domain.Progress)) func(domain.Progress) {
	return func(progress domain.Progress) {
		l.stateMu.Lock()
		if l.progressGen == gen {
			l.progress = progress
		}
		l.stateMu.Unlock()
		if next != nil {
			next(progress)
		}
	}
}

// StartAnalysis triggers the analysis and starts its readiness loop.
func (l *Lifecycle) StartAnalysis(ctx context.Context) (string, *Task[*domain.AnalysisReport], error) {
	if err := l.Hydrate(ctx); err != nil {
		return "", nil, err
	}
	analysisID, err := l.analysis.StartAnalysis(ctx)
	if err != nil {
		l.recordError(err)
		return "", nil, err
	}
	return analysisID, l.WatchReport(ctx, analysisID), nil
}

// WatchReport starts a readiness loop for analysisID, replacing any running one.
func (l *Lifecycle) WatchReport(ctx context.Context, analysisID string) *Task[*domain.AnalysisReport] {
	task := l.readiness.Watch(ctx, analysisID)

	l.mu.Lock()
	prev := l.reportTask
	l.reportTask = task
	l.reportGen++
	gen := l.reportGen
	l.mu.Unlock()

	cancelTask(prev)

	go l.followReport(ctx, gen, analysisID, task)
	return task
}

// Run drives a file through upload, ingestion, analysis and readiness.
func (l *Lifecycle) Run(ctx context.Context, file domain.UploadFile, onProgress func(domain.Progress)) (*domain.AnalysisReport, error) {
	_, statusTask, err := l.upload(ctx, file, onProgress, UploadOptions{Driven: true})
	if err != nil {
		return nil, err
	}
	return l.continueFromStatus(ctx, statusTask)
}

type ResumeOptions struct {
	Placeholder bool
	OnProgress  func(domain.Progress)
}

// Resume continues from whatever stage the persisted session is in.
func (l *Lifecycle) Resume(ctx context.Context, opts ResumeOptions) (*domain.AnalysisReport, error) {
	if err := l.Hydrate(ctx); err != nil {
		return nil, err
	}

	if analysisID, ok := l.identity.AnalysisID(); ok {
		l.logger.Info("session_resumed", "stage", "readiness", "analysis_id", analysisID)
		return l.WatchReport(ctx, analysisID).Wait(ctx)
	}

	documentID, ok := l.identity.DocumentID()
	if !ok {
		return nil, domain.WrapError(domain.ErrNoSession, "resume session", errors.New(l.identity.SessionID()))
	}
	l.logger.Info("session_resumed", "stage", "status", "document_id", documentID)
	statusTask := l.WatchDocument(ctx, documentID, WatchOptions{
		Placeholder: opts.Placeholder,
		OnProgress:  opts.OnProgress,
	})
	return l.continueFromStatus(ctx, statusTask)
}

func (l *Lifecycle) continueFromStatus(ctx context.Context, statusTask *Task[*domain.DocumentStatus]) (*domain.AnalysisReport, error) {
	if _, err := statusTask.Wait(ctx); err != nil {
		return nil, err
	}
	_, reportTask, err := l.StartAnalysis(ctx)
	if err != nil {
		return nil, err
	}
	return reportTask.Wait(ctx)
}

// Cancel stops both loops without touching persisted identities.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	statusTask, reportTask := l.statusTask, l.reportTask
	l.statusGen++
	l.reportGen++
	l.mu.Unlock()

	cancelTask(statusTask)
	cancelTask(reportTask)
}

// Reset cancels all loops and forgets the session.
func (l *Lifecycle) Reset(ctx context.Context) error {
	l.Cancel()

	l.stateMu.Lock()
	l.progress = domain.Progress{}
	l.progressGen = 0
	l.lastErr = ""
	l.stateMu.Unlock()

	return l.identity.Clear(ctx)
}

func (l *Lifecycle) Snapshot() domain.SessionSnapshot {
	snapshot := domain.SessionSnapshot{
		SessionID:     l.identity.SessionID(),
		StatusLoop:    domain.LoopIdle,
		ReadinessLoop: domain.LoopIdle,
	}
	snapshot.DocumentID, _ = l.identity.DocumentID()
	snapshot.AnalysisID, _ = l.identity.AnalysisID()

	l.mu.Lock()
	if l.statusTask != nil {
		snapshot.StatusLoop = l.statusTask.State()
	}
	if l.reportTask != nil {
		snapshot.ReadinessLoop = l.reportTask.State()
	}
	l.mu.Unlock()

	l.stateMu.Lock()
	snapshot.Progress = l.progress
	snapshot.LastError = l.lastErr
	l.stateMu.Unlock()

	return snapshot
}

func (l *Lifecycle) followStatus(ctx context.Context, gen uint64, documentID string, task *Task[*domain.DocumentStatus]) {
	<-task.Done()
	status, err := task.Wait(context.WithoutCancel(ctx))
	if !l.currentStatus(gen) {
		return
	}

	switch task.State() {
	case domain.LoopSucceeded:
		l.logger.Info("document_ready", "document_id", documentID)
		l.publish(ctx, domain.LifecycleEvent{
			Type:       domain.EventDocumentReady,
			DocumentID: documentID,
		})
	case domain.LoopFailed:
		l.recordError(err)
		l.logger.Warn("document_failed", "document_id", documentID, "error", err)
		if status != nil && status.Status == domain.StatusFailed {
			l.publish(ctx, domain.LifecycleEvent{
				Type:       domain.EventDocumentFailed,
				DocumentID: documentID,
				Message:    err.Error(),
			})
		}
	}
}

func (l *Lifecycle) followReport(ctx context.Context, gen uint64, analysisID string, task *Task[*domain.AnalysisReport]) {
	<-task.Done()
	report, err := task.Wait(context.WithoutCancel(ctx))
	if !l.currentReport(gen) {
		return
	}

	switch task.State() {
	case domain.LoopSucceeded:
		l.logger.Info("analysis_ready", "analysis_id", analysisID, "outcomes", len(report.Compliance))
		documentID, _ := l.identity.DocumentID()
		l.publish(ctx, domain.LifecycleEvent{
			Type:       domain.EventAnalysisReady,
			DocumentID: documentID,
			AnalysisID: analysisID,
		})
	case domain.LoopFailed:
		l.recordError(err)
		l.logger.Warn("analysis_failed", "analysis_id", analysisID, "error", err)
	}
}

func (l *Lifecycle) currentStatus(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusGen == gen
}

func (l *Lifecycle) currentReport(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reportGen == gen
}

func (l *Lifecycle) publish(ctx context.Context, event domain.LifecycleEvent) {
	event.SessionID = l.identity.SessionID()
	event.At = l.clock.Now().UTC()
	publishEvent(ctx, l.events, l.logger, event)
}

func (l *Lifecycle) recordError(err error) {
	if err == nil {
		return
	}
	l.stateMu.Lock()
	l.lastErr = err.Error()
	l.stateMu.Unlock()
}

func cancelTask[T any](task *Task[T]) {
	if task != nil {
		task.Cancel()
	}
}
