package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

// autoClock fires every timer immediately and advances its notion of now.
type autoClock struct {
	mu     sync.Mutex
	now    time.Time
	waited []time.Duration
}

func newAutoClock() *autoClock {
	return &autoClock{now: time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *autoClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *autoClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waited = append(c.waited, d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type statusReply struct {
	status *domain.DocumentStatus
	err    error
}

type reportReply struct {
	report *domain.AnalysisReport
	err    error
}

type backendFake struct {
	mu sync.Mutex

	uploadReceipt *domain.UploadReceipt
	uploadErr     error
	uploadedName  string
	uploadedBody  string
	uploadCalls   int

	statuses    []statusReply
	statusCalls int
	// statusGate, when set, holds every status call until a value is received.
	statusGate chan struct{}

	startResult *domain.AnalysisStart
	startErr    error
	startCalls  int
	startReq    domain.AnalysisRequest
	// onStart runs inside StartAnalysis before it returns.
	onStart func()

	reports     []reportReply
	reportCalls int
	// reportFn, when set, answers report calls outside the lock.
	reportFn func(call int) (*domain.AnalysisReport, error)

	listFn    func(ctx context.Context, query domain.PageQuery) (*domain.Page[domain.RawOutcome], error)
	listCalls []domain.PageQuery
}

func (f *backendFake) UploadDocument(_ context.Context, filename string, body io.Reader) (*domain.UploadReceipt, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	f.uploadedName = filename
	f.uploadedBody = string(raw)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadReceipt, nil
}

func (f *backendFake) GetDocumentStatus(_ context.Context, documentID string) (*domain.DocumentStatus, error) {
	f.mu.Lock()
	gate := f.statusGate
	f.mu.Unlock()
	if gate != nil {
		// the reply is delivered even if the caller gave up meanwhile
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return nil, errors.New("no scripted status")
	}
	idx := min(f.statusCalls, len(f.statuses)-1)
	f.statusCalls++
	reply := f.statuses[idx]
	if reply.err != nil {
		return nil, reply.err
	}
	out := *reply.status
	out.DocumentID = documentID
	return &out, nil
}

func (f *backendFake) StartAnalysis(_ context.Context, req domain.AnalysisRequest) (*domain.AnalysisStart, error) {
	f.mu.Lock()
	f.startCalls++
	f.startReq = req
	onStart := f.onStart
	result, err := f.startResult, f.startErr
	f.mu.Unlock()

	if onStart != nil {
		onStart()
	}
	return result, err
}

func (f *backendFake) GetAnalysisReport(_ context.Context, analysisID string) (*domain.AnalysisReport, error) {
	f.mu.Lock()
	if fn := f.reportFn; fn != nil {
		call := f.reportCalls
		f.reportCalls++
		f.mu.Unlock()
		return fn(call)
	}
	defer f.mu.Unlock()
	if len(f.reports) == 0 {
		return nil, errors.New("no scripted report")
	}
	idx := min(f.reportCalls, len(f.reports)-1)
	f.reportCalls++
	reply := f.reports[idx]
	if reply.err != nil {
		return nil, reply.err
	}
	out := *reply.report
	out.AnalysisID = analysisID
	return &out, nil
}

func (f *backendFake) ListOutcomes(ctx context.Context, query domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, query)
	fn := f.listFn
	f.mu.Unlock()
	if fn == nil {
		return nil, errors.New("not implemented")
	}
	return fn(ctx, query)
}

func (f *backendFake) counters() (status, start, report int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.startCalls, f.reportCalls
}

type sessionBackendFake struct {
	mu      sync.Mutex
	data    map[string]map[string]string
	applies int
	drops   int
	loadErr error
}

func newSessionBackendFake() *sessionBackendFake {
	return &sessionBackendFake{data: make(map[string]map[string]string)}
}

func (f *sessionBackendFake) Load(_ context.Context, sessionID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]string)
	for k, v := range f.data[sessionID] {
		out[k] = v
	}
	return out, nil
}

func (f *sessionBackendFake) Apply(_ context.Context, sessionID string, set map[string]string, unset []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applies++
	values := f.data[sessionID]
	if values == nil {
		values = make(map[string]string)
		f.data[sessionID] = values
	}
	for _, key := range unset {
		delete(values, key)
	}
	for k, v := range set {
		values[k] = v
	}
	return nil
}

func (f *sessionBackendFake) Drop(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops++
	delete(f.data, sessionID)
	return nil
}

func (f *sessionBackendFake) value(sessionID, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[sessionID][key]
}

type eventsFake struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
	err    error
}

func (f *eventsFake) Publish(_ context.Context, event domain.LifecycleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *eventsFake) types() []domain.LifecycleEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LifecycleEventType, 0, len(f.events))
	for _, event := range f.events {
		out = append(out, event.Type)
	}
	return out
}

func (f *eventsFake) last(eventType domain.LifecycleEventType) (domain.LifecycleEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Type == eventType {
			return f.events[i], true
		}
	}
	return domain.LifecycleEvent{}, false
}

type inspectorFake struct {
	err error
}

func (f inspectorFake) Inspect(name string, _ io.ReaderAt, size int64) (domain.FileInfo, error) {
	if f.err != nil {
		return domain.FileInfo{}, f.err
	}
	return domain.FileInfo{Name: name, Extension: ".pdf", Size: size}, nil
}

type observerFake struct {
	mu       sync.Mutex
	polls    map[string]int
	finished map[string][]domain.LoopState
	stale    map[string]int
}

func newObserverFake() *observerFake {
	return &observerFake{
		polls:    make(map[string]int),
		finished: make(map[string][]domain.LoopState),
		stale:    make(map[string]int),
	}
}

func (o *observerFake) ObservePoll(loop string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.polls[loop]++
}

func (o *observerFake) ObserveLoopFinished(loop string, state domain.LoopState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished[loop] = append(o.finished[loop], state)
}

func (o *observerFake) ObserveStaleResponse(channel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale[channel]++
}

func (o *observerFake) staleCount(channel string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stale[channel]
}

func processing(total, embedded int) statusReply {
	return statusReply{status: &domain.DocumentStatus{
		Status:             domain.StatusProcessing,
		TotalParagraphs:    total,
		EmbeddedParagraphs: embedded,
	}}
}

func completed(total int) statusReply {
	return statusReply{status: &domain.DocumentStatus{
		Status:             domain.StatusCompleted,
		TotalParagraphs:    total,
		EmbeddedParagraphs: total,
		EmbeddingComplete:  true,
	}}
}

func failed(message string) statusReply {
	return statusReply{status: &domain.DocumentStatus{
		Status:       domain.StatusFailed,
		ErrorMessage: message,
	}}
}

func reportWith(outcomes ...domain.RawOutcome) reportReply {
	return reportReply{report: &domain.AnalysisReport{
		MoeID:             "doc-1",
		RegulationVersion: "2025-09-AMC-GM",
		TotalRequirements: len(outcomes),
		Compliance:        outcomes,
	}}
}

type progressLog struct {
	mu    sync.Mutex
	items []domain.Progress
}

func (p *progressLog) record(progress domain.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, progress)
}

func (p *progressLog) snapshot() []domain.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Progress(nil), p.items...)
}

func hydratedStore(t testing.TB, backend *sessionBackendFake, sessionID string) *IdentityStore {
	t.Helper()
	store := NewIdentityStore(sessionID, backend)
	if err := store.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	return store
}
