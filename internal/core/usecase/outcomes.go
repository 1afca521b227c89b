package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

const (
	channelPage   = "page"
	channelCounts = "counts"
)

type OutcomeService struct {
	backend  ports.ComplianceBackend
	observer ports.PipelineObserver
	pageSize int
	logger   *slog.Logger
}

func NewOutcomeService(
	backend ports.ComplianceBackend,
	observer ports.PipelineObserver,
	pageSize int,
	logger *slog.Logger,
) *OutcomeService {
	if observer == nil {
		observer = noopObserver{}
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutcomeService{
		backend:  backend,
		observer: observer,
		pageSize: pageSize,
		logger:   logger,
	}
}

func (s *OutcomeService) PageSize() int {
	return s.pageSize
}

// Counts tallies the unfiltered report. A failed fetch is logged and
// reported through ok=false; counts are never a blocking error.
func (s *OutcomeService) Counts(ctx context.Context, analysisID string) (domain.StatusCounts, bool) {
	report, err := s.backend.GetAnalysisReport(ctx, analysisID)
	if err != nil {
		s.logger.Warn("outcome_counts_failed", "analysis_id", analysisID, "error", err)
		return domain.StatusCounts{}, false
	}

	var counts domain.StatusCounts
	for _, outcome := range report.Compliance {
		counts.Add(outcome.Status)
	}
	return counts, true
}

func (s *OutcomeService) Page(ctx context.Context, query domain.PageQuery) (*domain.Page[domain.ComplianceOutcome], error) {
	if query.AnalysisID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list outcomes", errors.New("empty analysis id"))
	}
	if query.Page < 0 {
		query.Page = 0
	}
	if query.Size <= 0 {
		query.Size = s.pageSize
	}

	raw, err := s.backend.ListOutcomes(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}

	return &domain.Page[domain.ComplianceOutcome]{
		Content:       NormalizeOutcomes(raw.Content),
		TotalElements: raw.TotalElements,
		TotalPages:    raw.TotalPages,
		Size:          raw.Size,
		Number:        raw.Number,
		First:         raw.First,
		Last:          raw.Last,
	}, nil
}

// All returns every outcome of the analysis, unfiltered and normalized.
func (s *OutcomeService) All(ctx context.Context, analysisID string) ([]domain.ComplianceOutcome, error) {
	report, err := s.backend.GetAnalysisReport(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("fetch analysis report: %w", err)
	}
	return NormalizeOutcomes(report.Compliance), nil
}

func (s *OutcomeService) NewView(analysisID string) *OutcomeView {
	return &OutcomeView{
		service:    s,
		analysisID: analysisID,
		size:       s.pageSize,
		viewed:     make(map[string]struct{}),
	}
}

type OutcomeFilter struct {
	Status       domain.ComplianceStatus
	FindingLevel string
}

// ViewState is a consistent snapshot of an OutcomeView.
type ViewState struct {
	Filter   OutcomeFilter
	Page     int
	Size     int
	Result   *domain.Page[domain.ComplianceOutcome]
	Counts   domain.StatusCounts
	CountsOK bool
	Viewed   map[string]bool
}

// sequencer implements last-request-wins for one response channel.
type sequencer struct {
	issued atomic.Uint64
}

func (s *sequencer) next() uint64 {
	return s.issued.Add(1)
}

func (s *sequencer) latest(seq uint64) bool {
	return s.issued.Load() == seq
}

// OutcomeView is the stateful, paginated outcome browser. Responses that
// arrive after a newer request on the same channel are discarded.
type OutcomeView struct {
	service    *OutcomeService
	analysisID string

	pageSeq   sequencer
	countsSeq sequencer

	mu       sync.Mutex
	filter   OutcomeFilter
	page     int
	size     int
	result   *domain.Page[domain.ComplianceOutcome]
	counts   domain.StatusCounts
	countsOK bool
	viewed   map[string]struct{}
}

// SetFilter applies a new filter and jumps back to the first page.
func (v *OutcomeView) SetFilter(ctx context.Context, filter OutcomeFilter) error {
	v.mu.Lock()
	v.filter = filter
	v.page = 0
	v.mu.Unlock()
	return v.loadPage(ctx, true)
}

func (v *OutcomeView) SetPage(ctx context.Context, page int) error {
	if page < 0 {
		return domain.WrapError(domain.ErrInvalidInput, "set page", fmt.Errorf("negative page %d", page))
	}
	v.mu.Lock()
	v.page = page
	v.mu.Unlock()
	return v.loadPage(ctx, true)
}

// Refresh reloads counts and the current page.
func (v *OutcomeView) Refresh(ctx context.Context) error {
	v.loadCounts(ctx)
	return v.loadPage(ctx, true)
}

// ToggleViewed flips the local viewed mark and returns the new value.
func (v *OutcomeView) ToggleViewed(requirementID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.viewed[requirementID]; ok {
		delete(v.viewed, requirementID)
		return false
	}
	v.viewed[requirementID] = struct{}{}
	return true
}

func (v *OutcomeView) Current() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()

	viewed := make(map[string]bool, len(v.viewed))
	for id := range v.viewed {
		viewed[id] = true
	}
	return ViewState{
		Filter:   v.filter,
		Page:     v.page,
		Size:     v.size,
		Result:   v.result,
		Counts:   v.counts,
		CountsOK: v.countsOK,
		Viewed:   viewed,
	}
}

func (v *OutcomeView) loadCounts(ctx context.Context) {
	seq := v.countsSeq.next()
	counts, ok := v.service.Counts(ctx, v.analysisID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.countsSeq.latest(seq) {
		v.service.observer.ObserveStaleResponse(channelCounts)
		return
	}
	v.counts = counts
	v.countsOK = ok
}

func (v *OutcomeView) loadPage(ctx context.Context, mayClamp bool) error {
	seq := v.pageSeq.next()

	v.mu.Lock()
	query := domain.PageQuery{
		AnalysisID:   v.analysisID,
		Page:         v.page,
		Size:         v.size,
		Status:       v.filter.Status,
		FindingLevel: v.filter.FindingLevel,
	}
	v.mu.Unlock()

	result, err := v.service.Page(ctx, query)

	v.mu.Lock()
	if !v.pageSeq.latest(seq) {
		v.mu.Unlock()
		v.service.observer.ObserveStaleResponse(channelPage)
		return nil
	}
	if err != nil {
		v.mu.Unlock()
		return err
	}
	if mayClamp && result.TotalElements > 0 && query.Page >= result.TotalPages {
		v.page = result.TotalPages - 1
		v.mu.Unlock()
		return v.loadPage(ctx, false)
	}
	v.result = result
	v.mu.Unlock()
	return nil
}
