package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

func pageOf(query domain.PageQuery, total int) *domain.Page[domain.RawOutcome] {
	totalPages := (total + query.Size - 1) / query.Size
	content := []domain.RawOutcome{}
	for i := query.Page * query.Size; i < min(total, (query.Page+1)*query.Size); i++ {
		content = append(content, domain.RawOutcome{
			RequirementID: "req-" + string(rune('a'+i)),
			Status:        domain.CompliancePartial,
			Evidence:      []domain.RawEvidence{{Text: "excerpt"}},
		})
	}
	return &domain.Page[domain.RawOutcome]{
		Content:       content,
		TotalElements: int64(total),
		TotalPages:    totalPages,
		Size:          query.Size,
		Number:        query.Page,
		First:         query.Page == 0,
		Last:          query.Page >= totalPages-1,
	}
}

func TestOutcomeCounts(t *testing.T) {
	backend := &backendFake{reports: []reportReply{reportWith(
		domain.RawOutcome{Status: domain.ComplianceFull},
		domain.RawOutcome{Status: domain.ComplianceFull},
		domain.RawOutcome{Status: domain.CompliancePartial},
		domain.RawOutcome{Status: domain.ComplianceNone},
		domain.RawOutcome{Status: "unknown"},
	)}}
	svc := NewOutcomeService(backend, nil, 10, nil)

	counts, ok := svc.Counts(context.Background(), "an-1")
	if !ok {
		t.Fatalf("expected counts to be available")
	}
	if counts != (domain.StatusCounts{Full: 2, Partial: 1, Non: 1}) {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestOutcomeCountsFailureIsNotFatal(t *testing.T) {
	backend := &backendFake{reports: []reportReply{{err: errors.New("boom")}}}
	svc := NewOutcomeService(backend, nil, 10, nil)

	counts, ok := svc.Counts(context.Background(), "an-1")
	if ok {
		t.Fatalf("expected ok=false")
	}
	if counts.Total() != 0 {
		t.Fatalf("expected zero counts, got %+v", counts)
	}
}

func TestOutcomePageNormalizesAndDefaultsSize(t *testing.T) {
	backend := &backendFake{listFn: func(_ context.Context, q domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
		return pageOf(q, 3), nil
	}}
	svc := NewOutcomeService(backend, nil, 10, nil)

	page, err := svc.Page(context.Background(), domain.PageQuery{AnalysisID: "an-1", Page: -1})
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if backend.listCalls[0].Size != 10 || backend.listCalls[0].Page != 0 {
		t.Fatalf("unexpected query %+v", backend.listCalls[0])
	}
	if len(page.Content) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(page.Content))
	}
	first := page.Content[0]
	if len(first.Evidence) != 1 || first.Evidence[0].RelevantExcerpt != "excerpt" {
		t.Fatalf("expected normalized evidence, got %+v", first.Evidence)
	}
	if first.MissingElements == nil || first.RecommendedActions == nil {
		t.Fatalf("expected empty lists instead of nil")
	}
}

func TestOutcomeViewFilterResetsPage(t *testing.T) {
	backend := &backendFake{listFn: func(_ context.Context, q domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
		return pageOf(q, 25), nil
	}}
	view := NewOutcomeService(backend, nil, 10, nil).NewView("an-1")

	if err := view.SetPage(context.Background(), 2); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	if err := view.SetFilter(context.Background(), OutcomeFilter{Status: domain.ComplianceNone, FindingLevel: "level-1"}); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}

	last := backend.listCalls[len(backend.listCalls)-1]
	if last.Page != 0 || last.Status != domain.ComplianceNone || last.FindingLevel != "level-1" {
		t.Fatalf("expected filtered first page, got %+v", last)
	}
	if state := view.Current(); state.Page != 0 || state.Result.Number != 0 {
		t.Fatalf("expected view on page 0, got %+v", state)
	}
}

func TestOutcomeViewLastIssuedPageWins(t *testing.T) {
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	backend := &backendFake{listFn: func(_ context.Context, q domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
		if q.Page == 1 {
			close(firstArrived)
			<-releaseFirst
		}
		return pageOf(q, 30), nil
	}}
	observer := newObserverFake()
	view := NewOutcomeService(backend, observer, 10, nil).NewView("an-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := view.SetPage(context.Background(), 1); err != nil {
			t.Errorf("SetPage(1) error = %v", err)
		}
	}()

	<-firstArrived
	if err := view.SetPage(context.Background(), 2); err != nil {
		t.Fatalf("SetPage(2) error = %v", err)
	}
	close(releaseFirst)
	wg.Wait()

	state := view.Current()
	if state.Result == nil || state.Result.Number != 2 {
		t.Fatalf("expected page 2 to win, got %+v", state.Result)
	}
	if observer.staleCount(channelPage) != 1 {
		t.Fatalf("expected one stale page response, got %d", observer.staleCount(channelPage))
	}
}

func TestOutcomeViewClampsPageBeyondEnd(t *testing.T) {
	backend := &backendFake{listFn: func(_ context.Context, q domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
		return pageOf(q, 15), nil
	}}
	view := NewOutcomeService(backend, nil, 10, nil).NewView("an-1")

	if err := view.SetPage(context.Background(), 5); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	state := view.Current()
	if state.Page != 1 || state.Result.Number != 1 || len(state.Result.Content) != 5 {
		t.Fatalf("expected clamp to last page, got page=%d result=%+v", state.Page, state.Result)
	}
	if len(backend.listCalls) != 2 {
		t.Fatalf("expected one refetch, got %d calls", len(backend.listCalls))
	}
}

func TestOutcomeViewRefreshLoadsCounts(t *testing.T) {
	backend := &backendFake{
		reports: []reportReply{reportWith(domain.RawOutcome{Status: domain.ComplianceFull})},
		listFn: func(_ context.Context, q domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
			return pageOf(q, 1), nil
		},
	}
	view := NewOutcomeService(backend, nil, 10, nil).NewView("an-1")

	if err := view.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	state := view.Current()
	if !state.CountsOK || state.Counts.Full != 1 {
		t.Fatalf("expected counts to be loaded, got %+v", state.Counts)
	}
}

func TestOutcomeViewToggleViewedIsLocal(t *testing.T) {
	backend := &backendFake{}
	view := NewOutcomeService(backend, nil, 10, nil).NewView("an-1")

	if !view.ToggleViewed("145.A.30") {
		t.Fatalf("expected first toggle to mark viewed")
	}
	if !view.Current().Viewed["145.A.30"] {
		t.Fatalf("expected viewed mark in state")
	}
	if view.ToggleViewed("145.A.30") {
		t.Fatalf("expected second toggle to clear mark")
	}
	if len(backend.listCalls) != 0 {
		t.Fatalf("expected no backend traffic, got %d calls", len(backend.listCalls))
	}
}

func TestOutcomeViewDropsStaleCounts(t *testing.T) {
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	backend := &backendFake{
		reportFn: func(call int) (*domain.AnalysisReport, error) {
			if call == 0 {
				close(firstArrived)
				<-releaseFirst
				return &domain.AnalysisReport{Compliance: []domain.RawOutcome{{Status: domain.ComplianceFull}}}, nil
			}
			return &domain.AnalysisReport{Compliance: []domain.RawOutcome{
				{Status: domain.ComplianceNone},
				{Status: domain.ComplianceNone},
			}}, nil
		},
		listFn: func(_ context.Context, q domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
			return pageOf(q, 2), nil
		},
	}
	observer := newObserverFake()
	view := NewOutcomeService(backend, observer, 10, nil).NewView("an-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := view.Refresh(context.Background()); err != nil {
			t.Errorf("first Refresh() error = %v", err)
		}
	}()

	<-firstArrived
	if err := view.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	close(releaseFirst)
	wg.Wait()

	state := view.Current()
	if !state.CountsOK || state.Counts != (domain.StatusCounts{Non: 2}) {
		t.Fatalf("expected counts of the newer refresh, got %+v", state.Counts)
	}
	if observer.staleCount(channelCounts) != 1 {
		t.Fatalf("expected one stale counts response, got %d", observer.staleCount(channelCounts))
	}
}

func TestOutcomeViewFilterOvertakesUnfilteredPage(t *testing.T) {
	unfilteredArrived := make(chan struct{})
	releaseUnfiltered := make(chan struct{})
	backend := &backendFake{listFn: func(_ context.Context, q domain.PageQuery) (*domain.Page[domain.RawOutcome], error) {
		if q.Status == "" {
			close(unfilteredArrived)
			<-releaseUnfiltered
			return pageOf(q, 30), nil
		}
		return pageOf(q, 4), nil
	}}
	observer := newObserverFake()
	view := NewOutcomeService(backend, observer, 10, nil).NewView("an-1")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := view.SetPage(context.Background(), 0); err != nil {
			t.Errorf("SetPage(0) error = %v", err)
		}
	}()

	<-unfilteredArrived
	if err := view.SetFilter(context.Background(), OutcomeFilter{Status: domain.ComplianceNone}); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	close(releaseUnfiltered)
	wg.Wait()

	state := view.Current()
	if state.Filter.Status != domain.ComplianceNone || state.Page != 0 {
		t.Fatalf("unexpected view state %+v", state)
	}
	if state.Result == nil || state.Result.TotalElements != 4 {
		t.Fatalf("expected the filtered page to win, got %+v", state.Result)
	}
	if observer.staleCount(channelPage) != 1 {
		t.Fatalf("expected one stale page response, got %d", observer.staleCount(channelPage))
	}
}
