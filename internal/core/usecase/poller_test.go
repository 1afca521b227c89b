package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

func newTestPoller(backend *backendFake, cfg StatusPollerConfig) (*StatusPoller, *observerFake) {
	observer := newObserverFake()
	return NewStatusPoller(backend, newAutoClock(), observer, cfg, nil), observer
}

func TestStatusPollerReportsMonotonicProgress(t *testing.T) {
	backend := &backendFake{statuses: []statusReply{
		processing(10, 0),
		processing(10, 3),
		processing(10, 2),
		processing(10, 7),
		completed(10),
	}}
	poller, observer := newTestPoller(backend, StatusPollerConfig{Interval: time.Second})
	progress := &progressLog{}

	status, err := poller.Watch(context.Background(), "doc-1", WatchOptions{OnProgress: progress.record}).Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if status.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", status.Status)
	}

	want := []int{0, 30, 30, 70, 100}
	got := progress.snapshot()
	if len(got) != len(want) {
		t.Fatalf("expected %d progress reports, got %v", len(want), got)
	}
	for i := range want {
		if got[i].Percent != want[i] || got[i].Estimated {
			t.Fatalf("progress[%d] = %+v, want %d", i, got[i], want[i])
		}
	}

	statusCalls, _, _ := backend.counters()
	if statusCalls != 5 {
		t.Fatalf("expected 5 status calls, got %d", statusCalls)
	}
	time.Sleep(10 * time.Millisecond)
	if after, _, _ := backend.counters(); after != statusCalls {
		t.Fatalf("expected no polls after terminal status, got %d more", after-statusCalls)
	}
	if len(observer.finished[loopStatus]) != 1 || observer.finished[loopStatus][0] != domain.LoopSucceeded {
		t.Fatalf("expected one succeeded loop, got %v", observer.finished[loopStatus])
	}
}

func TestStatusPollerFailedCarriesBackendMessage(t *testing.T) {
	backend := &backendFake{statuses: []statusReply{processing(4, 1), failed("corrupt file")}}
	poller, _ := newTestPoller(backend, StatusPollerConfig{})
	task := poller.Watch(context.Background(), "doc-1", WatchOptions{})

	_, err := task.Wait(context.Background())
	if !domain.IsKind(err, domain.ErrProcessingFailed) {
		t.Fatalf("expected ErrProcessingFailed, got %v", err)
	}
	if err.Error() != "corrupt file" {
		t.Fatalf("expected verbatim message, got %q", err.Error())
	}
	if task.State() != domain.LoopFailed {
		t.Fatalf("expected failed state, got %s", task.State())
	}
	if calls, _, _ := backend.counters(); calls != 2 {
		t.Fatalf("expected 2 status calls, got %d", calls)
	}
}

func TestStatusPollerFailedDefaultMessage(t *testing.T) {
	backend := &backendFake{statuses: []statusReply{failed("")}}
	poller, _ := newTestPoller(backend, StatusPollerConfig{})

	_, err := poller.Watch(context.Background(), "doc-1", WatchOptions{}).Wait(context.Background())
	if err == nil || err.Error() != "document processing failed" {
		t.Fatalf("expected default failure message, got %v", err)
	}
}

func TestStatusPollerNotFoundIsFatal(t *testing.T) {
	notFound := domain.WrapError(domain.ErrNotFound, "get document status", errors.New("404"))
	backend := &backendFake{statuses: []statusReply{{err: notFound}, completed(1)}}
	poller, _ := newTestPoller(backend, StatusPollerConfig{})

	_, err := poller.Watch(context.Background(), "doc-1", WatchOptions{}).Wait(context.Background())
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls, _, _ := backend.counters(); calls != 1 {
		t.Fatalf("expected a single status call, got %d", calls)
	}
}

func TestStatusPollerToleratesTransientErrors(t *testing.T) {
	temporary := domain.WrapError(domain.ErrTemporary, "get document status", errors.New("503"))
	backend := &backendFake{statuses: []statusReply{{err: temporary}, {err: temporary}, completed(2)}}
	poller, _ := newTestPoller(backend, StatusPollerConfig{MaxConsecutiveErrors: 3})

	if _, err := poller.Watch(context.Background(), "doc-1", WatchOptions{}).Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestStatusPollerGivesUpAfterConsecutiveErrors(t *testing.T) {
	temporary := domain.WrapError(domain.ErrTemporary, "get document status", errors.New("503"))
	backend := &backendFake{statuses: []statusReply{{err: temporary}}}
	poller, _ := newTestPoller(backend, StatusPollerConfig{MaxConsecutiveErrors: 2})

	_, err := poller.Watch(context.Background(), "doc-1", WatchOptions{}).Wait(context.Background())
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if calls, _, _ := backend.counters(); calls != 2 {
		t.Fatalf("expected 2 status calls, got %d", calls)
	}
}

func TestStatusPollerTimeout(t *testing.T) {
	backend := &backendFake{statuses: []statusReply{processing(10, 1)}}
	poller, _ := newTestPoller(backend, StatusPollerConfig{Interval: 5 * time.Second, Timeout: 12 * time.Second})

	_, err := poller.Watch(context.Background(), "doc-1", WatchOptions{}).Wait(context.Background())
	if !domain.IsKind(err, domain.ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if domain.IsKind(err, domain.ErrProcessingFailed) {
		t.Fatalf("timeout must not look like a processing failure: %v", err)
	}
	if calls, _, _ := backend.counters(); calls != 4 {
		t.Fatalf("expected 4 status calls, got %d", calls)
	}
}

func TestStatusPollerCancelSuppressesCallbacks(t *testing.T) {
	gate := make(chan struct{})
	backend := &backendFake{statuses: []statusReply{completed(3)}, statusGate: gate}
	poller, observer := newTestPoller(backend, StatusPollerConfig{})
	progress := &progressLog{}

	task := poller.Watch(context.Background(), "doc-1", WatchOptions{OnProgress: progress.record})
	task.Cancel()
	close(gate)

	<-task.Done()
	if _, err := task.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if task.State() != domain.LoopCancelled {
		t.Fatalf("expected cancelled state, got %s", task.State())
	}
	if got := progress.snapshot(); len(got) != 0 {
		t.Fatalf("expected no callbacks after cancel, got %v", got)
	}
	if len(observer.finished[loopStatus]) != 1 || observer.finished[loopStatus][0] != domain.LoopCancelled {
		t.Fatalf("expected one cancelled loop, got %v", observer.finished[loopStatus])
	}
}

func TestStatusPollerPlaceholderYieldsToRealProgress(t *testing.T) {
	gate := make(chan struct{})
	backend := &backendFake{statuses: []statusReply{processing(10, 2), completed(10)}, statusGate: gate}
	poller, _ := newTestPoller(backend, StatusPollerConfig{PlaceholderStep: 30, PlaceholderInterval: time.Second})

	capped := make(chan struct{})
	progress := &progressLog{}
	task := poller.Watch(context.Background(), "doc-1", WatchOptions{
		Placeholder: true,
		OnProgress: func(p domain.Progress) {
			progress.record(p)
			if p.Estimated && p.Percent == 90 {
				close(capped)
			}
		},
	})

	select {
	case <-capped:
	case <-time.After(2 * time.Second):
		t.Fatalf("placeholder never reached its cap")
	}
	close(gate)

	if _, err := task.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	got := progress.snapshot()
	want := []domain.Progress{
		{Percent: 30, Estimated: true, Status: domain.StatusProcessing},
		{Percent: 60, Estimated: true, Status: domain.StatusProcessing},
		{Percent: 90, Estimated: true, Status: domain.StatusProcessing},
		{Percent: 20, Status: domain.StatusProcessing},
		{Percent: 100, Status: domain.StatusCompleted},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
