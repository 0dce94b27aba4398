package service

import (
	"context"
	"sync"
	"time"

	"civicreport/config"
	"civicreport/diff"
	"civicreport/dispatch"
	"civicreport/metrics"
	"civicreport/models"

	"github.com/apex/log"
)

// SnapshotSource is the slice of the report store the differ needs.
type SnapshotSource interface {
	SnapshotFor(ctx context.Context, viewerID string) (models.Snapshot, error)
}

// viewerState retains the last-seen snapshot of one viewer. Its mutex
// serializes overlapping diff cycles for that viewer; cycles for
// different viewers run in parallel freely.
type viewerState struct {
	mu     sync.Mutex
	prev   models.Snapshot
	primed bool
}

// Service runs snapshot diff cycles and dispatches the resulting
// notifications. Viewers are registered on their first cycle and then
// polled periodically until the service stops.
type Service struct {
	config     *config.Config
	store      SnapshotSource
	dispatcher *dispatch.Dispatcher

	mu      sync.Mutex
	viewers map[string]*viewerState

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService creates a diff-cycle service.
func NewService(cfg *config.Config, store SnapshotSource, dispatcher *dispatch.Dispatcher) *Service {
	return &Service{
		config:     cfg,
		store:      store,
		dispatcher: dispatcher,
		viewers:    make(map[string]*viewerState),
		stopChan:   make(chan struct{}),
	}
}

// Start starts the periodic diff loop.
func (s *Service) Start() {
	log.Info("Starting diff cycle service...")

	s.wg.Add(1)
	go s.diffLoop()
}

// Stop stops the service gracefully.
func (s *Service) Stop() {
	log.Info("Stopping diff cycle service...")
	close(s.stopChan)
	s.wg.Wait()
	log.Info("Diff cycle service stopped")
}

// RunDiffCycle computes the current snapshot for a viewer, diffs it
// against the retained previous one, dispatches the resulting events
// and retains the new snapshot as the next baseline.
//
// The first cycle for a viewer only primes the baseline and produces
// zero events, so a cold start never floods notifications for
// pre-existing data. Overlapping cycles for the same viewer are
// serialized.
func (s *Service) RunDiffCycle(ctx context.Context, viewerID string) ([]models.ChangeEvent, error) {
	vs := s.viewerState(viewerID)
	vs.mu.Lock()
	defer vs.mu.Unlock()

	current, err := s.store.SnapshotFor(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	if !vs.primed {
		vs.prev = current
		vs.primed = true
		return nil, nil
	}

	events := diff.Diff(vs.prev, current, models.ViewerContext{UserID: viewerID})
	for _, e := range events {
		metrics.EventsEmittedTotal.WithLabelValues(string(e.Kind)).Inc()
	}

	if len(events) > 0 {
		for _, derr := range s.dispatcher.Dispatch(ctx, events) {
			log.WithError(derr.Err).Warnf("Notification delivery failed for report %s (recipient %s)",
				derr.ReportID, derr.Recipient)
		}
	}

	vs.prev = current
	return events, nil
}

// viewerState returns (registering if needed) the state of one viewer.
func (s *Service) viewerState(viewerID string) *viewerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, ok := s.viewers[viewerID]
	if !ok {
		vs = &viewerState{}
		s.viewers[viewerID] = vs
	}
	return vs
}

// registeredViewers snapshots the current viewer ids.
func (s *Service) registeredViewers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.viewers))
	for id := range s.viewers {
		ids = append(ids, id)
	}
	return ids
}

// diffLoop periodically re-runs the diff cycle for every registered
// viewer. Manager viewers are pre-registered so high-priority alerts
// flow without an explicit subscription call.
func (s *Service) diffLoop() {
	defer s.wg.Done()

	for _, manager := range s.config.Managers {
		s.viewerState(manager)
	}

	ticker := time.NewTicker(s.config.DiffInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.DiffInterval)
			for _, viewerID := range s.registeredViewers() {
				if _, err := s.RunDiffCycle(ctx, viewerID); err != nil {
					log.WithError(err).Errorf("Diff cycle failed for viewer %s", viewerID)
				}
			}
			cancel()
		}
	}
}
