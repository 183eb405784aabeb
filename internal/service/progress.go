package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Laellekoenig/tables/internal/domain"
	"github.com/Laellekoenig/tables/internal/logger"
	"github.com/Laellekoenig/tables/internal/repository"
)

// Progress event types emitted over the watch channel.
const (
	ProgressEventStatus = "status"
	ProgressEventDone   = "done"
	ProgressEventError  = "error"
)

// ProgressEvent is one observed change in a transformation's lifecycle.
// Status and done events carry the full entity so consumers can read the
// generated code and the output without a follow-up request.
type ProgressEvent struct {
	Type           string                      `json:"type"`
	Status         domain.TransformationStatus `json:"status,omitempty"`
	Phase          string                      `json:"phase,omitempty"`
	HasCode        bool                        `json:"hasCode"`
	ErrorMessage   string                      `json:"errorMessage,omitempty"`
	Transformation *domain.Transformation      `json:"transformation,omitempty"`
}

// ProgressService observes a transformation's persisted state by polling
// and surfaces deduplicated change events. Polling keeps the notifier
// decoupled from the execution path: any writer (direct run, cascade,
// another instance) is observed the same way.
type ProgressService struct {
	transformations *repository.TransformationRepository
	pollInterval    time.Duration
	logger          *logger.Logger
}

// NewProgressService creates a new ProgressService.
// Parameters:
//   - transformations: transformation repository.
//   - pollInterval: delay between polls; a zero value selects 700ms.
//   - log: logger instance.
// Returns:
//   - *ProgressService: initialized service.
func NewProgressService(transformations *repository.TransformationRepository, pollInterval time.Duration, log *logger.Logger) *ProgressService {
	if pollInterval <= 0 {
		pollInterval = 700 * time.Millisecond
	}
	return &ProgressService{
		transformations: transformations,
		pollInterval:    pollInterval,
		logger:          log,
	}
}

// Watch streams progress events for one transformation until it reaches a
// terminal state or ctx is cancelled. The first poll always emits the
// current state; later polls emit only when the observed signature
// (status, code presence, error message) changed. A terminal status is
// followed by a done event, a read failure by an error event; both close
// the channel. Cancelling ctx stops the watch without a final event.
// Parameters:
//   - ctx: controls the watch lifetime.
//   - transformationID: row to observe.
//   - projectID: scoping project; the watch fails if the row moved out.
// Returns:
//   - <-chan ProgressEvent: closed when the watch ends.
func (s *ProgressService) Watch(ctx context.Context, transformationID, projectID string) <-chan ProgressEvent {
	events := make(chan ProgressEvent)

	go func() {
		defer close(events)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		lastSignature := ""
		for {
			t, err := s.transformations.GetByIDInProject(ctx, transformationID, projectID)
			if err != nil {
				// A cancelled watch fails its next read with the caller's
				// context error; that is an abort, not a broken feed, and
				// must not surface as a terminal error event.
				if ctx.Err() != nil {
					return
				}
				logger.CtxWarn(ctx, "Progress watch read failed: id=%s, err=%v", transformationID, err)
				s.send(ctx, events, ProgressEvent{
					Type:         ProgressEventError,
					ErrorMessage: "Transformation is no longer available.",
				})
				return
			}

			signature := watchSignature(t)
			if signature != lastSignature {
				lastSignature = signature
				if !s.send(ctx, events, statusEvent(t)) {
					return
				}
			}

			if t.Status.IsTerminal() {
				done := ProgressEvent{
					Type:           ProgressEventDone,
					Status:         t.Status,
					Phase:          t.PhaseLabel(),
					HasCode:        t.HasCode(),
					Transformation: t,
				}
				if t.ErrorMessage != nil {
					done.ErrorMessage = *t.ErrorMessage
				}
				s.send(ctx, events, done)
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return events
}

// send delivers one event unless ctx is already cancelled. Returns false
// when the watch should stop.
func (s *ProgressService) send(ctx context.Context, events chan<- ProgressEvent, ev ProgressEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func statusEvent(t *domain.Transformation) ProgressEvent {
	ev := ProgressEvent{
		Type:           ProgressEventStatus,
		Status:         t.Status,
		Phase:          t.PhaseLabel(),
		HasCode:        t.HasCode(),
		Transformation: t,
	}
	if t.ErrorMessage != nil {
		ev.ErrorMessage = *t.ErrorMessage
	}
	return ev
}

// watchSignature condenses the observable state into a comparable string
// so unchanged polls emit nothing.
func watchSignature(t *domain.Transformation) string {
	msg := ""
	if t.ErrorMessage != nil {
		msg = *t.ErrorMessage
	}
	return fmt.Sprintf("%s|%t|%s", t.Status, t.HasCode(), msg)
}
