package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/leadscope/leadscope/internal/domain"
)

// Event names published by the engine.
const (
	EventEnqueued  = "job:enqueued"
	EventStarted   = "job:started"
	EventProgress  = "job:progress"
	EventRetrying  = "job:retrying"
	EventCompleted = "job:completed"
	EventFailed    = "job:failed"
	EventCancelled = "job:cancelled"
)

// Event is a lifecycle notification for one job.
type Event struct {
	Name      string           `json:"name"`
	JobID     uuid.UUID        `json:"job_id"`
	Type      domain.JobType   `json:"type"`
	Status    domain.JobStatus `json:"status"`
	Attempts  int              `json:"attempts,omitempty"`
	Progress  *domain.Progress `json:"progress,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Subscribe returns a channel receiving all engine events. Delivery is
// non-blocking: events for a full subscriber channel are dropped, so size
// the buffer for the expected burst.
func (e *Engine) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()

	return ch
}

// publishLocked fans an event out to all subscribers. Callers hold e.mu.
func (e *Engine) publishLocked(name string, job *domain.Job) {
	ev := Event{
		Name:      name,
		JobID:     job.ID,
		Type:      job.Type,
		Status:    job.Status,
		Attempts:  job.Attempts,
		Error:     job.LastError,
		Timestamp: time.Now(),
	}
	if job.Progress != nil {
		p := *job.Progress
		ev.Progress = &p
	}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
