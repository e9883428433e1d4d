package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/arturoeanton/medguide-qa/internal/domain"
	"github.com/arturoeanton/medguide-qa/internal/service"
)

// Job states.
const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobError    = "error"
)

// JobStatus represents the current state of a background index build.
type JobStatus struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"` // initialize, rebuild
	Status      string    `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Message     string    `json:"message,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

func (j JobStatus) done() bool { return j.Status == JobComplete || j.Status == JobError }

// DefaultJobTTL is how long a finished job stays queryable.
const DefaultJobTTL = time.Hour

// JobTracker manages build jobs in memory. Finished jobs are dropped once
// they are older than the TTL.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*JobStatus
	subs map[string][]chan JobStatus // subscribers per job
	ttl  time.Duration
	now  func() time.Time
}

// NewJobTracker creates a job tracker that keeps finished jobs for
// DefaultJobTTL.
func NewJobTracker() *JobTracker {
	return NewJobTrackerWithTTL(DefaultJobTTL)
}

// NewJobTrackerWithTTL creates a job tracker that keeps finished jobs for ttl.
func NewJobTrackerWithTTL(ttl time.Duration) *JobTracker {
	return &JobTracker{
		jobs: make(map[string]*JobStatus),
		subs: make(map[string][]chan JobStatus),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Start runs fn in the background and returns the job ID. fn receives a
// context that reports build progress to the job.
func (t *JobTracker) Start(kind string, fn func(ctx context.Context) domain.StatusMessage) string {
	id := uuid.NewString()
	t.createJob(id, kind)

	go func() {
		ctx := service.WithProgress(context.Background(), func(p service.Progress) {
			t.updateProgress(id, p)
		})
		msg := fn(ctx)
		t.finish(id, msg)
		slog.Info("job finished", "job_id", id, "kind", kind, "ok", msg.OK)
	}()
	return id
}

func (t *JobTracker) createJob(id, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	t.jobs[id] = &JobStatus{
		ID:        id,
		Kind:      kind,
		Status:    JobRunning,
		StartedAt: t.now(),
	}
}

// pruneLocked drops finished jobs older than the TTL. Running jobs are kept.
func (t *JobTracker) pruneLocked() {
	cutoff := t.now().Add(-t.ttl)
	for id, job := range t.jobs {
		if job.done() && job.CompletedAt.Before(cutoff) {
			delete(t.jobs, id)
			delete(t.subs, id)
		}
	}
}

func (t *JobTracker) updateProgress(id string, p service.Progress) {
	t.update(id, func(job *JobStatus) {
		job.Stage = string(p.Stage)
		job.Progress = p.Done
		job.Total = p.Total
	})
}

func (t *JobTracker) finish(id string, msg domain.StatusMessage) {
	t.update(id, func(job *JobStatus) {
		job.Status = JobComplete
		if !msg.OK {
			job.Status = JobError
		}
		job.Message = msg.Message
		job.ErrorKind = msg.Kind
		job.CompletedAt = t.now()
	})
}

// update mutates a job and notifies subscribers.
func (t *JobTracker) update(id string, mutate func(*JobStatus)) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	mutate(job)
	snapshot := *job
	subs := append([]chan JobStatus(nil), t.subs[id]...)
	t.mu.Unlock()

	for _, ch := range subs {
		if snapshot.done() {
			// the final state must not be dropped
			select {
			case ch <- snapshot:
			case <-time.After(time.Second):
			}
			continue
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// GetJob returns a job status.
func (t *JobTracker) GetJob(id string) (*JobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	job, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Subscribe returns a channel that receives job updates.
func (t *JobTracker) Subscribe(id string) chan JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan JobStatus, 10)
	t.subs[id] = append(t.subs[id], ch)
	return ch
}

// Unsubscribe removes a channel from subscribers.
func (t *JobTracker) Unsubscribe(id string, ch chan JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[id]
	for i, s := range subs {
		if s == ch {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(t.subs, id)
		return
	}
	t.subs[id] = subs
}

// Len returns the number of tracked jobs.
func (t *JobTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	tracker *JobTracker
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(tracker *JobTracker) *JobsHandler {
	return &JobsHandler{tracker: tracker}
}

// Register sets up job routes.
func (h *JobsHandler) Register(router fiber.Router) {
	jobs := router.Group("/jobs")
	jobs.Get("/:id", h.GetStatus)
	jobs.Get("/:id/stream", h.StreamSSE)
}

// GetStatus returns the current job status.
func (h *JobsHandler) GetStatus(c fiber.Ctx) error {
	job, ok := h.tracker.GetJob(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	return c.JSON(job)
}

// StreamSSE streams job updates via Server-Sent Events.
func (h *JobsHandler) StreamSSE(c fiber.Ctx) error {
	id := c.Params("id")

	job, ok := h.tracker.GetJob(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// If already finished, just return the final status
	if job.done() {
		return c.SendString(sseEvent(job.Status, *job))
	}

	ch := h.tracker.Subscribe(id)

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(id, ch)

		fmt.Fprint(w, sseEvent("progress", *job))
		w.Flush()

		// the job may have finished between GetJob and Subscribe
		if latest, ok := h.tracker.GetJob(id); ok && latest.done() {
			fmt.Fprint(w, sseEvent(latest.Status, *latest))
			w.Flush()
			return
		}

		timeout := time.After(30 * time.Minute)
		for {
			select {
			case update := <-ch:
				event := "progress"
				if update.done() {
					event = update.Status
				}
				fmt.Fprint(w, sseEvent(event, update))
				if err := w.Flush(); err != nil {
					return
				}
				if update.done() {
					return
				}
			case <-timeout:
				slog.Warn("SSE timeout", "job_id", id)
				return
			}
		}
	})
}

func sseEvent(event string, job JobStatus) string {
	data, _ := json.Marshal(job)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}
