package jobs

import (
	"sync"
	"time"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
)

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobErred    JobStatus = "erred"
)

// JobProgress is one progress message pushed to websocket subscribers while a
// reconstruction job runs: one message per processed log file, plus a
// terminal status message.
type JobProgress struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
	File   string    `json:"file,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// ReconstructionJob tracks one asynchronous reconstruction of a log
// directory. Its result fields are written exactly once, when the job
// reaches a terminal status, and are immutable afterwards.
type ReconstructionJob struct {
	ID     string
	LogDir string

	CreatedAt   time.Time
	CompletedAt time.Time

	Timelines []*domain.RunTimeline
	Failures  []string
	Err       string

	mu          sync.Mutex
	status      JobStatus
	subscribers []chan JobProgress
}

func newJob(id string, logDir string) *ReconstructionJob {
	return &ReconstructionJob{
		ID:        id,
		LogDir:    logDir,
		CreatedAt: time.Now(),
		status:    JobPending,
	}
}

func (j *ReconstructionJob) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *ReconstructionJob) Finished() bool {
	status := j.Status()
	return status == JobComplete || status == JobErred
}

// Subscribe registers a progress channel. The returned cancel function must
// be called when the subscriber goes away; the channel is closed when the
// job reaches a terminal status.
func (j *ReconstructionJob) Subscribe() (<-chan JobProgress, func()) {
	ch := make(chan JobProgress, 16)

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status == JobComplete || j.status == JobErred {
		ch <- JobProgress{JobID: j.ID, Status: j.status, Error: j.Err}
		close(ch)
		return ch, func() {}
	}

	j.subscribers = append(j.subscribers, ch)
	cancel := func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		for i, sub := range j.subscribers {
			if sub == ch {
				j.subscribers = append(j.subscribers[:i], j.subscribers[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

func (j *ReconstructionJob) setStatus(status JobStatus) {
	j.mu.Lock()
	j.status = status
	j.mu.Unlock()

	j.publish(JobProgress{JobID: j.ID, Status: status, Error: j.Err})

	if status == JobComplete || status == JobErred {
		j.mu.Lock()
		for _, sub := range j.subscribers {
			close(sub)
		}
		j.subscribers = nil
		j.mu.Unlock()
	}
}

func (j *ReconstructionJob) publish(progress JobProgress) {
	j.mu.Lock()
	subscribers := make([]chan JobProgress, len(j.subscribers))
	copy(subscribers, j.subscribers)
	j.mu.Unlock()

	for _, sub := range subscribers {
		// A subscriber that stopped draining its channel does not get to
		// stall the job.
		select {
		case sub <- progress:
		default:
		}
	}
}

// JobView is the JSON representation of a job returned by the HTTP API. The
// reconstructed timelines are included only once the job has completed.
type JobView struct {
	JobID       string                `json:"job_id"`
	LogDir      string                `json:"log_dir"`
	Status      JobStatus             `json:"status"`
	CreatedAt   time.Time             `json:"created_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Failures    []string              `json:"failures,omitempty"`
	Error       string                `json:"error,omitempty"`
	Timelines   []*domain.RunTimeline `json:"timelines,omitempty"`
}

func (j *ReconstructionJob) View() *JobView {
	view := &JobView{
		JobID:     j.ID,
		LogDir:    j.LogDir,
		Status:    j.Status(),
		CreatedAt: j.CreatedAt,
	}

	if j.Finished() {
		completedAt := j.CompletedAt
		view.CompletedAt = &completedAt
		view.Failures = j.Failures
		view.Error = j.Err
		view.Timelines = j.Timelines
	}

	return view
}
