package handlers

import (
	"errors"
	"net/http"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/reconstructor"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/server/jobs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReconstructHttpHandler serves the reconstruction job API: submitting a log
// directory for reconstruction and fetching job status, results, the flat
// CSV report, and the layer-first view.
type ReconstructHttpHandler struct {
	*BaseHandler

	registry *jobs.Registry
}

// ReconstructionRequest is the POST body for submitting a job. When no
// interest spec is given, the built-in DLRM table is used.
type ReconstructionRequest struct {
	LogDir       string               `json:"log_dir"`
	InterestSpec *domain.InterestSpec `json:"interest_spec,omitempty"`
}

func NewReconstructHttpHandler(opts *domain.Configuration, atom *zap.AtomicLevel, registry *jobs.Registry) *ReconstructHttpHandler {
	handler := &ReconstructHttpHandler{
		BaseHandler: newBaseHandler(opts, atom),
		registry:    registry,
	}
	handler.logger.Debug("Created server-side ReconstructHttpHandler.")
	return handler
}

// HandleSubmit handles POST requests that start a new reconstruction job.
func (h *ReconstructHttpHandler) HandleSubmit(c *gin.Context) {
	var request ReconstructionRequest
	if err := c.BindJSON(&request); err != nil {
		h.logger.Error("Failed to parse reconstruction request.", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if request.LogDir == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "log_dir is required"})
		return
	}

	spec := request.InterestSpec
	if spec == nil {
		spec = domain.DLRMInterestSpec()
	}

	job, err := h.registry.Submit(request.LogDir, spec)
	if err != nil {
		h.logger.Error("Failed to submit reconstruction job.", zap.String("log_dir", request.LogDir), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// HandleGet handles GET requests for job status. Completed jobs include
// their reconstructed timelines.
func (h *ReconstructHttpHandler) HandleGet(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, job.View())
}

// HandleGetCSV handles GET requests for the flat per-event CSV report of a
// completed job.
func (h *ReconstructHttpHandler) HandleGetCSV(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	if !job.Finished() {
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrJobNotFinished.Error()})
		return
	}

	c.Header("Content-Type", "text/csv")
	if err := reconstructor.WriteCSV(c.Writer, job.Timelines); err != nil {
		h.logger.Error("Failed to write CSV report.", zap.String("job_id", job.ID), zap.Error(err))
		h.WriteError(c, err.Error())
	}
}

// HandleGetLayers handles GET requests for the layer-first derived view of a
// completed job.
func (h *ReconstructHttpHandler) HandleGetLayers(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	if !job.Finished() {
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrJobNotFinished.Error()})
		return
	}

	views := make([]*domain.LayerTimeline, 0, len(job.Timelines))
	for _, timeline := range job.Timelines {
		views = append(views, reconstructor.LayerView(timeline))
	}

	c.JSON(http.StatusOK, views)
}

func (h *ReconstructHttpHandler) lookupJob(c *gin.Context) (*jobs.ReconstructionJob, bool) {
	jobId := c.Param("job_id")
	job, err := h.registry.Get(jobId)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownJob) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			h.WriteError(c, err.Error())
		}
		return nil, false
	}
	return job, true
}
