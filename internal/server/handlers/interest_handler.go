package handlers

import (
	"bytes"
	"net/http"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/reconstructor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InterestFileHttpHandler flattens a posted interest spec into the
// newline-delimited event-name list consumed by the native instrumentation
// layer, so the frontend can download it without shelling out to the CLI.
type InterestFileHttpHandler struct {
	*BaseHandler
}

func NewInterestFileHttpHandler(opts *domain.Configuration, atom *zap.AtomicLevel) *InterestFileHttpHandler {
	handler := &InterestFileHttpHandler{
		BaseHandler: newBaseHandler(opts, atom),
	}
	handler.logger.Debug("Created server-side InterestFileHttpHandler.")
	return handler
}

func (h *InterestFileHttpHandler) HandleRequest(c *gin.Context) {
	var spec domain.InterestSpec
	if err := c.BindJSON(&spec); err != nil {
		h.logger.Error("Failed to parse interest spec.", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(spec.Layers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrNoInterestSpec.Error()})
		return
	}

	for _, warning := range spec.Validate() {
		h.logger.Warn("Ambiguous interest spec.", zap.String("overlap", warning))
	}

	var buf bytes.Buffer
	if err := reconstructor.WriteInterestFile(&buf, &spec); err != nil {
		h.WriteError(c, err.Error())
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}
