package handlers

import (
	"fmt"
	"net/http"
	"os"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type BaseHandler struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger
	atom          *zap.AtomicLevel

	opts *domain.Configuration
}

func newBaseHandler(opts *domain.Configuration, atom *zap.AtomicLevel) *BaseHandler {
	handler := &BaseHandler{
		opts: opts,
		atom: atom,
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), os.Stdout, atom)
	handler.logger = zap.New(core, zap.Development())
	handler.sugaredLogger = handler.logger.Sugar()

	return handler
}

// WriteError writes an error back to the client.
func (h *BaseHandler) WriteError(c *gin.Context, errorMessage string) {
	_ = c.AbortWithError(http.StatusInternalServerError, fmt.Errorf("could not handle request: %s", errorMessage))
}
