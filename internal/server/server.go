// Package server implements the dashboard backend: a gin HTTP API for
// submitting reconstruction jobs and retrieving their results, plus a
// websocket endpoint pushing per-file job progress to the frontend. The API
// group sits behind a JWT middleware; the frontend authenticates against the
// configured admin user to obtain a token.
package server

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/server/auth"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/server/handlers"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/server/jobs"
	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var jwtIdentityKey = "identityKey"

type serverImpl struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger
	atom          *zap.AtomicLevel

	opts   *domain.Configuration
	engine *gin.Engine

	registry *jobs.Registry

	reconstructHandler  *handlers.ReconstructHttpHandler
	interestFileHandler *handlers.InterestFileHttpHandler

	upgrader websocket.Upgrader

	adminUsername           string
	adminPassword           string
	jwtTokenValidDuration   time.Duration
	jwtTokenRefreshInterval time.Duration

	expectedOriginPort      int
	expectedOriginAddresses []string

	baseListenPrefix string
}

type Server interface {
	// Serve listens on the configured port. Blocking call.
	Serve() error
}

func NewServer(opts *domain.Configuration) Server {
	atom := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	if !opts.Debug {
		atom.SetLevel(zapcore.InfoLevel)
	}

	registry := jobs.NewRegistry(opts, &atom)

	s := &serverImpl{
		opts:                    opts,
		atom:                    &atom,
		engine:                  gin.New(),
		registry:                registry,
		reconstructHandler:      handlers.NewReconstructHttpHandler(opts, &atom, registry),
		interestFileHandler:     handlers.NewInterestFileHttpHandler(opts, &atom),
		adminUsername:           opts.AdminUser,
		adminPassword:           opts.AdminPassword,
		jwtTokenValidDuration:   time.Second * time.Duration(opts.TokenValidDurationSec),
		jwtTokenRefreshInterval: time.Second * time.Duration(opts.TokenRefreshIntervalSec),
		expectedOriginPort:      opts.ExpectedOriginPort,
		expectedOriginAddresses: make([]string, 0),
		baseListenPrefix:        opts.BaseUrl,
	}

	// Default to "/"
	if s.baseListenPrefix == "" {
		s.baseListenPrefix = "/"
	}

	zapConfig := zap.NewDevelopmentEncoderConfig()
	zapConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zapConfig), zapcore.AddSync(colorable.NewColorableStdout()), &atom)
	s.logger = zap.New(core, zap.Development())
	s.sugaredLogger = s.logger.Sugar()

	for _, addr := range strings.Split(opts.ExpectedOriginAddresses, ",") {
		expectedOrigin := fmt.Sprintf("%s:%d", strings.TrimSpace(addr), s.expectedOriginPort)
		s.logger.Debug("Loaded expected origin from configuration.", zap.String("origin", expectedOrigin))
		s.expectedOriginAddresses = append(s.expectedOriginAddresses, expectedOrigin)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.allowedOrigin,
	}

	s.setupRoutes()

	return s
}

func (s *serverImpl) jwtPayloadFunc() func(data interface{}) jwt.MapClaims {
	return func(data interface{}) jwt.MapClaims {
		if v, ok := data.(*auth.AuthorizedUser); ok {
			return jwt.MapClaims{
				jwtIdentityKey: v.Username,
			}
		}
		return jwt.MapClaims{}
	}
}

func (s *serverImpl) jwtIdentityHandler() func(c *gin.Context) interface{} {
	return func(c *gin.Context) interface{} {
		claims := jwt.ExtractClaims(c)
		identity, ok := claims[jwtIdentityKey].(string)
		if !ok {
			return nil
		}
		return &auth.AuthorizedUser{Username: identity}
	}
}

func (s *serverImpl) jwtAuthenticator() func(c *gin.Context) (interface{}, error) {
	return func(c *gin.Context) (interface{}, error) {
		var login auth.LoginRequest
		if err := c.ShouldBind(&login); err != nil {
			s.logger.Warn("Received login request with missing login values.")
			return "", jwt.ErrMissingLoginValues
		}

		if login.Username == s.adminUsername && login.Password == s.adminPassword {
			return &auth.AuthorizedUser{Username: login.Username}, nil
		}

		s.logger.Warn("Rejected login attempt.", zap.String("username", login.Username))
		return nil, jwt.ErrFailedAuthentication
	}
}

func (s *serverImpl) jwtAuthorizer() func(data interface{}, c *gin.Context) bool {
	return func(data interface{}, c *gin.Context) bool {
		user, ok := data.(*auth.AuthorizedUser)
		return ok && user.Username == s.adminUsername
	}
}

func (s *serverImpl) jwtHandleUnauthorized() func(c *gin.Context, code int, message string) {
	return func(c *gin.Context, code int, message string) {
		s.logger.Debug("JWT unauthorized request handler called.",
			zap.Int("code", code), zap.String("message", message),
			zap.String("client_ip", c.ClientIP()))

		c.JSON(code, gin.H{
			"code":    code,
			"message": message,
		})
	}
}

func (s *serverImpl) initJWTParams() *jwt.GinJWTMiddleware {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}

	return &jwt.GinJWTMiddleware{
		Realm:             "Embedding Profiler Dashboard",
		Key:               key,
		Timeout:           s.jwtTokenValidDuration,
		MaxRefresh:        s.jwtTokenRefreshInterval,
		IdentityKey:       jwtIdentityKey,
		PayloadFunc:       s.jwtPayloadFunc(),
		IdentityHandler:   s.jwtIdentityHandler(),
		Authenticator:     s.jwtAuthenticator(),
		Authorizator:      s.jwtAuthorizer(),
		Unauthorized:      s.jwtHandleUnauthorized(),
		SendAuthorization: true,
		TokenLookup:       "header: Authorization, query: token, cookie: jwt",
		TokenHeadName:     "Bearer",
		TimeFunc:          time.Now,
	}
}

func (s *serverImpl) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(cors.Default())

	authMiddleware, err := jwt.New(s.initJWTParams())
	if err != nil {
		panic(fmt.Errorf("failed to initialize JWT middleware: %w", err))
	}

	// Used by the frontend to authenticate and get access to the dashboard.
	s.engine.POST(path.Join(s.baseListenPrefix, "authenticate"), authMiddleware.LoginHandler)
	s.engine.POST(path.Join(s.baseListenPrefix, "refresh-token"), authMiddleware.RefreshHandler)

	s.engine.GET(path.Join(s.baseListenPrefix, "api", "health"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := s.engine.Group(path.Join(s.baseListenPrefix, "api"), authMiddleware.MiddlewareFunc())
	{
		apiGroup.POST("/reconstruct", s.reconstructHandler.HandleSubmit)
		apiGroup.GET("/reconstruct/:job_id", s.reconstructHandler.HandleGet)
		apiGroup.GET("/reconstruct/:job_id/csv", s.reconstructHandler.HandleGetCSV)
		apiGroup.GET("/reconstruct/:job_id/layers", s.reconstructHandler.HandleGetLayers)

		apiGroup.POST("/interest-file", s.interestFileHandler.HandleRequest)
	}

	s.engine.GET(path.Join(s.baseListenPrefix, "ws", "jobs", ":job_id"), s.serveJobWebsocket)

	pprof.Register(s.engine, path.Join(s.baseListenPrefix, "dev/pprof"))
}

// allowedOrigin accepts websocket upgrades only from the configured frontend
// origins.
func (s *serverImpl) allowedOrigin(r *http.Request) bool {
	incomingOrigin := r.Header.Get("Origin")
	for _, expectedOrigin := range s.expectedOriginAddresses {
		if incomingOrigin == expectedOrigin {
			return true
		}
	}

	s.logger.Error("Incoming WebSocket connection had unexpected origin. Rejecting.",
		zap.String("request-origin", incomingOrigin),
		zap.Strings("accepted-origins", s.expectedOriginAddresses))
	return false
}

// serveJobWebsocket upgrades the connection and streams JobProgress messages
// until the job reaches a terminal status or the client goes away.
func (s *serverImpl) serveJobWebsocket(c *gin.Context) {
	job, err := s.registry.Get(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade WebSocket connection.", zap.Error(err))
		return
	}
	defer conn.Close()

	progress, cancel := job.Subscribe()
	defer cancel()

	// Snapshot first, so late subscribers still learn the current status.
	if err := s.writeProgress(conn, jobs.JobProgress{JobID: job.ID, Status: job.Status()}); err != nil {
		return
	}

	for message := range progress {
		if err := s.writeProgress(conn, message); err != nil {
			s.logger.Debug("WebSocket subscriber went away.", zap.String("job_id", job.ID), zap.Error(err))
			return
		}
	}
}

func (s *serverImpl) writeProgress(conn *websocket.Conn, progress jobs.JobProgress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Serve is a blocking call.
func (s *serverImpl) Serve() error {
	address := fmt.Sprintf(":%d", s.opts.ServerPort)
	s.logger.Info("Dashboard backend listening.", zap.String("address", address), zap.String("base-path", s.baseListenPrefix))
	return s.engine.Run(address)
}
