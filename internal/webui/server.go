// Package webui exposes the upload page and the processing API over gin.
//
// Routes:
//
//	GET  /             → upload form
//	POST /process      → processed file as an attachment
//	POST /api/process  → JSON run summary
//	GET  /reports      → recent run summaries
//	GET  /reports/:id  → one run summary
//	GET  /healthz      → database ping
//	GET  /metrics      → Prometheus exposition (when enabled)
package webui

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"querygrid/internal/pipeline"
	"querygrid/internal/report"

	"github.com/gin-gonic/gin"
)

// Processor runs one upload.
type Processor interface {
	Process(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reports reads stored run summaries.
type Reports interface {
	Get(id string) (report.Summary, error)
	Recent(n int) ([]report.Summary, error)
}

// Config controls routing and request limits.
type Config struct {
	MaxFileSize    int64
	RequestTimeout time.Duration
	// APIKey guards the processing and report routes; empty disables it.
	APIKey       string
	AllowedHosts []string
	CORSOrigins  []string
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// Server wires handlers onto a gin engine.
type Server struct {
	cfg     Config
	proc    Processor
	db      Pinger
	reports Reports
	logger  *log.Logger
	tmpl    *template.Template
	engine  *gin.Engine
}

// NewServer constructs a Server. reports may be nil.
func NewServer(cfg Config, proc Processor, db Pinger, reports Reports, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:     cfg,
		proc:    proc,
		db:      db,
		reports: reports,
		logger:  logger,
		tmpl:    template.Must(template.New("index").Parse(indexHTML)),
		engine:  gin.New(),
	}
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), requestID(), s.accessLog(), trustedHosts(s.cfg.AllowedHosts), allowCORS(s.cfg.CORSOrigins))

	r.GET("/", s.handleIndex)
	r.GET("/healthz", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.cfg.Metrics))
	}

	d := s.cfg.RequestTimeout
	guarded := r.Group("/", apiKey(s.cfg.APIKey))
	guarded.POST("/process", withTimeout(d, s.handleProcess))
	guarded.POST("/api/process", withTimeout(d, s.handleAPIProcess))
	guarded.GET("/reports", withTimeout(d, s.handleReports))
	guarded.GET("/reports/:id", withTimeout(d, s.handleReport))
}

func (s *Server) handleIndex(c *gin.Context) {
	data := struct {
		Accept      string
		MaxFileSize string
	}{
		Accept:      ".csv,.xlsx,.xlsm",
		MaxFileSize: humanBytes(s.cfg.MaxFileSize),
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := s.tmpl.Execute(c.Writer, data); err != nil {
		s.logger.Println("webui: template error:", err)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func humanBytes(n int64) string {
	const mib = 1 << 20
	if n >= mib && n%mib == 0 {
		return fmt.Sprintf("%d MiB", n/mib)
	}
	return fmt.Sprintf("%d bytes", n)
}

// indexHTML is the embedded upload page.
//
//go:embed index.tmpl.html
var indexHTML string
