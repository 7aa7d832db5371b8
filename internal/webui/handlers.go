package webui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"querygrid/internal/executor"
	"querygrid/internal/pipeline"
	"querygrid/internal/report"
	"querygrid/internal/tabular"

	"github.com/gin-gonic/gin"
)

// multipartSlack covers multipart boundaries and form fields on top of the
// file itself.
const multipartSlack = 64 << 10

// OutputBasename names the attachment returned by POST /process.
const OutputBasename = "processed_results"

const (
	defaultRecent = 20
	maxRecent     = 200
)

type uploadError struct {
	status int
	detail string
}

func (e *uploadError) Error() string { return e.detail }

// readUpload extracts the multipart "file" and the "calculate" switch.
func (s *Server) readUpload(c *gin.Context) (pipeline.Input, error) {
	if s.cfg.MaxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxFileSize+multipartSlack)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return pipeline.Input{}, &uploadError{http.StatusBadRequest, "File too large"}
		}
		return pipeline.Input{}, &uploadError{http.StatusBadRequest, "A file upload named \"file\" is required"}
	}
	if _, err := tabular.FormatFromFilename(fh.Filename); err != nil {
		return pipeline.Input{}, &uploadError{http.StatusBadRequest, "Only CSV or XLSX files are allowed"}
	}
	if s.cfg.MaxFileSize > 0 && fh.Size > s.cfg.MaxFileSize {
		return pipeline.Input{}, &uploadError{http.StatusBadRequest, "File too large"}
	}

	f, err := fh.Open()
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("read upload: %w", err)
	}

	calculate := true
	if v := strings.TrimSpace(c.PostForm("calculate")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return pipeline.Input{}, &uploadError{http.StatusBadRequest, fmt.Sprintf("calculate: invalid boolean %q", v)}
		}
		calculate = b
	}
	return pipeline.Input{
		ID:        c.GetString(requestIDKey),
		Filename:  fh.Filename,
		Data:      data,
		Calculate: calculate,
	}, nil
}

func (s *Server) process(c *gin.Context) (pipeline.Result, bool) {
	in, err := s.readUpload(c)
	if err != nil {
		s.fail(c, err)
		return pipeline.Result{}, false
	}
	res, err := s.proc.Process(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return pipeline.Result{}, false
	}
	return res, true
}

func (s *Server) handleProcess(c *gin.Context) {
	res, ok := s.process(c)
	if !ok {
		return
	}
	name := OutputBasename + res.Format.Extension()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("X-Total-Queries", strconv.Itoa(res.Summary.TotalQueries))
	c.Header("X-Unresolved-Queries", strconv.Itoa(len(res.Summary.Unresolved)))
	c.Data(http.StatusOK, res.Format.ContentType(), res.Output)
}

func (s *Server) handleAPIProcess(c *gin.Context) {
	res, ok := s.process(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, res.Summary)
}

func (s *Server) handleReports(c *gin.Context) {
	if s.reports == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "run reports are disabled"})
		return
	}
	n := defaultRecent
	if v := c.Query("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("n: want a positive integer, got %q", v)})
			return
		}
		n = min(parsed, maxRecent)
	}
	runs, err := s.reports.Recent(n)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleReport(c *gin.Context) {
	if s.reports == nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "run reports are disabled"})
		return
	}
	sum, err := s.reports.Get(c.Param("id"))
	if errors.Is(err, report.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// fail maps err to a status code and a {"detail": ...} body.
func (s *Server) fail(c *gin.Context, err error) {
	var ue *uploadError
	switch {
	case errors.As(err, &ue):
		c.JSON(ue.status, gin.H{"detail": ue.detail})
	case errors.Is(err, tabular.ErrUnsupportedFormat), errors.Is(err, pipeline.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, executor.ErrDatabaseUnavailable):
		s.logger.Printf("webui: request=%s database unavailable: %v", c.GetString(requestIDKey), err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Database unavailable"})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"detail": "Request timed out"})
	default:
		s.logger.Printf("webui: request=%s error processing file: %v", c.GetString(requestIDKey), err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Error processing file: " + err.Error()})
	}
}
