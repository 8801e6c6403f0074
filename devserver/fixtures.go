package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/kbukum/wasmfetch/component"
	apperrors "github.com/kbukum/wasmfetch/errors"
	"github.com/kbukum/wasmfetch/logger"
)

// HeaderFixture names the fixture that produced a response.
const HeaderFixture = "X-Fixture"

// EchoResponse is the body of /echo.
type EchoResponse struct {
	Method    string              `json:"method"`
	Path      string              `json:"path"`
	Query     map[string][]string `json:"query"`
	Headers   http.Header         `json:"headers"`
	Body      string              `json:"body"`
	BodySize  int                 `json:"body_size"`
	RequestID string              `json:"request_id"`
}

type statusURI struct {
	Code int `uri:"code" binding:"gte=200,lte=599"`
}

type statusQuery struct {
	RetryAfter string `form:"retry_after"`
}

type chunksQuery struct {
	N     int           `form:"n,default=3" binding:"gte=0"`
	Size  int           `form:"size,default=4" binding:"gte=1,lte=1048576"`
	Delay time.Duration `form:"delay"`
}

type redirectQuery struct {
	To     string `form:"to,default=/echo"`
	Status int    `form:"status,default=302" binding:"oneof=301 302 303 307 308"`
	Hops   int    `form:"hops,default=1" binding:"gte=1,lte=20"`
}

type slowQuery struct {
	Delay time.Duration `form:"delay,default=1s"`
}

type eventsQuery struct {
	N        int           `form:"n,default=3" binding:"gte=0"`
	Interval time.Duration `form:"interval"`
	Retry    uint          `form:"retry"`
}

// Tick is the data of each /events event.
type Tick struct {
	Seq int `json:"seq"`
}

func (s *Server) registerRoutes() {
	s.engine.Any("/echo", s.echo)
	s.engine.GET("/status/:code", s.status)
	s.engine.GET("/chunks", s.chunks)
	s.engine.GET("/redirect", s.redirect)
	s.engine.GET("/slow", s.slow)
	s.engine.GET("/events", s.events)
	s.engine.GET("/health", s.health)
	s.engine.NoRoute(s.static())
}

// echo answers with the request as JSON.
func (s *Server) echo(c *gin.Context) {
	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(c.Request.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				RespondWithError(c, apperrors.New(apperrors.ErrCodeInvalidInput,
					fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge))
				return
			}
			RespondWithError(c, apperrors.Validation("could not read body").WithCause(err))
			return
		}
	}

	c.Header(HeaderFixture, "echo")
	c.Header("X-Echo-Method", c.Request.Method)
	c.JSON(http.StatusOK, EchoResponse{
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Query:     c.Request.URL.Query(),
		Headers:   c.Request.Header,
		Body:      string(body),
		BodySize:  len(body),
		RequestID: c.GetString(logger.FieldRequestID),
	})
}

// status answers with the requested status. Error statuses carry an
// error body.
func (s *Server) status(c *gin.Context) {
	var uri statusURI
	if err := c.ShouldBindUri(&uri); err != nil {
		RespondWithError(c, apperrors.InvalidInput("code", err.Error()))
		return
	}
	var q statusQuery
	if !bindQuery(c, &q) {
		return
	}

	c.Header(HeaderFixture, "status")
	if q.RetryAfter != "" {
		c.Header("Retry-After", q.RetryAfter)
	}
	switch {
	case uri.Code >= 400:
		appErr := apperrors.FromStatus(uri.Code, fmt.Sprintf("fixture status %d", uri.Code))
		c.AbortWithStatusJSON(uri.Code, appErr.ToResponse())
	case uri.Code == http.StatusNoContent || uri.Code == http.StatusNotModified:
		c.Status(uri.Code)
	default:
		c.JSON(uri.Code, gin.H{"status": uri.Code})
	}
}

// chunks writes n flushed chunks of size bytes, pausing delay between them.
// Chunk i repeats the letter 'a'+i.
func (s *Server) chunks(c *gin.Context) {
	var q chunksQuery
	if !bindQuery(c, &q) {
		return
	}
	if q.N > s.config.MaxChunks {
		RespondWithError(c, apperrors.InvalidInput("n", fmt.Sprintf("at most %d", s.config.MaxChunks)))
		return
	}
	delay := s.clampDelay(q.Delay)
	ctx := c.Request.Context()

	c.Header(HeaderFixture, "chunks")
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	for i := 0; i < q.N; i++ {
		if i > 0 && !sleep(ctx, delay) {
			s.clientGone(c, "chunks", i)
			return
		}
		if _, err := c.Writer.Write(bytes.Repeat([]byte{byte('a' + i%26)}, q.Size)); err != nil {
			s.clientGone(c, "chunks", i)
			return
		}
		c.Writer.Flush()
	}
}

// redirect answers with a redirect to a same-origin path, through hops-1
// further redirects.
func (s *Server) redirect(c *gin.Context) {
	var q redirectQuery
	if !bindQuery(c, &q) {
		return
	}
	if !strings.HasPrefix(q.To, "/") || strings.HasPrefix(q.To, "//") {
		RespondWithError(c, apperrors.InvalidInput("to", "must be a path on this server"))
		return
	}

	location := q.To
	if q.Hops > 1 {
		v := url.Values{}
		v.Set("to", q.To)
		v.Set("status", strconv.Itoa(q.Status))
		v.Set("hops", strconv.Itoa(q.Hops-1))
		location = "/redirect?" + v.Encode()
	}
	c.Header(HeaderFixture, "redirect")
	c.Redirect(q.Status, location)
}

// slow answers after delay unless the client gives up first.
func (s *Server) slow(c *gin.Context) {
	var q slowQuery
	if !bindQuery(c, &q) {
		return
	}
	delay := s.clampDelay(q.Delay)
	if !sleep(c.Request.Context(), delay) {
		s.clientGone(c, "slow", 0)
		return
	}
	c.Header(HeaderFixture, "slow")
	c.JSON(http.StatusOK, gin.H{"delay": delay.String()})
}

// events streams n "tick" events. A Last-Event-ID header resumes after
// that id.
func (s *Server) events(c *gin.Context) {
	var q eventsQuery
	if !bindQuery(c, &q) {
		return
	}
	if q.N > s.config.MaxChunks {
		RespondWithError(c, apperrors.InvalidInput("n", fmt.Sprintf("at most %d", s.config.MaxChunks)))
		return
	}
	start := 1
	if last, err := strconv.Atoi(c.GetHeader("Last-Event-ID")); err == nil && last >= 0 {
		start = last + 1
	}
	interval := s.clampDelay(q.Interval)
	ctx := c.Request.Context()

	c.Header(HeaderFixture, "events")
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	for i := 0; i < q.N; i++ {
		if i > 0 && !sleep(ctx, interval) {
			s.clientGone(c, "events", i)
			return
		}
		ev := sse.Event{Id: strconv.Itoa(start + i), Event: "tick", Data: Tick{Seq: start + i}}
		if i == 0 {
			ev.Retry = q.Retry
		}
		c.Render(-1, ev)
		c.Writer.Flush()
	}
}

// health reports the overall status of the registered components.
func (s *Server) health(c *gin.Context) {
	var components []component.Health
	if s.checker != nil {
		components = s.checker(c.Request.Context())
	}
	status := component.Overall(components)

	code := http.StatusOK
	if status == component.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     status,
		"service":    s.name,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}

// static serves StaticDir for unmatched GET and HEAD requests.
func (s *Server) static() gin.HandlerFunc {
	var files http.Handler
	if s.config.StaticDir != "" {
		files = http.FileServer(http.Dir(s.config.StaticDir))
	}
	return func(c *gin.Context) {
		m := c.Request.Method
		if files == nil || (m != http.MethodGet && m != http.MethodHead) {
			RespondWithError(c, apperrors.NotFound(c.Request.URL.Path))
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	}
}

func (s *Server) clientGone(c *gin.Context, fixture string, sent int) {
	s.log.WithContext(c.Request.Context()).Debug("client went away", logger.Fields("fixture", fixture, "sent", sent))
	c.Abort()
}

// sleep waits d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
