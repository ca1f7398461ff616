// Package api serves link resolution over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/ytget/pahedl"
	"github.com/ytget/pahedl/animepahe/quality"
	"github.com/ytget/pahedl/animepahe/series"
	"github.com/ytget/pahedl/errs"
	"github.com/ytget/pahedl/internal/logger"
	"github.com/ytget/pahedl/internal/metrics"
	"github.com/ytget/pahedl/types"
)

const (
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 10 * time.Second
)

// Candidate is the JSON form of types.EpisodeCandidate.
type Candidate struct {
	LockerLink string `json:"locker_link"`
	Name       string `json:"name"`
	Height     int    `json:"height"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server exposes an Extractor over HTTP.
type Server struct {
	extractor *pahedl.Extractor
	metrics   *metrics.Metrics
	router    *gin.Engine
}

// New builds the routes. m may be nil, in which case /metrics answers 404.
func New(e *pahedl.Extractor, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{extractor: e, metrics: m, router: gin.New()}
	s.router.Use(gin.Recovery(), requestLogger())

	s.router.GET("/health", s.health)
	s.router.GET("/candidates", s.candidates)
	s.router.GET("/resolve", s.resolve)
	s.router.GET("/episode", s.episode)
	s.router.GET("/series", s.series)
	s.router.GET("/metrics", gin.WrapH(m.Handler()))
	return s
}

// Handler returns the router wrapped with permissive CORS.
func (s *Server) Handler() http.Handler {
	return cors.Default().Handler(s.router)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log := logger.WithComponent(logger.ComponentAPI)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.Fields{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		start := time.Now()
		c.Next()
		logger.WithComponent(logger.ComponentAPI).Info("request", logger.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"took":       time.Since(start).String(),
		})
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) candidates(c *gin.Context) {
	link, ok := s.episodeLink(c)
	if !ok {
		return
	}
	list, err := s.extractor.Candidates(c.Request.Context(), link)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": link, "candidates": toCandidates(list)})
}

func (s *Server) resolve(c *gin.Context) {
	link := strings.TrimSpace(c.Query("link"))
	if prefix := s.extractor.Options().LockerPrefix; !strings.HasPrefix(link, prefix) || len(link) == len(prefix) {
		abort(c, http.StatusBadRequest, "invalid_link", "link must be a locker link starting with "+prefix)
		return
	}
	direct, err := s.extractor.ResolveEpisodeDirectLink(c.Request.Context(), link)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": link, "direct_link": direct})
}

func (s *Server) episode(c *gin.Context) {
	link, ok := s.episodeLink(c)
	if !ok {
		return
	}
	target := s.extractor.Options().Quality
	if q := c.Query("quality"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < quality.Lowest {
			abort(c, http.StatusBadRequest, "invalid_quality", "quality must be 0 (highest), -1 (lowest) or a height like 720")
			return
		}
		target = n
	}

	ctx := c.Request.Context()
	list, err := s.extractor.Candidates(ctx, link)
	if err != nil {
		fail(c, err)
		return
	}
	picked, err := s.extractor.SelectCandidate(list, target)
	if err != nil {
		fail(c, err)
		return
	}
	direct, err := s.extractor.ResolveEpisodeDirectLink(ctx, picked.LockerLink)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"link":        link,
		"quality":     quality.Describe(target),
		"candidate":   toCandidate(picked),
		"direct_link": direct,
	})
}

func (s *Server) series(c *gin.Context) {
	link := strings.TrimSpace(c.Query("link"))
	if !series.IsSeriesLinkOn(s.extractor.Options().BaseURL, link) {
		abort(c, http.StatusBadRequest, "invalid_link", "link must be a series page")
		return
	}
	rng := types.EpisodeRange{All: true}
	if q := c.Query("episodes"); q != "" {
		r, err := series.ParseRange(q)
		if err != nil {
			fail(c, err)
			return
		}
		rng = r
	}

	ctx := c.Request.Context()
	info, err := s.extractor.SeriesInfo(ctx, link)
	if err != nil {
		fail(c, err)
		return
	}
	links, err := s.extractor.EpisodeLinks(ctx, link, rng)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       info.ID,
		"title":    info.Title,
		"type":     info.Type,
		"total":    info.EpisodeCount,
		"range":    rng.String(),
		"episodes": links,
	})
}

func (s *Server) episodeLink(c *gin.Context) (string, bool) {
	link := strings.TrimSpace(c.Query("link"))
	if !series.IsEpisodeLinkOn(s.extractor.Options().BaseURL, link) {
		abort(c, http.StatusBadRequest, "invalid_link", "link must be an episode play page")
		return "", false
	}
	return link, true
}

func toCandidate(e types.EpisodeCandidate) Candidate {
	return Candidate{LockerLink: e.LockerLink, Name: e.DisplayName, Height: e.ResolutionHeight}
}

func toCandidates(list []types.EpisodeCandidate) []Candidate {
	out := make([]Candidate, 0, len(list))
	for _, e := range list {
		out = append(out, toCandidate(e))
	}
	return out
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

// fail maps resolution errors to HTTP statuses.
func fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, errs.ErrInvalidLink):
		status, code = http.StatusBadRequest, "invalid_link"
	case errors.Is(err, errs.ErrInvalidRange):
		status, code = http.StatusBadRequest, "invalid_range"
	case errors.Is(err, errs.ErrNoCandidatesFound), errors.Is(err, errs.ErrEmptyCandidateSet):
		status, code = http.StatusNotFound, "no_candidates"
	case errors.Is(err, errs.ErrRetryLimitExceeded):
		status, code = http.StatusBadGateway, "retry_limit_exceeded"
	case errors.Is(err, errs.ErrRedirectNotFound):
		status, code = http.StatusBadGateway, "redirect_not_found"
	case errors.Is(err, errs.ErrUpstreamUnavailable):
		status, code = http.StatusBadGateway, "upstream_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	}
	abort(c, status, code, err.Error())
}
