// Package http implements the Bancho HTTP transport (spec §6): the
// long-poll POST / endpoint (login or packet-stream poll), a GET /
// liveness banner, and the accepted-but-mostly-stubbed osu!-web endpoint
// surface. Grounded on the donor's api.go (echo.New, HideBanner,
// RequestLoggerWithConfig, a jsonErrorHandler, graceful Start/Shutdown).
package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"banchod/internal/bancho"
)

const (
	headerOsuToken = "osu-token"
	headerChoToken = "cho-token"
)

// Server hosts the Bancho transport on one Echo instance.
type Server struct {
	dispatcher *bancho.Dispatcher
	echo       *echo.Echo
	log        *slog.Logger
}

// New builds a Server wired to dispatcher. A nil logger falls back to
// slog.Default().
func New(dispatcher *bancho.Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("bancho http request",
				"method", v.Method, "uri", v.URI, "status", v.Status, "request_id", v.RequestID)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{dispatcher: dispatcher, echo: e, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST("/", s.handleBancho)
	s.echo.GET("/", s.handleBanner)

	// osu!-web endpoints (spec §6): external collaborators, accepted for
	// wire compatibility but not part of the core. Most return "ok" or
	// are otherwise unimplemented.
	s.echo.Any("/web/*", s.handleOsuWebStub)
	s.echo.GET("/users", s.handleOsuWebStub)
	s.echo.GET("/d/:id", s.handleOsuWebStub)
	s.echo.GET("/ss/:shot", s.handleOsuWebStub)
}

// Run starts the HTTP server on addr and blocks until ctx is canceled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("bancho http server listening", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleBanner(c echo.Context) error {
	return c.String(http.StatusOK, "bancho server")
}

// handleBancho is the wire-compatible POST / endpoint (spec §6): login
// when osu-token is absent, a packet-stream poll otherwise.
func (s *Server) handleBancho(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	token := req.Header.Get(headerOsuToken)
	ip := clientIP(req)

	newToken, resp, err := s.dispatcher.Handle(req.Context(), token, body, ip, time.Now())
	if err != nil {
		if errors.Is(err, bancho.ErrSessionNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "session not found")
		}
		s.log.Error("bancho dispatch failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if newToken != "" {
		c.Response().Header().Set(headerChoToken, newToken)
	}
	return c.Blob(http.StatusOK, "application/octet-stream", resp)
}

// clientIP resolves the request's source address, preferring a
// reverse-proxy-supplied X-Forwarded-For over RemoteAddr.
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// handleOsuWebStub answers every osu!-web endpoint with the literal "ok"
// body the original client expects for not-yet-implemented routes (spec
// §6: "external collaborators, specified only at their interface").
func (s *Server) handleOsuWebStub(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// jsonErrorHandler matches the donor's consistent {"error": msg} body
// for every non-2xx response (server/api.go).
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
