package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"shiptivity/api/internal/search"
	"shiptivity/api/internal/store"
	"shiptivity/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *log.Logger
	echo       *echo.Echo
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, logger: service.log()}
	s.echo = s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return util.NewID("") },
	}))
	e.Use(s.accessLog)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.corsOrigin},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodOptions},
	}))
	e.Use(noStore)

	e.GET("/", s.handleRoot)
	e.Match([]string{http.MethodGet, http.MethodHead}, "/api/health", s.handleHealth)
	e.Match([]string{http.MethodGet, http.MethodHead}, "/api/ready", s.handleReady)

	v1 := e.Group("/api/v1")
	v1.GET("/clients", s.handleListClients)
	v1.GET("/clients/search", s.handleSearch)
	v1.GET("/clients/:id", s.handleGetClient)
	v1.PUT("/clients/:id", s.handleReorder)
	v1.GET("/board", s.handleBoard)
	return e
}

func (s *HTTPServer) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"message": "SHIPTIVITY API. Read documentation to see API docs"})
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.ReadyChecks(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	return c.JSON(statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleListClients(c echo.Context) error {
	status, err := parseStatusParam(c.QueryParam("status"))
	if err != nil {
		return err
	}
	clients, err := s.service.ListClients(c.Request().Context(), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, clients)
}

func (s *HTTPServer) handleGetClient(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}
	client, err := s.service.GetClient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, client)
}

type reorderBody struct {
	Status   json.RawMessage `json:"status"`
	Priority json.RawMessage `json:"priority"`
}

func (s *HTTPServer) handleReorder(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c.Param("id"))
	if err != nil {
		return err
	}
	if _, err := s.service.GetClient(ctx, id); err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) && domainErr.Code == CodeNotFound {
			return errUnknownClient()
		}
		return err
	}

	var body reorderBody
	if err := decodeBody(c.Request(), &body); err != nil {
		return err
	}
	priority, err := parsePriority(body.Priority)
	if err != nil {
		return err
	}
	status, err := parseStatusField(body.Status)
	if err != nil {
		return err
	}

	clients, err := s.service.ReorderClient(ctx, id, ReorderInput{Status: status, Priority: priority})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, clients)
}

func (s *HTTPServer) handleBoard(c echo.Context) error {
	b, err := s.service.Board(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, b)
}

func (s *HTTPServer) handleSearch(c echo.Context) error {
	status, err := parseStatusParam(c.QueryParam("status"))
	if err != nil {
		return err
	}
	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return domainError(http.StatusBadRequest, "INVALID_LIMIT", "Invalid limit provided.", "Limit can only be a positive integer.")
		}
	}
	resp := s.service.SearchClients(c.Request().Context(), search.Query{
		Text:   c.QueryParam("q"),
		Status: status,
		Limit:  limit,
	})
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		s.logger.WithFields(log.Fields{
			"request_id":  c.Response().Header().Get(echo.HeaderXRequestID),
			"method":      req.Method,
			"path":        req.URL.Path,
			"status":      c.Response().Status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http.request")
		return nil
	}
}

func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}

func (s *HTTPServer) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code, message, longMessage := mapError(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.logger.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
	}
	writeError(c, status, code, message, longMessage)
}

func writeError(c echo.Context, status int, code, message, longMessage string) {
	response := map[string]any{
		"code":         code,
		"message":      message,
		"long_message": longMessage,
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, response)
}

func mapError(err error) (status int, code, message, longMessage string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.LongMessage
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, CodeNotFound, "Not found.", "Not found."
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		text := http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			text = msg
		}
		return httpErr.Code, strings.ToUpper(strings.ReplaceAll(http.StatusText(httpErr.Code), " ", "_")), text, text
	}
	return http.StatusInternalServerError, CodeServerError, "Server error.", "Server error."
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody("Body must be a JSON object.")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errInvalidBody("Body must hold a single JSON object.")
	}
	return nil
}

// parseID accepts base-10 integers only; "12abc" is rejected.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, errIDNotInteger()
	}
	return id, nil
}

func parseStatusParam(raw string) (store.Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	status, ok := store.ParseStatus(raw)
	if !ok {
		return "", errInvalidStatus()
	}
	return status, nil
}

// parseStatusField reads the optional status of a reorder body. JSON null is
// treated as absent; any other non-token value is rejected.
func parseStatusField(raw json.RawMessage) (*store.Status, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, errInvalidStatus()
	}
	status, ok := store.ParseStatus(text)
	if !ok {
		return nil, errInvalidStatus()
	}
	return &status, nil
}

// parsePriority accepts a JSON number or a numeric string. Fractions are
// floored; range checks are left to the reorder planner, which clamps.
func parsePriority(raw json.RawMessage) (*int, error) {
	if isAbsent(raw) {
		return nil, nil
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, errInvalidPriority()
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, errInvalidPriority()
		}
		value, err = strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errInvalidPriority()
		}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, errInvalidPriority()
	}

	value = math.Floor(value)
	if value > math.MaxInt32 {
		value = math.MaxInt32
	}
	if value < math.MinInt32 {
		value = math.MinInt32
	}
	priority := int(value)
	return &priority, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
