package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"simpleindex/internal/index"
	"simpleindex/internal/logger"
)

// ProxyEvent is the subset of an API Gateway proxy event the index reads.
// Both the REST (v1) and HTTP API (v2) payload shapes are accepted.
type ProxyEvent struct {
	HTTPMethod     string         `json:"httpMethod"`
	Path           string         `json:"path"`
	RawPath        string         `json:"rawPath"`
	RequestContext RequestContext `json:"requestContext"`
}

// RequestContext carries the v2 method and path
type RequestContext struct {
	HTTP struct {
		Method string `json:"method"`
		Path   string `json:"path"`
	} `json:"http"`
	RequestID string `json:"requestId"`
}

// Method returns the request method, preferring the v1 field
func (e ProxyEvent) Method() string {
	if e.HTTPMethod != "" {
		return e.HTTPMethod
	}
	return e.RequestContext.HTTP.Method
}

// RequestPath returns the request path, preferring the v1 field
func (e ProxyEvent) RequestPath() string {
	switch {
	case e.Path != "":
		return e.Path
	case e.RawPath != "":
		return e.RawPath
	default:
		return e.RequestContext.HTTP.Path
	}
}

// Handler turns proxy events into response envelopes
type Handler struct {
	router *index.Router
	logger *logger.Logger
}

// NewHandler creates a handler and logs the base path it serves
func NewHandler(router *index.Router, log *logger.Logger) *Handler {
	log.Infof("BASE_PATH: %s", router.BasePath())
	return &Handler{router: router, logger: log}
}

// Handle routes one event. Store failures are returned as errors so the
// invoker reports the invocation as failed.
func (h *Handler) Handle(ctx context.Context, event ProxyEvent) (index.Response, error) {
	h.logger.WithField("request_id", event.RequestContext.RequestID).Debugf("EVENT: %+v", event)

	res, err := h.router.Route(ctx, event.Method(), event.RequestPath())
	if err != nil {
		return index.Response{}, err
	}

	h.logger.Debugf("RESPONSE: status=%d bytes=%d", res.StatusCode, len(res.Body))
	return res, nil
}

// Serve decodes one event from r, handles it and encodes the envelope to w
func (h *Handler) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var event ProxyEvent
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}

	res, err := h.Handle(ctx, event)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}
