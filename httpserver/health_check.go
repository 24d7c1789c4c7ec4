/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/acronis/grpc-backpressure-lab/log"
)

// StatusClientClosedRequest is the Nginx status for a request the client gave up on before the response.
const StatusClientClosedRequest = 499

// ContentTypeAppJSON is the content type of the health-check response.
const ContentTypeAppJSON = "application/json"

// HealthCheckStatus is the health of a single component.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// String returns "ok" or "fail".
func (s HealthCheckStatus) String() string {
	if s == HealthCheckStatusOK {
		return "ok"
	}
	return "fail"
}

// HealthCheckResult maps component names (e.g. "grpc", "loadgen") to their statuses.
type HealthCheckResult = map[string]HealthCheckStatus

// HealthCheck reports the component statuses. It's called for every /healthz request.
type HealthCheck = func(ctx context.Context) (HealthCheckResult, error)

type healthCheckResponse struct {
	Status     string          `json:"status"`
	Components map[string]bool `json:"components"`
}

func makeHealthCheckResponse(result HealthCheckResult) (healthCheckResponse, int) {
	resp := healthCheckResponse{Status: HealthCheckStatusOK.String(), Components: make(map[string]bool, len(result))}
	code := http.StatusOK
	for name, st := range result {
		resp.Components[name] = st == HealthCheckStatusOK
		if st != HealthCheckStatusOK {
			resp.Status = HealthCheckStatusFail.String()
			code = http.StatusServiceUnavailable
		}
	}
	return resp, code
}

// HealthCheckHandler serves /healthz.
// It responds 200 if every component is healthy, 503 if any is not, 500 if the check itself failed
// and 499 if the client went away.
type HealthCheckHandler struct {
	check  HealthCheck
	logger log.FieldLogger
}

// NewHealthCheckHandler creates a new HealthCheckHandler.
// A nil check reports no components (the process is up, that's all).
func NewHealthCheckHandler(check HealthCheck, logger log.FieldLogger) *HealthCheckHandler {
	if check == nil {
		check = func(ctx context.Context) (HealthCheckResult, error) {
			return nil, ctx.Err()
		}
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &HealthCheckHandler{check: check, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	result, err := h.check(r.Context())
	if err == nil {
		err = r.Context().Err()
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			rw.WriteHeader(StatusClientClosedRequest)
			return
		}
		h.logger.Error("health check failed", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp, code := makeHealthCheckResponse(result)
	rw.Header().Set("Content-Type", ContentTypeAppJSON)
	rw.WriteHeader(code)
	if err = json.NewEncoder(rw).Encode(resp); err != nil {
		h.logger.Warn("write health check response", log.Error(err))
	}
}
