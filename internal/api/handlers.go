// Riskgate - Authentication Risk Scoring Engine
// Copyright 2026 Riskgate Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/riskgate/riskgate

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/riskgate/riskgate/internal/logging"
	"github.com/riskgate/riskgate/internal/risk"
	"github.com/riskgate/riskgate/internal/store"
)

// maxRequestBody caps analysis payloads at 1 MiB. Session event lists
// and fingerprints are small; anything larger is hostile.
const maxRequestBody = 1 << 20

// signalRoutes maps URL path segments to detector names.
var signalRoutes = map[string]string{
	"geo-velocity":       risk.DetectorGeoVelocity,
	"password-attack":    risk.DetectorPasswordAttack,
	"account-velocity":   risk.DetectorAccountVelocity,
	"session-anomaly":    risk.DetectorSession,
	"device-fingerprint": risk.DetectorDevice,
	"user-agent":         risk.DetectorUserAgent,
	"ip-reputation":      risk.DetectorIPReputation,
	"access-time":        risk.DetectorAccessTime,
}

// Handler serves the analysis and event-ingestion endpoints.
type Handler struct {
	engine   *risk.Engine
	store    store.Store
	validate *validator.Validate
}

// NewHandler creates an API handler backed by the given engine and store.
func NewHandler(engine *risk.Engine, st store.Store) *Handler {
	return &Handler{
		engine:   engine,
		store:    st,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Analyze runs every detector against the event and returns the fused
// verdict.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req, ok := h.decodeAnalyzeRequest(rw, r)
	if !ok {
		return
	}

	event := req.toAuthEvent()
	result := h.engine.Evaluate(r.Context(), &event)

	logging.Info().
		Str("request_id", logging.RequestIDFromContext(r.Context())).
		Str("user_id", req.UserID).
		Int("overall_risk", result.OverallRisk).
		Str("risk_level", result.RiskLevel).
		Msg("analysis complete")

	rw.Success(result)
}

// AnalyzeSignal runs a single detector. The detector is selected by the
// {signal} URL parameter, resolved by the router before dispatch.
func (h *Handler) AnalyzeSignal(detector string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)

		req, ok := h.decodeAnalyzeRequest(rw, r)
		if !ok {
			return
		}

		event := req.toAuthEvent()
		signal, err := h.engine.EvaluateOne(r.Context(), detector, &event)
		if err != nil {
			rw.NotFound("unknown signal: " + detector)
			return
		}

		rw.Success(map[string]any{
			"signal":    detector,
			"predictor": signal,
		})
	}
}

// RecordFailedLogin ingests a failed authentication attempt.
func (h *Handler) RecordFailedLogin(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req FailedLoginRequest
	if !h.decode(rw, r, &req) {
		return
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec := store.FailedLoginRecord{
		UserID:    req.Username,
		IP:        req.IPAddress,
		Timestamp: ts,
	}
	if err := h.store.AppendFailedLogin(r.Context(), rec); err != nil {
		logging.Error().Err(err).Str("ip", req.IPAddress).Msg("failed to record failed login")
		rw.InternalError("failed to record event")
		return
	}

	rw.Created(map[string]any{"recorded": true})
}

// RecordRegistration ingests an account signup.
func (h *Handler) RecordRegistration(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req RegistrationRequest
	if !h.decode(rw, r, &req) {
		return
	}

	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec := store.RegistrationRecord{
		IP:          req.IPAddress,
		EmailDomain: risk.EmailDomain(req.Email),
		Subnet:      risk.SubnetOf(req.IPAddress),
		Timestamp:   ts,
	}
	if err := h.store.RecordRegistration(r.Context(), rec); err != nil {
		logging.Error().Err(err).Str("ip", req.IPAddress).Msg("failed to record registration")
		rw.InternalError("failed to record event")
		return
	}

	rw.Created(map[string]any{"recorded": true})
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"status": "alive",
	})
}

// HealthReady reports readiness by probing the store.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	_, err := h.store.IPReputation(r.Context(), "127.0.0.1")
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "store unavailable")
		return
	}

	rw.Success(map[string]any{
		"status": "ready",
	})
}

func (h *Handler) decodeAnalyzeRequest(rw *ResponseWriter, r *http.Request) (*AnalyzeRequest, bool) {
	var req AnalyzeRequest
	if !h.decode(rw, r, &req) {
		return nil, false
	}
	return &req, true
}

// decode reads, unmarshals, and validates a JSON request body. It
// writes the error response itself and reports success to the caller.
func (h *Handler) decode(rw *ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		rw.BadRequest("failed to read request body")
		return false
	}
	if len(body) == 0 {
		rw.BadRequest("request body is required")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		rw.BadRequest("invalid JSON: " + err.Error())
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			rw.ValidationFailed(details)
		} else {
			rw.BadRequest("request validation failed")
		}
		return false
	}
	return true
}
