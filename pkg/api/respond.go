package api

import (
	"encoding/json"
	"net/http"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/telemetry"
)

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type errorEnvelope struct {
	Success   bool      `json:"success"`
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError shapes any error into the stable envelope. Structured errors
// keep their code and context; plain errors become E5001.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	se := diag.AsStructured(err)
	if m := s.metrics(); m != nil {
		m.RecordError(se.Code.String())
	}
	body := errorEnvelope{
		Error: errorBody{
			Code:    se.Code.String(),
			Message: se.Message,
		},
		RequestID: requestIDFromContext(r.Context()),
	}
	if len(se.Context) > 0 || se.Path != "" || se.Suggestion != "" {
		details := map[string]interface{}{}
		for k, v := range se.Context {
			details[k] = v
		}
		if se.Path != "" {
			details["path"] = se.Path
		}
		if se.Suggestion != "" {
			details["suggestion"] = se.Suggestion
		}
		body.Error.Details = details
	}
	s.writeJSON(w, httpStatusFor(se.Code), body)
}

// writeBadRequest wraps malformed-input errors without a structured code.
func (s *Server) writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	s.writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorBody{
			Code:    diag.CodeInvalidJSON.String(),
			Message: message,
		},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func httpStatusFor(code diag.Code) int {
	switch code {
	case diag.CodeVersionNotFound:
		return http.StatusNotFound
	case diag.CodeExecutionTimeout:
		return http.StatusGatewayTimeout
	case diag.CodeRunnerNotFound, diag.CodeMissingAPIKey:
		return http.StatusServiceUnavailable
	case diag.CodeLLMAPIError:
		return http.StatusBadGateway
	}
	switch code.Category() {
	case diag.CategoryValidation, diag.CategoryGeneration, diag.CategoryConfiguration:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) metrics() *telemetry.Metrics {
	if s.deps.Telemetry == nil {
		return nil
	}
	return s.deps.Telemetry.Metrics
}

func (s *Server) events() *telemetry.EventPublisher {
	if s.deps.Telemetry == nil {
		return nil
	}
	return s.deps.Telemetry.Events
}

func decodeJSONBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
