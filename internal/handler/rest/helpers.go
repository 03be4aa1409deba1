package rest

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/webitel/im-gamification-service/internal/domain/model"
)

const maxBodyBytes = 1 << 20

// APIError is the error body of every non-2xx response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("RESPONSE_ENCODE_FAILED", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: APIError{Code: code, Message: message}})
}

// decodeBody reads a JSON body into dst and validates its struct tags.
func (rt *Router) decodeBody(w http.ResponseWriter, r *http.Request, dst any) *APIError {
	if err := newBodyDecoder(w, r).Decode(dst); err != nil {
		return &APIError{Code: "INVALID_JSON", Message: err.Error()}
	}
	return rt.validateRequest(dst)
}

func newBodyDecoder(w http.ResponseWriter, r *http.Request) *json.Decoder {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

func (rt *Router) validateRequest(v any) *APIError {
	err := rt.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &APIError{Code: "VALIDATION_ERROR", Message: err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return &APIError{Code: "VALIDATION_ERROR", Message: strings.Join(msgs, "; ")}
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func getIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// pageRequest is validated before normalization so out-of-range input is rejected.
type pageRequest struct {
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`
}

func (rt *Router) page(r *http.Request) (model.Page, *APIError) {
	req := pageRequest{
		Limit:  getIntParam(r, "limit", 0),
		Offset: getIntParam(r, "offset", 0),
	}
	if apiErr := rt.validateRequest(&req); apiErr != nil {
		return model.Page{}, apiErr
	}
	return model.Page{Limit: req.Limit, Offset: req.Offset}.Normalize(), nil
}
