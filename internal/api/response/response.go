package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Problem is the body of every non-2xx reply.
type Problem struct {
	Status    int    `json:"code"`
	Title     string `json:"error"`
	Detail    string `json:"message,omitempty"`
	Context   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Envelope wraps successful payloads.
type Envelope struct {
	Data any `json:"data"`
}

// Page is an Envelope with pagination counters.
type Page struct {
	Data       any `json:"data"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// JSON encodes body with the given status. A nil body writes headers only.
func JSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Warn("Response encode failed", "component", "api", "status", status, "error", err)
	}
}

func Success(w http.ResponseWriter, data any) { JSON(w, http.StatusOK, Envelope{Data: data}) }

func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, Envelope{Data: data}) }

func NoContent(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }

// Paginated replies with one page of a larger result. pageSize must be positive.
func Paginated(w http.ResponseWriter, data any, page, pageSize, totalCount int) {
	pages := max((totalCount+pageSize-1)/pageSize, 1)
	JSON(w, http.StatusOK, Page{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: pages,
	})
}

func problem(status int, err error, details any) Problem {
	p := Problem{Status: status, Title: http.StatusText(status), Context: details}
	if err != nil {
		p.Detail = err.Error()
	}
	return p
}

// Error replies with status and the error text as the message.
func Error(w http.ResponseWriter, status int, err error) {
	JSON(w, status, problem(status, err, nil))
}

func BadRequest(w http.ResponseWriter, err error) { Error(w, http.StatusBadRequest, err) }

func Forbidden(w http.ResponseWriter, err error) { Error(w, http.StatusForbidden, err) }

func NotFound(w http.ResponseWriter, err error) { Error(w, http.StatusNotFound, err) }

// Conflict replies 409. details carries whatever the client needs to resolve
// the conflict, such as the id of an existing trade.
func Conflict(w http.ResponseWriter, err error, details any) {
	JSON(w, http.StatusConflict, problem(http.StatusConflict, err, details))
}

// ServiceUnavailable replies 503, used while stores are still loading or the
// session is signed out.
func ServiceUnavailable(w http.ResponseWriter, err error) {
	Error(w, http.StatusServiceUnavailable, err)
}

// InternalError logs err against the request id and replies 500 without
// leaking the underlying message.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetReqID(r.Context())
	slog.Default().Error("Request failed",
		"component", "api",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", reqID,
		"error", err)

	p := problem(http.StatusInternalServerError, nil, nil)
	p.Detail = "internal error, see daemon log"
	p.RequestID = reqID
	JSON(w, http.StatusInternalServerError, p)
}
