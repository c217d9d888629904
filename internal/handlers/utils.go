package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dailyjudge/apiserver/internal/judge"
	"github.com/dailyjudge/apiserver/internal/services"
	"github.com/dailyjudge/apiserver/internal/store"
	"github.com/dailyjudge/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func userIDFromContext(ctx context.Context) (int, error) {
	value := ctx.Value(contextSubjectKey)
	switch subject := value.(type) {
	case int:
		if subject < 1 {
			return 0, errors.New("invalid subject")
		}
		return subject, nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(subject))
		if err != nil || parsed < 1 {
			return 0, errors.New("invalid subject")
		}
		return parsed, nil
	default:
		return 0, errors.New("missing subject")
	}
}

// currentUser loads the authenticated user. It writes the error response
// itself and reports false when the request cannot continue.
func currentUser(w http.ResponseWriter, r *http.Request, users *services.UserService) (types.User, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, false
	}

	user, err := users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return types.User{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return types.User{}, false
	}
	return user, true
}

// requireAdmin rejects callers that are not admins or super-admins.
func requireAdmin(users *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := currentUser(w, r, users)
			if !ok {
				return
			}
			if !user.IsPrivileged() {
				writeError(w, http.StatusForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// statusForError maps service errors to an HTTP status and a client message.
// Unrecognised errors become 500 with the fallback message.
func statusForError(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidSubmission),
		errors.Is(err, services.ErrInvalidProblem),
		errors.Is(err, judge.ErrUnsupportedLanguage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrProblemNotFound):
		return http.StatusNotFound, "problem not found"
	case errors.Is(err, services.ErrSubmissionNotFound):
		return http.StatusNotFound, "submission not found"
	case errors.Is(err, services.ErrNoProblemsAvailable):
		return http.StatusNotFound, "no daily challenge available"
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, store.ErrImmutable):
		return http.StatusConflict, "submission is already judged"
	case services.IsRetryable(err):
		return http.StatusBadGateway, "judge service unavailable, please retry"
	default:
		return http.StatusInternalServerError, fallback
	}
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	status, message := statusForError(err, fallback)
	writeError(w, status, message)
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}
