package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/errs"
)

// handleListAudit returns recorded domain events, newest first.
//
// Query parameters:
//   - event_type: exact event type (user.login.failed, TOKEN_REVOKED, ...)
//   - aggregate_id: events of one aggregate
//   - since, until: RFC 3339 bounds, since inclusive and until exclusive
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		EventType:   q.Get("event_type"),
		AggregateID: q.Get("aggregate_id"),
		Limit:       queryInt(r, "limit"),
		Offset:      queryInt(r, "offset"),
	}

	var err error
	if filter.Since, err = queryTime(r, "since"); err != nil {
		s.writeDomainError(w, r, "list audit", err)
		return
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		s.writeDomainError(w, r, "list audit", err)
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, "list audit", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errs.NewValidationError(key, "must be an RFC 3339 timestamp")
	}
	return t, nil
}
