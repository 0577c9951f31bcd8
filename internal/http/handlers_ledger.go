package http

import (
	"context"
	"errors"
	"net/http"

	"fintrack/internal/bucket"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// statusFor maps service errors onto HTTP statuses. Unknown errors are
// reported as a generic failure.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, bucket.ErrUnknownResource):
		return http.StatusNotFound, "unknown resource"
	case errors.Is(err, services.ErrMissingUser):
		return http.StatusBadRequest, "user id is required"
	case errors.Is(err, services.ErrInvalidUser):
		return http.StatusBadRequest, "user id must be valid UTF-8"
	case errors.Is(err, services.ErrInvalidKey), errors.Is(err, services.ErrInvalidRecord):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "entry not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// errorType classifies err for the error_type log field.
func errorType(err error) string {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, services.ErrMissingUser),
		errors.Is(err, services.ErrInvalidUser),
		errors.Is(err, services.ErrInvalidKey),
		errors.Is(err, services.ErrInvalidRecord):
		return log.ErrorTypeValidation
	case errors.Is(err, bucket.ErrUnknownResource), errors.Is(err, services.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	default:
		return log.ErrorTypeDatabase
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op, resource, userID, key string, err error) {
	status, msg := statusFor(err)
	fields := log.NewFields().WithEntry(resource, userID, key).WithErrorType(errorType(err))
	if status >= 500 {
		log.FromContext(r.Context()).LogError(r.Context(), "Ledger operation failed", err, op, fields)
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Ledger request rejected",
			fields.WithOperation(op).WithError(err).ToSlice()...)
	}
	writeError(w, status, msg)
}

func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"resources": s.ledgers.Resources()})
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")
	userID := requestUserID(r, "")

	ctx, cancel := s.storeContext(r)
	defer cancel()

	view, err := s.ledgers.Ledger(ctx, resource, userID)
	if err != nil {
		s.fail(w, r, log.OpList, resource, userID, "", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	resource, key := r.PathValue("resource"), r.PathValue("key")
	userID := requestUserID(r, "")

	ctx, cancel := s.storeContext(r)
	defer cancel()

	entry, err := s.ledgers.Entry(ctx, resource, userID, key)
	if err != nil {
		s.fail(w, r, log.OpRead, resource, userID, key, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSaveEntry(w http.ResponseWriter, r *http.Request) {
	resource := r.PathValue("resource")

	req, err := parseSaveRequest(w, r, resource)
	if err != nil {
		s.fail(w, r, log.OpUpsert, resource, "", "", err)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	res, err := s.ledgers.Save(ctx, req)
	if err != nil {
		s.fail(w, r, log.OpUpsert, resource, req.UserID, req.Key, err)
		return
	}
	if res.Evicted {
		writeJSON(w, http.StatusOK, map[string]any{
			"key":     req.Key,
			"evicted": true,
		})
		return
	}
	writeJSON(w, http.StatusOK, res.Entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	resource, key := r.PathValue("resource"), r.PathValue("key")
	userID := requestUserID(r, "")

	ctx, cancel := s.storeContext(r)
	defer cancel()

	if err := s.ledgers.Delete(ctx, resource, userID, key); err != nil {
		s.fail(w, r, log.OpDelete, resource, userID, key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
