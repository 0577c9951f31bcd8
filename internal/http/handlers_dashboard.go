package http

import (
	"fmt"
	"net/http"

	"fintrack/internal/log"
	"fintrack/internal/services"
)

type dashboardData struct {
	UserID    string
	Month     string
	Overview  services.Overview
	Resources []string
	Error     string
}

// handleDashboard renders every resource's current entry for ?userId= and ?month=
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Templates not loaded",
			log.FieldErrorType, log.ErrorTypeInternal)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	month := parseMonth(r, s.now())
	data := dashboardData{
		UserID:    requestUserID(r, ""),
		Month:     month.Format("2006-01"),
		Resources: s.ledgers.Resources(),
	}

	if data.UserID != "" {
		ctx, cancel := s.storeContext(r)
		defer cancel()

		ov, err := s.ledgers.Overview(ctx, data.UserID, month)
		if err != nil {
			log.FromContext(ctx).LogError(ctx, "Dashboard overview failed", err, log.OpRender,
				log.NewFields().WithEntry("*", data.UserID, data.Month).WithErrorType(errorType(err)))
			data.Error = "Could not load ledgers, please retry."
		} else {
			data.Overview = ov
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentTemplate).LogError(r.Context(),
			"Dashboard template execution failed", err, log.OpRender,
			log.NewFields().WithErrorType(log.ErrorTypeInternal))
	}
}

// handleDashboardSave handles the dashboard's HTMX entry form
func (s *Server) handleDashboardSave(w http.ResponseWriter, r *http.Request) {
	req, err := parseEntryForm(r)
	if err != nil {
		_, msg := statusFor(err)
		ErrorResponse(http.StatusBadRequest, msg).Write(w)
		return
	}

	ctx, cancel := s.storeContext(r)
	defer cancel()

	res, err := s.ledgers.Save(ctx, req)
	if err != nil {
		status, msg := statusFor(err)
		if status >= 500 {
			log.FromContext(ctx).LogError(ctx, "Dashboard save failed", err, log.OpUpsert,
				log.NewFields().WithEntry(req.Resource, req.UserID, req.Key).WithErrorType(errorType(err)))
		}
		ErrorResponse(status, msg).Write(w)
		return
	}

	msg := fmt.Sprintf("Saved %s %s", req.Resource, req.Key)
	if res.Evicted {
		msg = fmt.Sprintf("%s %s is older than the retained window and was not kept", req.Resource, req.Key)
	}
	SuccessResponse(msg).
		TriggerLedgerSaved(req.Resource, req.Key).
		TriggerFormReset().
		Write(w)
}
