package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"investafrik-messaging/internal/models"
	"investafrik-messaging/internal/utils"
)

// CreateNotificationRequest is the body of POST /internal/notifications.
type CreateNotificationRequest struct {
	UserID       string                  `json:"user_id"`
	Type         models.NotificationType `json:"notification_type"`
	Title        string                  `json:"title"`
	Message      string                  `json:"message"`
	Link         string                  `json:"link"`
	ProjectID    *string                 `json:"project_id"`
	InvestmentID *string                 `json:"investment_id"`
	Priority     models.Priority         `json:"priority"`
}

// HandleHealth reports whether the store answers a ping.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()

		status, code := "healthy", http.StatusOK
		if err := s.Store.Ping(ctx); err != nil {
			s.Logger.Warn("health check failed", "error", err)
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":      status,
			"uptime":      s.Metrics.Uptime().Round(time.Second).String(),
			"server_time": time.Now().UTC(),
		})
	}
}

// HandleCreateNotification stores a notification raised elsewhere in the
// platform and pushes it to the owner's open notification connections.
func (s *Server) HandleCreateNotification() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateNotificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		n := &models.Notification{
			UserID:       req.UserID,
			Type:         req.Type,
			Title:        req.Title,
			Message:      req.Message,
			Link:         req.Link,
			ProjectID:    req.ProjectID,
			InvestmentID: req.InvestmentID,
			Priority:     req.Priority,
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()
		if err := s.Notifier.Create(ctx, n); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, n)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with the AppError's status. Only client errors carry
// their message; everything else is reported generically.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		s.Logger.Error("request failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	status := utils.AppErrorToHTTPStatus(appErr.Code)
	if !utils.IsClientError(err) {
		s.Logger.Error("request failed", "code", appErr.Code, "error", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	writeJSON(w, status, map[string]string{"error": appErr.Message, "code": appErr.Code})
}
