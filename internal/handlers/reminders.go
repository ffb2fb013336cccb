package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agenciateixeira/t3-sub001/internal/reminders"
	"github.com/agenciateixeira/t3-sub001/pkg/errors"
	"github.com/agenciateixeira/t3-sub001/pkg/response"
)

var errSessionsClosed = errors.New("reminders.shutting_down", "Reminder sessions are shutting down", http.StatusServiceUnavailable)

// ReminderHandler opens and drives reminder sessions for the caller.
type ReminderHandler struct {
	sessions *reminders.Manager
	scanner  reminders.UserScanner
}

// NewReminderHandler constructs a reminder handler.
func NewReminderHandler(sessions *reminders.Manager, scanner reminders.UserScanner) (*ReminderHandler, error) {
	if sessions == nil || scanner == nil {
		return nil, errors.New("REMINDERS_UNAVAILABLE", "reminder sessions and scanner are required", http.StatusInternalServerError)
	}
	return &ReminderHandler{sessions: sessions, scanner: scanner}, nil
}

// Open starts a periodic reminder session for the caller.
// POST /api/reminders/sessions
func (h *ReminderHandler) Open(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	session, err := h.sessions.Open(requestContext(c), userID)
	if err != nil {
		if stderrors.Is(err, reminders.ErrManagerClosed) {
			response.Error(c, errSessionsClosed)
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, session.Info())
}

// List returns the caller's open sessions.
// GET /api/reminders/sessions
func (h *ReminderHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items := make([]reminders.SessionInfo, 0)
	for _, info := range h.sessions.Sessions() {
		if info.UserID == userID {
			items = append(items, info)
		}
	}
	response.Success(c, http.StatusOK, items)
}

// Heartbeat keeps a session from being reaped as idle.
// POST /api/reminders/sessions/:id/heartbeat
func (h *ReminderHandler) Heartbeat(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.sessions.Touch(session.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, session.Info())
}

// Trigger asks a session to scan now instead of waiting for its next tick.
// POST /api/reminders/sessions/:id/scan
func (h *ReminderHandler) Trigger(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	queued := session.Trigger()
	response.Success(c, http.StatusAccepted, gin.H{"session_id": session.ID, "queued": queued})
}

// Close stops a session.
// DELETE /api/reminders/sessions/:id
func (h *ReminderHandler) Close(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(session.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"closed": true})
}

// Scan runs one synchronous reminder cycle for the caller and returns its report.
// POST /api/reminders/scan
func (h *ReminderHandler) Scan(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	report := h.scanner.ScanUser(requestContext(c), userID)
	response.Success(c, http.StatusOK, report)
}

// ownedSession resolves :id to a session of the caller. Sessions of other users are reported as missing.
func (h *ReminderHandler) ownedSession(c *gin.Context) (*reminders.Session, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, false
	}

	session, found := h.sessions.Get(strings.TrimSpace(c.Param("id")))
	if !found || session.UserID != userID {
		response.Error(c, errors.ErrSessionNotFound)
		return nil, false
	}
	return session, true
}
