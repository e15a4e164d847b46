package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mahidalhan/axon/internal/ingest"
	"github.com/mahidalhan/axon/internal/models"
	"github.com/mahidalhan/axon/internal/pipeline"
	"github.com/mahidalhan/axon/internal/repository"
	"github.com/mahidalhan/axon/internal/session"
	"github.com/mahidalhan/axon/internal/windowing"
	"go.uber.org/zap"
)

const maxUploadBytes = 64 << 20

type SessionStore interface {
	SaveSession(ctx context.Context, rec *models.SessionRecord) error
	RecentSessions(ctx context.Context, limit int) ([]models.SessionRecord, error)
	SessionByID(ctx context.Context, id string) (*models.SessionRecord, error)
}

type SessionHandler struct {
	log    *zap.Logger
	runner *pipeline.Runner
	store  SessionStore
}

// NewSessionHandler analyses uploads with runner. A nil store analyses
// without persisting.
func NewSessionHandler(log *zap.Logger, runner *pipeline.Runner, store SessionStore) *SessionHandler {
	return &SessionHandler{log: log, runner: runner, store: store}
}

// Analyze accepts a multipart CSV upload ("file") and returns the session
// summary. Form fields: participant_id, post_exercise, include_windows.
func (h *SessionHandler) Analyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A CSV file is required"})
		return
	}
	postExercise, _ := strconv.ParseBool(c.PostForm("post_exercise"))
	includeWindows, _ := strconv.ParseBool(c.PostForm("include_windows"))
	participant := c.PostForm("participant_id")
	if participant == "" {
		participant = pipeline.ParticipantID(fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		h.log.Error("Failed to open upload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	defer f.Close()

	res, err := h.runner.ProcessReader(c.Request.Context(), f, postExercise)
	if err != nil {
		status, msg := analyzeError(err)
		if status >= http.StatusInternalServerError {
			h.log.Error("Session analysis failed", zap.String("file", fh.Filename), zap.Error(err))
		} else {
			h.log.Warn("Rejected session upload", zap.String("file", fh.Filename), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": msg, "report": res.Report})
		return
	}

	body := gin.H{
		"participant_id": participant,
		"report":         res.Report,
		"window_count":   len(res.Windows),
		"summary":        res.Summary,
	}
	if includeWindows {
		body["windows"] = windowing.Table(res.Windows)
	}
	if h.store != nil {
		rec := models.NewSessionRecord(participant, fh.Filename, res.Summary)
		if err := h.store.SaveSession(c.Request.Context(), &rec); err != nil {
			h.log.Error("Failed to save session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save session"})
			return
		}
		body["session_id"] = rec.ID
	}
	c.JSON(http.StatusOK, body)
}

// analyzeError maps pipeline failures on bad input to 422.
func analyzeError(err error) (int, string) {
	switch {
	case errors.Is(err, ingest.ErrMissingColumns):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, ingest.ErrNoRows):
		return http.StatusUnprocessableEntity, "No data left after cleaning filters"
	case errors.Is(err, windowing.ErrNoBandColumns),
		errors.Is(err, windowing.ErrNoWindows),
		errors.Is(err, windowing.ErrEmptySeries),
		errors.Is(err, session.ErrNoWindows):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "Session analysis failed"
	}
}

func (h *SessionHandler) List(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session storage is disabled"})
		return
	}
	limit, ok := intQuery(c, "limit", 20, 200)
	if !ok {
		return
	}
	rows, err := h.store.RecentSessions(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows, "count": len(rows)})
}

func (h *SessionHandler) Get(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session storage is disabled"})
		return
	}
	rec, err := h.store.SessionByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	if err != nil {
		h.log.Error("Failed to load session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
