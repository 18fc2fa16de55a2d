package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/middleware"
	"github.com/stemsi/exstem-runtime/internal/model"
	"github.com/stemsi/exstem-runtime/internal/response"
	"github.com/stemsi/exstem-runtime/internal/service"
	"github.com/stemsi/exstem-runtime/internal/validator"
)

// SessionHandler exposes stored session state over REST.
type SessionHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// bindSession resolves the candidate and the session path parameters. It writes the
// error response itself and returns false on failure.
func bindSession(c *gin.Context) (string, *model.SessionParams, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", nil, false
	}

	var params model.SessionParams
	if fields := validator.BindURI(c, &params); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return "", nil, false
	}
	return claims.CandidateID(), &params, true
}

// GetStatus godoc
// GET /api/v1/sessions/:exam_id/:mode
// Returns whether a stored session can be resumed and how much time it has left.
func (h *SessionHandler) GetStatus(c *gin.Context) {
	candidateID, params, ok := bindSession(c)
	if !ok {
		return
	}

	status, err := h.sessions.Status(c.Request.Context(), candidateID, params.ExamID, params.Mode)
	if err != nil {
		code, errCode := errorCode(err)
		response.Fail(c, code, errCode)
		return
	}

	response.Success(c, http.StatusOK, status)
}

// Exit godoc
// DELETE /api/v1/sessions/:exam_id/:mode
// Abandons the session: the stored snapshot is deleted and nothing is evaluated.
func (h *SessionHandler) Exit(c *gin.Context) {
	candidateID, params, ok := bindSession(c)
	if !ok {
		return
	}

	if err := h.sessions.Exit(c.Request.Context(), candidateID, params.ExamID, params.Mode); err != nil {
		code, errCode := errorCode(err)
		if code >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("candidate_id", candidateID).Msg("Exit failed")
		}
		response.Fail(c, code, errCode)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exited": true})
}
