package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runtime/internal/config"
	"github.com/stemsi/exstem-runtime/internal/metrics"
	"github.com/stemsi/exstem-runtime/internal/middleware"
	"github.com/stemsi/exstem-runtime/internal/model"
	"github.com/stemsi/exstem-runtime/internal/response"
	"github.com/stemsi/exstem-runtime/internal/service"
	"github.com/stemsi/exstem-runtime/internal/validator"
	ws "github.com/stemsi/exstem-runtime/internal/websocket"
	"golang.org/x/time/rate"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler mounts sessions over WebSocket.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
	msgRate  rate.Limit
	msgBurst int
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, cfg *config.Config, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(cfg.AllowedOrigins),
		msgRate:  rate.Limit(cfg.WSMessagesPerSecond),
		msgBurst: max(cfg.WSMessageBurst, 1),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:exam_id/:mode/stream
// Mounts the session for the lifetime of the connection.
func (h *WSHandler) SessionStream(c *gin.Context) {
	candidateID, params, ok := bindSession(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsLog := h.log.With().
		Str("candidate_id", candidateID).
		Str("exam_id", params.ExamID).
		Str("mode", string(params.Mode)).
		Logger()

	client := ws.NewClient(conn, wsLog)
	go client.WritePump()
	defer client.Close()

	mounted, err := h.sessions.Mount(c.Request.Context(), service.MountRequest{
		CandidateID: candidateID,
		Token:       middleware.GetToken(c),
		ExamID:      params.ExamID,
		Mode:        params.Mode,
		Notifier:    ws.NewNotifier(client, wsLog),
	})
	if err != nil {
		status, code := errorCode(err)
		if status >= http.StatusInternalServerError {
			wsLog.Error().Err(err).Msg("Mount failed")
		} else {
			wsLog.Info().Err(err).Msg("Mount rejected")
		}
		client.Send(ws.NewError(code, nil))
		return
	}
	defer mounted.Unmount()

	// Submission or exit ends the controller; closing the client then ends the read loop.
	go func() {
		<-mounted.Done()
		client.Close()
	}()

	wsLog.Info().Msg("Candidate connected")

	limiter := rate.NewLimiter(h.msgRate, h.msgBurst)
	ctx := context.WithoutCancel(c.Request.Context())
	for {
		raw, err := client.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if !limiter.Allow() {
			client.Send(ws.NewError(response.ErrRateLimitExceeded, nil))
			continue
		}
		h.dispatch(ctx, mounted, client, raw, wsLog)
	}
}

// dispatch runs one client action against the controller and reports failures as error events.
func (h *WSHandler) dispatch(ctx context.Context, s *service.MountedSession, client *ws.Client, raw []byte, log zerolog.Logger) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		client.Send(ws.NewError(response.ErrInvalidPayload, nil))
		return
	}
	metrics.WSMessages.WithLabelValues(string(env.Action), "in").Inc()

	fail := func(code response.ErrCode, fields map[string]string) {
		e := ws.NewError(code, fields)
		e.Action = env.Action
		client.Send(e)
	}

	var err error
	switch env.Action {
	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		err = s.SetAnswer(ctx, req.ItemID, req.Value)

	case ws.ActionSwap:
		var req ws.SwapRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		err = s.Swap(ctx, req.ItemID, *req.From, *req.To)

	case ws.ActionAssignBlank:
		var req ws.AssignBlankRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		err = s.AssignBlank(ctx, req.ItemID, req.BlankID, req.OptionID)

	case ws.ActionClearBlank:
		var req ws.ClearBlankRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		err = s.ClearBlank(ctx, req.ItemID, req.BlankID)

	case ws.ActionAssignColumn:
		var req ws.AssignColumnRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		err = s.AssignColumn(ctx, req.ItemID, req.ColumnID, req.OptionID)

	case ws.ActionToggleFlag, ws.ActionNavigate, ws.ActionSetStep:
		var req ws.IndexRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		switch env.Action {
		case ws.ActionToggleFlag:
			err = s.ToggleFlag(ctx, *req.Index)
		case ws.ActionNavigate:
			err = s.Navigate(ctx, *req.Index)
		default:
			err = s.SetStep(ctx, *req.Index)
		}

	case ws.ActionExercise:
		var req ws.ExerciseActionRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		_, err = s.ExerciseAction(ctx, req.ActionID, req.Input)

	case ws.ActionConnectivity:
		var req ws.ConnectivityRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		err = s.SetOnline(ctx, *req.Online)

	case ws.ActionVisibility:
		var req ws.VisibilityRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		err = s.SetVisible(ctx, *req.Visible)

	case ws.ActionOpenDialog:
		var req ws.DialogRequest
		if fields := validator.Decode(raw, &req); fields != nil {
			fail(response.ErrValidation, fields)
			return
		}
		err = s.OpenDialog(ctx, req.Dialog)

	case ws.ActionCloseDialog:
		err = s.CloseDialog(ctx)

	case ws.ActionSubmit:
		err = s.Submit(ctx)

	case ws.ActionExit:
		err = s.Exit(ctx)

	case ws.ActionState:
		var view *model.SessionView
		if view, err = s.View(ctx); err == nil {
			client.Send(ws.StateResponse{Event: ws.EventState, Session: view})
		}

	case ws.ActionPing:
		client.Send(ws.SignalResponse{Event: ws.EventPong})

	default:
		log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		fail(response.ErrUnsupportedAction, nil)
		return
	}

	if err != nil {
		status, code := errorCode(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("action", string(env.Action)).Msg("Action failed")
		} else {
			log.Debug().Err(err).Str("action", string(env.Action)).Msg("Action rejected")
		}
		fail(code, nil)
	}
}
