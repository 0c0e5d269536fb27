// ABOUTME: HTTP ingress handlers feeding transports into the admission pipeline
// ABOUTME: Webhook, REST and CLI requests all converge on the same process path

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mymmrac/telego"

	"github.com/ubiquity-os/telegram-interface-sub000/internal/message"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/pipeline"
	"github.com/ubiquity-os/telegram-interface-sub000/internal/session"
)

// maxBodyBytes bounds inbound payload size before any parsing happens.
const maxBodyBytes = 1 << 20

// errorResponse is the JSON error envelope for rejected requests.
type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after_seconds,omitempty"`
}

// telegramWebhookReply answers a webhook call inline using the Bot API's
// method-call convention.
type telegramWebhookReply struct {
	Method string `json:"method"`
	*telego.SendMessageParams
}

// handleTelegramWebhook accepts raw Bot API updates.
func (g *Gateway) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	raw, ok := g.readBody(w, r)
	if !ok {
		return
	}

	native, status, errResp := g.process(r, raw, message.PlatformTelegram)
	if errResp != nil {
		writeJSON(w, status, errResp)
		return
	}

	params, ok := native.(*telego.SendMessageParams)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, &errorResponse{
			Code:    pipeline.CodeInternalError,
			Message: "unexpected native reply shape",
		})
		return
	}
	writeJSON(w, http.StatusOK, &telegramWebhookReply{Method: "sendMessage", SendMessageParams: params})
}

// handleMessage accepts REST and CLI payloads on the generic endpoint. The
// origin is taken from the X-Gateway-Source header, defaulting to detection.
func (g *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	raw, ok := g.readBody(w, r)
	if !ok {
		return
	}

	source := message.Platform(r.Header.Get("X-Gateway-Source"))
	if source == "" {
		detected, err := g.registry.DetectPlatform(raw, flattenHeaders(r))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, &errorResponse{
				Code:    pipeline.CodeValidation,
				Message: "could not determine request origin",
			})
			return
		}
		source = detected
	}

	native, status, errResp := g.process(r, raw, source)
	if errResp != nil {
		writeJSON(w, status, errResp)
		return
	}
	writeJSON(w, http.StatusOK, native)
}

// process runs one raw payload through admission, parsing, session
// resolution, routing and formatting. It returns either a native reply or
// an error envelope with a status code.
func (g *Gateway) process(r *http.Request, raw []byte, source message.Platform) (any, int, *errorResponse) {
	ctx := r.Context()

	// Parse up front: the canonical converter is the only component that
	// understands the payload envelope, and admission needs the sender
	// identity and text it extracts.
	msg, err := g.registry.Parse(raw, source, "")
	if err != nil {
		return nil, http.StatusBadRequest, parseError(err)
	}

	req := &pipeline.Request{
		ID:         msg.ID,
		Source:     source,
		ReceivedAt: time.Now(),
		UserID:     msg.UserID,
		ChatID:     msg.Conversation.ChatID,
		SessionID:  msg.SessionID,
		Content:    msg.Content.Text,
		Metadata:   map[string]string{},
		Headers:    flattenHeaders(r),
	}

	admitted, rejection := g.pipeline.Admit(ctx, req)
	if rejection != nil {
		resp := &errorResponse{Code: rejection.Code, Message: rejection.Message}
		if rejection.RetryAfter > 0 {
			resp.RetryAfter = int(rejection.RetryAfter.Seconds() + 0.5)
		}
		return nil, rejection.Status, resp
	}

	// Admission sanitized and normalized the content; carry that forward.
	msg.Content.Text = admitted.Content
	if msg.Content.Metadata == nil {
		msg.Content.Metadata = map[string]string{}
	}
	for k, v := range admitted.Metadata {
		msg.Content.Metadata[k] = v
	}

	sess, err := g.ensureSession(ctx, msg)
	if err != nil {
		g.logger.Error("session resolution failed",
			"request_id", msg.ID, "user_id", msg.UserID, "error", err)
	} else {
		msg.SessionID = sess.ID
	}

	resp := g.router.Route(ctx, msg, sess)

	native, err := g.registry.Format(resp, source)
	if err != nil {
		g.logger.Error("formatting response failed", "request_id", msg.ID, "error", err)
		return nil, http.StatusInternalServerError, &errorResponse{
			Code:    pipeline.CodeInternalError,
			Message: "failed to format response",
		}
	}
	return native, http.StatusOK, nil
}

// ensureSession finds the user's live session for the origin platform or
// creates one.
func (g *Gateway) ensureSession(ctx context.Context, msg *message.CanonicalMessage) (*session.Session, error) {
	existing, err := g.sessions.ListByUser(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}
	for i := len(existing) - 1; i >= 0; i-- {
		if existing[i].Platform == msg.Platform {
			return existing[i], nil
		}
	}
	return g.sessions.Create(ctx, msg.UserID, msg.Platform, nil, 0)
}

// handleListSessions returns a user's live sessions.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, &errorResponse{
			Code:    pipeline.CodeValidation,
			Message: "user query parameter is required",
		})
		return
	}

	sessions, err := g.sessions.ListByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, &errorResponse{
			Code:    pipeline.CodeInternalError,
			Message: "failed to list sessions",
		})
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleCapabilities returns the engine's advertised capabilities,
// best-effort.
func (g *Gateway) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.router.Capabilities(r.Context()))
}

// handleStats exposes the pipeline's running statistics.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.pipeline.Stats())
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness along with breaker states so an operator can
// see a degraded engine at a glance.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"breakers": g.router.BreakerStatus(),
	})
}

func (g *Gateway) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest, &errorResponse{
			Code:    pipeline.CodeValidation,
			Message: "request body is required",
		})
		return nil, false
	}
	return raw, true
}

func parseError(err error) *errorResponse {
	switch {
	case errors.Is(err, message.ErrMessageTooLarge):
		return &errorResponse{Code: pipeline.CodeTooLarge, Message: "message is too large"}
	case errors.Is(err, message.ErrPlatformNotSupported):
		return &errorResponse{Code: pipeline.CodeSourceDisabled, Message: "platform not supported"}
	default:
		return &errorResponse{Code: pipeline.CodeValidation, Message: "invalid request payload"}
	}
}

func flattenHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header))
	for k := range r.Header {
		out[k] = r.Header.Get(k)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
