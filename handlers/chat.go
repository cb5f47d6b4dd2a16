// Package handlers serves the paid chat endpoint, wallet login and health.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/middleware"
)

// maxChatBodyBytes bounds the JSON body of a chat request.
const maxChatBodyBytes = 64 << 10

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is returned once the gate let the request through.
type ChatResponse struct {
	Response        string    `json:"response"`
	Timestamp       time.Time `json:"timestamp"`
	PaymentVerified bool      `json:"paymentVerified"`
}

// Responder produces the paid answer to a query.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// EchoResponder answers every message with a canned reply after Delay.
type EchoResponder struct {
	Delay time.Duration
}

func (e EchoResponder) Respond(ctx context.Context, message string) (string, error) {
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("Response to: %q\n\nThis is a simulated response. Plug in a Responder to serve real answers.", message), nil
}

type ChatHandler struct {
	responder Responder
	log       logger.Logger
	now       func() time.Time
}

func NewChatHandler(responder Responder, log logger.Logger) *ChatHandler {
	if responder == nil {
		responder = EchoResponder{}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &ChatHandler{responder: responder, log: log, now: time.Now}
}

// RequireMessage rejects requests without a message before they reach the
// payment gate, so a bad request never spends a payment or a free request.
// The body is restored for the next handler.
func (h *ChatHandler) RequireMessage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxChatBodyBytes))
		if err != nil {
			middleware.WriteJSON(w, http.StatusBadRequest, errorBody("failed to read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(rawBody))

		var req ChatRequest
		if err := json.Unmarshal(rawBody, &req); err != nil || strings.TrimSpace(req.Message) == "" {
			middleware.WriteJSON(w, http.StatusBadRequest, errorBody("Message is required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ServeHTTP handles POST /api/chat after the payment gate.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, errorBody("Message is required"))
		return
	}

	answer, err := h.responder.Respond(r.Context(), req.Message)
	if err != nil {
		h.log.Error("responder failed", logger.Fields{
			"error":      err,
			"request_id": middleware.GetRequestID(r.Context()),
		})
		middleware.WriteJSON(w, http.StatusInternalServerError, errorBody("Internal server error"))
		return
	}

	paid := false
	if d, ok := middleware.DecisionFromContext(r.Context()); ok {
		paid = d.PaymentVerified
	}

	middleware.WriteJSON(w, http.StatusOK, ChatResponse{
		Response:        answer,
		Timestamp:       h.now().UTC(),
		PaymentVerified: paid,
	})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
