package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vitwit/paygate/logger"
	"github.com/vitwit/paygate/middleware"
	"github.com/vitwit/paygate/verification"
)

// WalletAuthRequest is the body of POST /api/auth/wallet.
type WalletAuthRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// WalletAuthHandler checks that the caller controls a wallet address by
// verifying a personal_sign signature over a message of their choosing.
type WalletAuthHandler struct {
	verifier verification.SignatureVerifier
	log      logger.Logger
}

func NewWalletAuthHandler(verifier verification.SignatureVerifier, log logger.Logger) *WalletAuthHandler {
	if verifier == nil {
		verifier = verification.PersonalSignVerifier{}
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &WalletAuthHandler{verifier: verifier, log: log}
}

func (h *WalletAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req WalletAuthRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, errorBody("invalid request body, expected {address, message, signature}"))
		return
	}

	if !h.verifier.Verify(req.Message, req.Signature, req.Address) {
		h.log.Info("wallet authentication failed", logger.Fields{"address": req.Address})
		middleware.WriteJSON(w, http.StatusUnauthorized, errorBody("Invalid signature"))
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
