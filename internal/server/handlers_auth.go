package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/willsmith28/Cookbook/internal/users"
	"go.uber.org/zap"
)

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsRequest
	if _, err := bindRequest(c, &request); err != nil {
		h.respondError(c, err)
		return
	}
	user, err := h.users.Register(c.Request.Context(), users.Credentials{Username: request.Username, Password: request.Password}, false)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user.View())
}

// handleIssueToken exchanges credentials for a session token, returned in the
// body and as an HTTP only cookie for EventSource clients.
func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request credentialsRequest
	if _, err := bindRequest(c, &request); err != nil {
		h.respondError(c, err)
		return
	}
	user, err := h.users.Authenticate(c.Request.Context(), users.Credentials{Username: request.Username, Password: request.Password})
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Info("credential check failed", zap.String("username", request.Username))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.respondError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), user.Identity())
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), token, int(expiresIn), "/", "", c.Request.TLS != nil, true)
	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}
