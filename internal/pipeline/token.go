package pipeline

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// callbackClaims correlate an automation callback with the conversation the
// triggering message belongs to.
type callbackClaims struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id"`
	ContactID      string `json:"contact_id"`
	Channel        string `json:"channel"`
	jwt.RegisteredClaims
}

// generateCallbackToken signs a short-lived token binding the callback to
// its conversation. Returns "" when no callback secret is configured.
func generateCallbackToken(secret string, ttl time.Duration, tenantID, conversationID, contactID string, channelType channel.ChannelType) (string, error) {
	if secret == "" {
		return "", nil
	}
	now := time.Now()
	claims := callbackClaims{
		TenantID:       tenantID,
		ConversationID: conversationID,
		ContactID:      contactID,
		Channel:        channelType.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   conversationID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign callback token: %w", err)
	}
	return signed, nil
}

// verifyCallbackToken parses and validates a callback token.
func verifyCallbackToken(secret, tokenString string) (callbackClaims, error) {
	var claims callbackClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return callbackClaims{}, fmt.Errorf("parse callback token: %w", err)
	}
	if !token.Valid {
		return callbackClaims{}, fmt.Errorf("invalid callback token")
	}
	return claims, nil
}
