package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxParticipantClaims = "securepremium_participant_claims"

// RequireParticipantToken returns a Gin middleware that enforces a
// valid participant Bearer token.
//
// On success it injects the *ParticipantClaims into the context under
// the "securepremium_participant_claims" key.
func RequireParticipantToken(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}

		c.Set(ctxParticipantClaims, claims)
		c.Next()
	}
}

// ParticipantClaimsFromCtx retrieves the claims injected by
// RequireParticipantToken. Returns nil if absent.
func ParticipantClaimsFromCtx(c *gin.Context) *ParticipantClaims {
	v, _ := c.Get(ctxParticipantClaims)
	claims, _ := v.(*ParticipantClaims)
	return claims
}
