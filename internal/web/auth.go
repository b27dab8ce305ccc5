package web

import (
	"net/http"
	"strings"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-drive/internal/drive"
	"github.com/Laisky/laisky-drive/library/jwt"
)

const ctxKeyIdentity = "drive_identity"

// identityMiddleware parses an optional bearer token into a drive.Identity.
// Requests without a token continue anonymously; bad tokens are rejected.
func identityMiddleware(verifier *jwt.JWT) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx.Request.Header.Get("Authorization"))
		if token == "" || verifier == nil {
			ctx.Next()
			return
		}

		claims, err := verifier.Parse(token)
		if err != nil {
			gmw.GetLogger(ctx).Debug("reject bearer token", zap.Error(err))
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: errorBody{
				Code:    "UNAUTHENTICATED",
				Message: "invalid or expired token",
			}})
			return
		}

		ctx.Set(ctxKeyIdentity, drive.Identity{
			Email: claims.Email,
			Name:  claims.DisplayName,
		})
		ctx.Next()
	}
}

// currentIdentity returns the caller identity, anonymous when absent.
func currentIdentity(ctx *gin.Context) drive.Identity {
	if v, ok := ctx.Get(ctxKeyIdentity); ok {
		if identity, ok := v.(drive.Identity); ok {
			return identity
		}
	}
	return drive.Identity{}
}

// bearerToken strips an optional "Bearer " prefix.
func bearerToken(header string) string {
	out := strings.TrimSpace(header)
	if len(out) >= len("bearer ") && strings.EqualFold(out[:len("bearer ")], "bearer ") {
		out = strings.TrimSpace(out[len("bearer "):])
	}
	return out
}
