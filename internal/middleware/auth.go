package middleware

import (
	"fmt"
	"net/http"

	"fulfillment-be/internal/auth"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Auth resolves the caller from the access token. Requests without a valid
// token pass through anonymously; handlers decide whether that is allowed.
func Auth(secret []byte, internalKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if internalKey != "" && r.Header.Get("X-Service-Auth") == internalKey {
				ctx = utils.WithInternalRequest(ctx)
			}

			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims, err := parseClaims(tokenStr, secret)
			if err != nil {
				logger.FromCtx(ctx).Debug("rejected access token", zap.Error(err))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if uid, ok := claims["user_id"].(float64); ok && uid > 0 {
				email, _ := claims["email"].(string)
				role, _ := claims["role"].(string)
				ctx = utils.SetUserContext(ctx, uint(uid), email, role)
				ctx = logger.WithFields(ctx, zap.Uint("user_id", uint(uid)))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseClaims(tokenStr string, secret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
