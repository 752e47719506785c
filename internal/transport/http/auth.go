package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/domain/model"
	httperrors "github.com/ivankudzin/guardbot/internal/transport/http/errors"
)

const serviceTokenHeader = "X-Service-Token"

type actorContextKey struct{}

// ActorFromContext returns the authenticated caller identity placed there by
// the auth middleware.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(model.Actor)
	return actor, ok
}

func withActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

type operatorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// TokenVerifier checks operator JWTs issued by the admin panel.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

func (v *TokenVerifier) ParseOperator(raw string) (model.Actor, error) {
	if len(v.secret) == 0 {
		return model.Actor{}, fmt.Errorf("jwt secret is empty")
	}
	if strings.TrimSpace(raw) == "" {
		return model.Actor{}, fmt.Errorf("empty token")
	}

	claims := &operatorClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || token == nil || !token.Valid {
		return model.Actor{}, fmt.Errorf("invalid operator token")
	}

	operatorID, perr := strconv.ParseInt(claims.Subject, 10, 64)
	if perr != nil || operatorID <= 0 {
		return model.Actor{}, fmt.Errorf("invalid operator subject")
	}

	return model.WebOperatorActor(operatorID, claims.Name), nil
}

// IssueOperatorToken signs a short-lived HS256 token for a panel operator.
// Kept next to the verifier so the claim shape has a single owner.
func (v *TokenVerifier) IssueOperatorToken(operatorID int64, name string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("jwt secret is empty")
	}
	if operatorID <= 0 {
		return "", fmt.Errorf("invalid operator id")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	now := time.Now().UTC()
	claims := operatorClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(operatorID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}

	return signed, nil
}

// AuthMiddleware accepts either the internal service token or an operator
// bearer token. The resolved actor rides the request context for audit fields.
func AuthMiddleware(verifier *TokenVerifier, serviceToken string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := strings.TrimSpace(r.Header.Get(serviceTokenHeader)); token != "" {
				if serviceToken == "" || token != serviceToken {
					httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
						Code:    "UNAUTHORIZED",
						Message: "invalid service token",
					})
					return
				}
				ctx := withActor(r.Context(), model.SystemActor("api"))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			bearer, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
					Code:    "UNAUTHORIZED",
					Message: "missing credentials",
				})
				return
			}

			actor, err := verifier.ParseOperator(bearer)
			if err != nil {
				if log != nil {
					log.Debug("operator token rejected", zap.Error(err))
				}
				httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
					Code:    "UNAUTHORIZED",
					Message: "invalid access token",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
		})
	}
}

func extractBearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}
