package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/utils"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const actorKey contextKey = "actor"

// Claims are the identity fields this service relies on.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

type ProfileResolver interface {
	Resolve(ctx context.Context, claims *Claims) (*models.Profile, error)
}

// OIDCVerifier checks bearer tokens against the identity provider's keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("OIDC issuer not configured")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}
	return &claims, nil
}

// Middleware authenticates the bearer token and stores the caller's Actor in
// the request context.
func Middleware(verifier TokenVerifier, profiles ProfileResolver, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", err.Error()))
				return
			}

			claims, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("INVALID_TOKEN", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid token"))
				return
			}

			actor := models.Actor{UserID: claims.Subject, Email: claims.Email, Role: models.RoleCustomer}
			if profiles != nil {
				profile, err := profiles.Resolve(r.Context(), claims)
				if err != nil {
					log.Error("AUTH", fmt.Sprintf("Failed to resolve profile for %s: %v", claims.Subject, err))
					utils.WriteError(w, "Failed to load profile", err)
					return
				}
				actor.Role = profile.Role
				if actor.Email == "" {
					actor.Email = profile.Email
				}
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireAdmin must run after Middleware.
func RequireAdmin(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok || !actor.IsAdmin() {
				log.LogSecurity("ADMIN_DENIED", fmt.Sprintf("user=%s %s %s", actor.UserID, r.Method, r.URL.Path))
				_ = utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

// UserID is a shortcut for handlers that only need the subject.
func UserID(ctx context.Context) string {
	actor, _ := ActorFrom(ctx)
	return actor.UserID
}
