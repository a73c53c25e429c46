package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/utils"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const operatorKey contextKey = "operator"

// DevOperator is the identity used when authentication is disabled.
const DevOperator = "dev-operator"

// Operator is the authenticated identity behind an admin request.
type Operator struct {
	Subject string
	Name    string
}

// TokenVerifier turns a raw bearer token into an operator identity.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (Operator, error)
}

type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer's keys. An empty clientID skips the
// audience check.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(verifierConfig(clientID))}, nil
}

// NewStaticVerifier verifies tokens against a fixed key set.
func NewStaticVerifier(issuer, clientID string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, verifierConfig(clientID))}
}

func verifierConfig(clientID string) *oidc.Config {
	return &oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: clientID == "",
	}
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Operator, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Operator{}, err
	}

	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Operator{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	op := Operator{Subject: claims.Sub, Name: claims.PreferredUsername}
	if op.Name == "" {
		op.Name = claims.Email
	}
	if op.Name == "" {
		op.Name = claims.Sub
	}
	return op, nil
}

// Middleware rejects requests without a valid operator token.
func Middleware(verifier TokenVerifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				log.LogSecurity("AUTH_MISSING", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", err.Error()))
				return
			}

			op, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("AUTH_INVALID", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

// Disabled lets every request through as DevOperator. Local use only.
func Disabled() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := Operator{Subject: DevOperator, Name: DevOperator}
			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), op)))
		})
	}
}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// OperatorFrom extracts the operator in handlers
func OperatorFrom(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok
}
