package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

var errMissingToken = errors.New("missing bearer token")

// Authenticator turns a bearer token into the calling principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

type principalClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// JWTAuthenticator validates signed tokens either with a shared HMAC secret
// or with keys fetched from a JWKS endpoint.
type JWTAuthenticator struct {
	keyfunc jwt.Keyfunc
	methods []string
	issuer  string
	leeway  time.Duration
}

func NewHMACAuthenticator(secret []byte, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{
		keyfunc: func(*jwt.Token) (any, error) { return secret, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
		issuer:  issuer,
		leeway:  30 * time.Second,
	}
}

// NewJWKSAuthenticator refreshes signing keys in the background. Startup does
// not fail when the identity provider is still unreachable.
func NewJWKSAuthenticator(ctx context.Context, jwksURL, issuer string, logger *slog.Logger) (*JWTAuthenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           time.Hour,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("jwks_refresh_failed", "url", jwksURL, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks storage: %w", err)
	}
	k, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("create jwks keyfunc: %w", err)
	}
	return &JWTAuthenticator{
		keyfunc: k.Keyfunc,
		methods: []string{"RS256", "ES256"},
		issuer:  issuer,
		leeway:  30 * time.Second,
	}, nil
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(a.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &principalClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, a.keyfunc, opts...)
	if err != nil {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("token has no subject"))
	}

	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role == "" {
		role = domain.RoleClient
	}
	return domain.Principal{UserID: claims.Subject, Email: claims.Email, Role: role}, nil
}

// DevAuthenticator trusts the token as "<user id>[:<role>]". It exists for
// local development only and is refused by configuration in production.
type DevAuthenticator struct{}

func (DevAuthenticator) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	userID, role, _ := strings.Cut(strings.TrimSpace(token), ":")
	if userID == "" {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, "authenticate", errMissingToken)
	}
	if role == "" {
		role = domain.RoleClient
	}
	return domain.Principal{UserID: userID, Role: role}, nil
}

type principalContextKey struct{}

func principalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return p, ok
}

// authMiddleware attaches the authenticated principal to the request. When
// allowQuery is set the token may also come from the "token" query parameter,
// which browsers need for websocket upgrades.
func authMiddleware(auth Authenticator, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" && allowQuery {
				token = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if token == "" {
				writeError(w, domain.WrapError(domain.ErrUnauthorized, "authenticate", errMissingToken))
				return
			}

			principal, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				slog.Debug("auth_rejected", "request_id", requestIDFromContext(r.Context()), "error", err)
				writeError(w, err)
				return
			}
			setAccessLogUser(r.Context(), principal.UserID)
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromContext(r.Context())
		if !ok || !principal.Elevated() {
			writeError(w, domain.WrapError(domain.ErrForbidden, "authorize", errors.New("elevated role required")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
