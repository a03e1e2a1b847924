// Package auth provides bearer token verification for operators.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"dispatchdesk/internal/config"
)

const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleViewer     = "viewer"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownMode  = errors.New("unsupported auth mode")
)

// Verifier validates bearer tokens and extracts the operator and role.
// Modes: dev (token is "operator:role", unsigned) and hmac (HS256 JWT).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	Issuer     string
	RoleClaim  string
}

type Principal struct {
	Operator string
	Role     string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanMutate reports whether the principal may edit working sets and dispatch.
func (p Principal) CanMutate() bool { return p.Role == RoleAdmin || p.Role == RoleDispatcher }

func NewVerifier(cfg config.AuthConfig) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "dev"
	}
	claim := cfg.RoleClaim
	if claim == "" {
		claim = "role"
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(cfg.HMACSecret), Issuer: cfg.Issuer, RoleClaim: claim}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "dev":
		op, role, ok := strings.Cut(token, ":")
		if !ok || op == "" {
			return Principal{}, fmt.Errorf("%w: expected operator:role", ErrInvalidToken)
		}
		return Principal{Operator: op, Role: normalizeRole(role)}, nil
	case "hmac":
		return v.verifyHMAC(token)
	default:
		return Principal{}, ErrUnknownMode
	}
}

func (v *Verifier) verifyHMAC(token string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired()}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.HMACSecret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		return Principal{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	role, _ := claims[v.RoleClaim].(string)
	return Principal{Operator: sub, Role: normalizeRole(role)}, nil
}

// normalizeRole maps unknown or empty roles to viewer.
func normalizeRole(r string) string {
	switch r = strings.ToLower(strings.TrimSpace(r)); r {
	case RoleAdmin, RoleDispatcher, RoleViewer:
		return r
	}
	return RoleViewer
}
