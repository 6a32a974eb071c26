// Package account validates identity tokens issued by the Account Service.
package account

import (
	"context"
	"time"

	"PNotepad/tools/errs"
	"PNotepad/tools/security"
)

// Identity is the user behind a validated token.
type Identity struct {
	UserID    string
	Scopes    []string
	ExpiresAt time.Time
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifier checks HMAC-signed tokens locally with the secret shared with
// the Account Service.
type JWTVerifier struct {
	opts security.Options
}

func NewJWTVerifier(secret []byte, alg string) *JWTVerifier {
	opts := security.DefaultOptions(secret)
	if alg != "" {
		opts.Alg = alg
	}
	return &JWTVerifier{opts: opts}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	claims, err := security.Verify(v.opts, token, "")
	if err != nil {
		return Identity{}, errs.ErrAuth.WrapCause(err, false, "verify token")
	}
	return Identity{
		UserID:    claims.Subject,
		Scopes:    claims.Scopes,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Issue signs a token for userID. Used by tooling and tests; production tokens
// come from the Account Service.
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	opts := v.opts
	if ttl > 0 {
		opts.TTL = ttl
	}
	token, _, _, err := security.Generate(opts, userID, nil)
	if err != nil {
		return "", errs.Wrap(err)
	}
	return token, nil
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}
