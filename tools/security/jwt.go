package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options 控制签名与TTL等参数。
type Options struct {
	Secret []byte        // HMAC 密钥（生产用ENV/KMS）
	Alg    string        // HS256/HS384/HS512（默认 HS256）
	TTL    time.Duration // 令牌有效期（默认 2h）
}

// Claims is the verified content of an identity token.
type Claims struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
}

var (
	ErrEmptyToken   = errors.New("empty token")
	ErrNoSubject    = errors.New("token has no subject")
	ErrHashMismatch = errors.New("access token hash mismatch")
)

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 2 * time.Hour}
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func Generate(opts Options, userID string, scopes []string) (token string, accessTokenHash string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", "", time.Time{}, err
	}
	if opts.TTL <= 0 {
		opts.TTL = 2 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	if len(scopes) > 0 {
		claims["scope"] = scopes
	}

	tok := jwtlib.NewWithClaims(method, claims)
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, HashToken(signed), exp, nil
}

// Verify checks signature, expiry and, when expectedHash is set, the token hash.
func Verify(opts Options, token string, expectedHash string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// 仅允许 HMAC 家族
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	}, jwtlib.WithValidMethods([]string{method.Alg()}), jwtlib.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if expectedHash != "" && HashToken(token) != expectedHash {
		return nil, ErrHashMismatch
	}
	mc, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.New("claims type mismatch")
	}
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrNoSubject
	}
	out := &Claims{Subject: sub, Scopes: scopesOf(mc)}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

func scopesOf(mc jwtlib.MapClaims) []string {
	raw, ok := mc["scope"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if str, ok := s.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
