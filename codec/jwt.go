// codec/jwt.go
package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
)

// DefaultLeeway is the clock-skew tolerance applied when verifying tokens.
const DefaultLeeway = 30 * time.Second

// JWT signs and verifies bearer tokens with a symmetric secret. Instances
// are stateless given their key and safe for concurrent use.
type JWT struct {
	secret  []byte
	method  jwt.SigningMethod
	issuer  string
	leeway  time.Duration
	timeout time.Duration
}

// NewJWT builds a codec for the given algorithm and secret. Only HMAC
// algorithms are supported; anything else is a configuration error.
func NewJWT(algorithm, secret, issuer string, timeout time.Duration) (*JWT, error) {
	var method jwt.SigningMethod
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, gk_errors.Wrapf(gk_errors.ErrConfig, "unsupported JWT algorithm: %s", algorithm)
	}
	if secret == "" {
		return nil, gk_errors.Wrap(gk_errors.ErrConfig, "JWT secret is empty")
	}
	return &JWT{
		secret:  []byte(secret),
		method:  method,
		issuer:  issuer,
		leeway:  DefaultLeeway,
		timeout: timeout,
	}, nil
}

// Create issues a signed token embedding data plus iss/iat/exp claims.
func (j *JWT) Create(data map[string]any) (string, error) {
	return j.CreateWithExpiration(data, j.timeout)
}

// CreateWithExpiration issues a signed token with an explicit TTL.
func (j *JWT) CreateWithExpiration(data map[string]any, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": j.issuer,
		"iat": now.Unix(),
		"exp": now.Add(expiration).Unix(),
	}
	for k, v := range data {
		claims[k] = v
	}
	token, err := jwt.NewWithClaims(j.method, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("cannot create session token: %w", err)
	}
	return token, nil
}

// Decode verifies a token's signature and expiry (with leeway) and returns
// its claims. Expired tokens fail with ErrAuthExpired; every other decode
// failure is ErrInvalidAuth.
func (j *JWT) Decode(token string) (map[string]any, error) {
	parsed, err := jwt.Parse(
		token,
		func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != j.method.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return j.secret, nil
		},
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithLeeway(j.leeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, gk_errors.Wrapf(gk_errors.ErrAuthExpired, "credentials expired: %v", err)
		}
		return nil, gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "invalid authorization token: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "invalid token claims")
	}
	return claims, nil
}
