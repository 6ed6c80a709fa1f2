package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind tags the four token families. Google tokens are issued by the
// identity provider and only pass through this service; the forge holds
// no secret for them and refuses to mint or verify that kind.
type Kind string

const (
	KindInitial Kind = "initial"
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindGoogle  Kind = "google"
)

const (
	defaultInitialTTL = 5 * time.Minute
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// kind, expired, malformed. Callers get no detail about which check failed.
var ErrInvalidToken = errors.New("invalid token")

type Secrets struct {
	Initial string
	Access  string
	Refresh string
}

type TTLs struct {
	Initial time.Duration
	Access  time.Duration
	Refresh time.Duration
}

type Forge struct {
	secrets map[Kind][]byte
	ttls    map[Kind]time.Duration
}

func NewForge(secrets Secrets, ttls TTLs) *Forge {
	if ttls.Initial <= 0 {
		ttls.Initial = defaultInitialTTL
	}
	if ttls.Access <= 0 {
		ttls.Access = defaultAccessTTL
	}
	if ttls.Refresh <= 0 {
		ttls.Refresh = defaultRefreshTTL
	}

	return &Forge{
		secrets: map[Kind][]byte{
			KindInitial: []byte(secrets.Initial),
			KindAccess:  []byte(secrets.Access),
			KindRefresh: []byte(secrets.Refresh),
		},
		ttls: map[Kind]time.Duration{
			KindInitial: ttls.Initial,
			KindAccess:  ttls.Access,
			KindRefresh: ttls.Refresh,
		},
	}
}

func (f *Forge) TTL(kind Kind) time.Duration {
	return f.ttls[kind]
}

// Issue mints a signed token of the given kind bound to userID.
func (f *Forge) Issue(kind Kind, userID string) (string, error) {
	secret, ok := f.secrets[kind]
	if !ok || len(secret) == 0 {
		return "", ErrInvalidToken
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(f.ttls[kind]).Unix(),
		"typ": string(kind),
		"jti": uuid.NewString(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks the token against the given kind's secret and returns the
// subject user id. Cross-kind reuse fails even when the signature would
// verify under another kind's secret.
func (f *Forge) Verify(raw string, kind Kind) (string, error) {
	secret, ok := f.secrets[kind]
	if !ok || len(secret) == 0 {
		return "", ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	if typ, _ := claims["typ"].(string); typ != string(kind) {
		return "", ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}

	return sub, nil
}

// ExpiryOf reads the exp claim without verifying the signature. Clients use
// it for expiry bookkeeping only; it must never gate access server-side.
func ExpiryOf(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, ErrInvalidToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, ErrInvalidToken
	}

	return exp.Time, nil
}
