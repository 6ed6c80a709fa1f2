package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"dashboard-auth/internal/federation"
	"dashboard-auth/internal/token"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrTokenRequired        = errors.New("token required")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidGoogleToken   = errors.New("invalid google token")
	ErrRefreshTokenRequired = errors.New("refresh token required")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRefreshTokenMismatch = errors.New("refresh token mismatch")
)

// Store is the user record persistence the session exchange protocol runs
// against. RotateRefreshToken must be a compare-and-set on the stored hash.
type Store interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, expiresAt time.Time) error
}

// GoogleVerifier is the identity federation boundary consumed on the google
// token-exchange branch.
type GoogleVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (federation.Profile, error)
}

type Service struct {
	store      Store
	forge      *token.Forge
	google     GoogleVerifier
	bcryptCost int
}

func NewService(store Store, forge *token.Forge, google GoogleVerifier) *Service {
	return &Service{
		store:      store,
		forge:      forge,
		google:     google,
		bcryptCost: bcrypt.DefaultCost,
	}
}

func (s *Service) WithBcryptCost(cost int) {
	if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
		s.bcryptCost = cost
	}
}

// Signup stores a new user with a hashed password. No token is issued.
func (s *Service) Signup(ctx context.Context, firstName, lastName, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.store.Create(ctx, User{
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
	})
	return err
}

// Login checks credentials and mints a short-lived initial token. An absent
// user and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (Profile, string, error) {
	user, err := s.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Profile{}, "", ErrInvalidCredentials
		}
		return Profile{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Profile{}, "", ErrInvalidCredentials
	}

	initial, err := s.forge.Issue(token.KindInitial, user.ID)
	if err != nil {
		return Profile{}, "", fmt.Errorf("issue initial token: %w", err)
	}

	return user.Profile(), initial, nil
}

// GenerateAuthTokens exchanges an initial or google token for an
// access/refresh pair, persisting the new refresh token's hash onto the user
// record. Any previously issued refresh token stops working at that point.
func (s *Service) GenerateAuthTokens(ctx context.Context, raw string, tokenType TokenType) (TokenPair, Profile, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TokenPair{}, Profile{}, ErrTokenRequired
	}

	var user User
	switch tokenType {
	case TokenTypeInitial:
		userID, err := s.forge.Verify(raw, token.KindInitial)
		if err != nil {
			return TokenPair{}, Profile{}, ErrInvalidToken
		}
		user, err = s.store.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return TokenPair{}, Profile{}, ErrInvalidToken
			}
			return TokenPair{}, Profile{}, err
		}

	case TokenTypeGoogle:
		identity, err := s.google.VerifyIDToken(ctx, raw)
		if err != nil {
			return TokenPair{}, Profile{}, ErrInvalidGoogleToken
		}
		user, err = s.findOrCreateGoogleUser(ctx, identity)
		if err != nil {
			return TokenPair{}, Profile{}, err
		}

	default:
		return TokenPair{}, Profile{}, ErrInvalidToken
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return TokenPair{}, Profile{}, err
	}

	return pair, user.Profile(), nil
}

// Refresh rotates the refresh token: the presented token must verify and its
// hash must still be the one stored on the user record, and the new hash is
// written with a compare-and-set so concurrent rotations have one winner.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, ErrRefreshTokenRequired
	}

	userID, err := s.forge.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, ErrRefreshTokenMismatch
		}
		return TokenPair{}, err
	}

	presentedHash := hashToken(refreshToken)
	if user.RefreshTokenHash == "" || user.RefreshTokenHash != presentedHash {
		return TokenPair{}, ErrRefreshTokenMismatch
	}

	pair, err := s.mintPair(user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	expiresAt := time.Now().UTC().Add(s.forge.TTL(token.KindRefresh))
	if err := s.store.RotateRefreshToken(ctx, user.ID, presentedHash, hashToken(pair.RefreshToken), expiresAt); err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

// Me returns the profile for an authenticated user id.
func (s *Service) Me(ctx context.Context, userID string) (Profile, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

func (s *Service) findOrCreateGoogleUser(ctx context.Context, identity federation.Profile) (User, error) {
	email := normalizeEmail(identity.Email)

	user, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	// First federated login: the record gets a random password hash that can
	// never match a typed password, so the account stays google-only until a
	// password reset.
	unusable, err := s.randomPasswordHash()
	if err != nil {
		return User{}, err
	}

	user, err = s.store.Create(ctx, User{
		FirstName:    identity.GivenName,
		LastName:     identity.FamilyName,
		Email:        email,
		ImageURL:     identity.Picture,
		PasswordHash: unusable,
	})
	if err != nil {
		// Lost a concurrent first-login race for the same email.
		if errors.Is(err, ErrUserExists) {
			return s.store.GetByEmail(ctx, email)
		}
		return User{}, err
	}

	return user, nil
}

func (s *Service) issuePair(ctx context.Context, userID string) (TokenPair, error) {
	pair, err := s.mintPair(userID)
	if err != nil {
		return TokenPair{}, err
	}

	expiresAt := time.Now().UTC().Add(s.forge.TTL(token.KindRefresh))
	if err := s.store.SetRefreshToken(ctx, userID, hashToken(pair.RefreshToken), expiresAt); err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

func (s *Service) mintPair(userID string) (TokenPair, error) {
	access, err := s.forge.Issue(token.KindAccess, userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.forge.Issue(token.KindRefresh, userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) randomPasswordHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash random password: %w", err)
	}

	return string(hash), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
