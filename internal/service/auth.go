package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/repository"
)

// AuthService issues and verifies the bearer tokens the sendable endpoints
// authenticate with.
type AuthService struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
}

func NewAuthService(db *gorm.DB, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthService{users: repository.NewUserRepository(db), secret: []byte(secret), ttl: ttl}
}

// Identity is the authenticated caller every core operation receives.
type Identity struct {
	UserID   uint
	Username string
	IsAdmin  bool
}

type authClaims struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

var errInvalidCredentials = errors.New("invalid username or password")

// Login verifies credentials and returns a signed token.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &ValidationError{Field: "username", Message: errInvalidCredentials.Error()}
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return "", &ValidationError{Field: "username", Message: errInvalidCredentials.Error()}
	}
	return s.Sign(user)
}

// Sign issues a token for the given user.
func (s *AuthService) Sign(user *model.User) (string, error) {
	now := time.Now()
	claims := authClaims{
		Username: user.Username,
		Admin:    user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses a token and returns the identity it carries.
func (s *AuthService) Verify(token string) (*Identity, error) {
	var claims authClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, errors.New("invalid token subject")
	}
	return &Identity{UserID: uint(id), Username: claims.Username, IsAdmin: claims.Admin}, nil
}

// CreateUser stores a user with a bcrypt password hash.
func (s *AuthService) CreateUser(ctx context.Context, username, email, password string, isAdmin bool) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{Username: username, Email: email, Password: string(hash), IsAdmin: isAdmin}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
