package auth

import (
	"context"
	"errors"
	"time"

	"boston-tracker/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Tokens cover a full shift so couriers do not get logged out mid-route.
const accessTokenTTL = 12 * time.Hour

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	if req.EmployeeID == "" || req.Name == "" || req.Password == "" {
		return User{}, errors.New("employee_id, name, password required")
	}
	if req.Role == "" {
		req.Role = RoleCourier
	}
	if req.Role != RoleCourier && req.Role != RoleSupervisor {
		return User{}, errors.New("role must be courier or supervisor")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		EmployeeID:   req.EmployeeID,
		Name:         req.Name,
		Role:         req.Role,
		PasswordHash: string(hash),
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, employee_id, name, role, password_hash)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, user.ID, user.EmployeeID, user.Name, user.Role, user.PasswordHash)
	if err := row.Scan(&user.CreatedAt); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (User, TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, employee_id, name, role, password_hash, created_at
		FROM users WHERE employee_id = $1
	`, req.EmployeeID)

	var user User
	if err := row.Scan(&user.ID, &user.EmployeeID, &user.Name, &user.Role, &user.PasswordHash, &user.CreatedAt); err != nil {
		return User{}, TokenResponse{}, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return User{}, TokenResponse{}, errors.New("invalid credentials")
	}

	token, err := s.signToken(user.ID, user.Role, accessTokenTTL)
	if err != nil {
		return User{}, TokenResponse{}, err
	}
	return user, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateAccessToken returns the user id and role carried by the token.
func (s *Service) ValidateAccessToken(token string) (string, string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", "", err
	}
	return claims.UserID, claims.Role, nil
}

func (s *Service) signToken(userID, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}
