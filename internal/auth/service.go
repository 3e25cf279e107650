package auth

import (
	"context"
	"errors"
	"time"

	"backend-traillog/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
)

type Service struct {
	secret []byte
	db     db.Querier
}

type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

var (
	signTokenFn       = (*Service).signToken
	hashPasswordFn    = bcrypt.GenerateFromPassword
	parseWithClaimsFn = jwt.ParseWithClaims
)

func NewService(secret string, db db.Querier) *Service {
	return &Service{
		secret: []byte(secret),
		db:     db,
	}
}

// PairDevice stores a new device with its hashed secret and returns a first
// access token for it.
func (s *Service) PairDevice(ctx context.Context, req PairRequest) (Device, TokenResponse, error) {
	if req.Name == "" || req.Secret == "" {
		return Device{}, TokenResponse{}, errors.New("name and secret required")
	}
	hash, err := hashPasswordFn([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return Device{}, TokenResponse{}, err
	}

	device := Device{
		ID:         req.ID,
		Name:       req.Name,
		SecretHash: string(hash),
	}
	if device.ID == "" {
		device.ID = uuid.NewString()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO devices (id, name, secret_hash)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, device.ID, device.Name, device.SecretHash)
	if err := row.Scan(&device.CreatedAt); err != nil {
		return Device{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateToken(device.ID)
	if err != nil {
		return Device{}, TokenResponse{}, err
	}
	return device, tokens, nil
}

// IssueToken checks the device secret and signs a new access token.
func (s *Service) IssueToken(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, secret_hash, created_at
		FROM devices WHERE id = $1
	`, req.DeviceID)

	var device Device
	if err := row.Scan(&device.ID, &device.Name, &device.SecretHash, &device.CreatedAt); err != nil {
		return TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(device.SecretHash), []byte(req.Secret)); err != nil {
		return TokenResponse{}, ErrInvalidCredentials
	}
	return s.GenerateToken(device.ID)
}

func (s *Service) GenerateToken(deviceID string) (TokenResponse, error) {
	access, err := signTokenFn(s, deviceID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := parseToken(s.secret, token)
	if err != nil {
		return "", err
	}
	return claims.DeviceID, nil
}

func (s *Service) signToken(deviceID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func parseToken(secret []byte, token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.DeviceID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
