package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const issuer = "directstock"

// Claims identifies the operator behind a request. Subject is recorded as performed_by.
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates operator tokens
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewJWTManager(secretKey string, ttl time.Duration, logger *zap.Logger) *JWTManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTManager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// GenerateToken signs a token for operator
func (j *JWTManager) GenerateToken(operator string) (string, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)

	claims := Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   operator,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		j.logger.Error("Failed to generate token", zap.Error(err))
		return "", err
	}

	j.logger.Debug("Token generated",
		zap.String("operator", operator),
		zap.Time("expires_at", expiresAt),
	)
	return signed, nil
}

// ValidateToken checks signature, expiry and issuer and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			j.logger.Warn("Token expired", zap.Error(err))
			return nil, ErrExpiredToken
		}
		j.logger.Warn("Invalid token", zap.Error(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Issuer != issuer || claims.Subject == "" {
		j.logger.Warn("Invalid token claims")
		return nil, ErrInvalidToken
	}
	return claims, nil
}
