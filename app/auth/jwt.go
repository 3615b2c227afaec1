package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vcompressor/app/config"
	"vcompressor/app/model"
)

var (
	// ErrInvalidToken 令牌无效
	ErrInvalidToken = errors.New("invalid token")
	// ErrRefreshTooEarly 令牌离过期还早，不需要刷新
	ErrRefreshTooEarly = errors.New("token still valid, no need to refresh")
)

// refreshWindow 过期前多久允许刷新
const refreshWindow = time.Hour

// Claims JWT声明结构
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// JWTService JWT服务
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpireTime) * time.Hour,
		now:    time.Now,
	}
}

// GenerateToken 为用户生成令牌，同时返回过期时间
func (j *JWTService) GenerateToken(user *model.User) (string, time.Time, error) {
	return j.sign(user.ID, user.Username, user.IsAdmin)
}

func (j *JWTService) sign(userID uint, username string, isAdmin bool) (string, time.Time, error) {
	now := j.now()
	expireAt := now.Add(j.ttl)
	claims := Claims{
		UserID:   userID,
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expireAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expireAt, nil
}

// ValidateToken 验证JWT令牌
func (j *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// RefreshToken 令牌即将过期（1小时内）时签发新令牌
func (j *JWTService) RefreshToken(tokenString string) (string, time.Time, error) {
	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return "", time.Time{}, err
	}

	if claims.ExpiresAt.Time.Sub(j.now()) > refreshWindow {
		return "", time.Time{}, ErrRefreshTooEarly
	}

	return j.sign(claims.UserID, claims.Username, claims.IsAdmin)
}
