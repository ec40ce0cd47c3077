package relay

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// DefaultTokenTTL 令牌默认有效期
const DefaultTokenTTL = 2 * time.Minute

const tokenIssuer = "arpublish-relay"

var (
	// ErrTokenInvalid 令牌无法解析、签名错误或已过期
	ErrTokenInvalid = errors.New("invalid upload token")
	// ErrTokenReused 令牌已被使用过
	ErrTokenReused = errors.New("upload token already used")
)

// TokenConsumer 记录已使用的 jti。首次记录返回 true。
type TokenConsumer interface {
	ConsumeToken(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// TokenIssuer 签发并校验单次有效的上传令牌
type TokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	consumer TokenConsumer
	now      func() time.Time
}

// NewTokenIssuer 创建令牌签发器。secret 为空时生成随机密钥，
// 此时令牌只在本进程内有效。
func NewTokenIssuer(secret string, ttl time.Duration, consumer TokenConsumer) (*TokenIssuer, error) {
	if consumer == nil {
		return nil, fmt.Errorf("token consumer is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	return &TokenIssuer{secret: key, ttl: ttl, consumer: consumer, now: time.Now}, nil
}

// TTL 返回令牌有效期
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue 签发新令牌
func (i *TokenIssuer) Issue() (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		ID:        xid.New().String(),
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify 校验令牌并将其标记为已使用。同一令牌第二次校验返回 ErrTokenReused。
func (i *TokenIssuer) Verify(ctx context.Context, token string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.ID == "" {
		return fmt.Errorf("%w: missing jti", ErrTokenInvalid)
	}

	// 记录保留到令牌过期为止
	remaining := claims.ExpiresAt.Time.Sub(i.now())
	if remaining < time.Second {
		remaining = time.Second
	}
	first, err := i.consumer.ConsumeToken(ctx, claims.ID, remaining)
	if err != nil {
		return fmt.Errorf("record token use: %w", err)
	}
	if !first {
		return ErrTokenReused
	}
	return nil
}
