package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenMissing = errors.New("token is missing")
)

// TokenType Token 类型
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Platform 平台类型
type Platform string

const (
	PlatformUnknown Platform = "unknown" // 未知
	PlatformAndroid Platform = "android" // Android
	PlatformIOS     Platform = "ios"     // iOS
	PlatformWeb     Platform = "web"     // Web 网页
	PlatformDesktop Platform = "desktop" // 桌面应用
	PlatformWechat  Platform = "wechat"  // 微信小程序
)

// Claims JWT 声明（与 web-go 签发的 Access Token 保持一致）
type Claims struct {
	UserID    int64     `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Platform  Platform  `json:"platform"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Identity 客户端自身身份（从 Access Token 中解析）
type Identity struct {
	UserID    int64
	DeviceID  string
	Platform  Platform
	ExpiresAt time.Time
}

// ParseIdentity 解析 Access Token 得到客户端身份
// secret 非空时校验签名与过期时间；为空时只解析 claims（客户端通常拿不到服务端密钥）
func ParseIdentity(tokenString, secret string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	var claims *Claims
	if secret != "" {
		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrTokenInvalid
			}
			return []byte(secret), nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return nil, ErrTokenExpired
			}
			return nil, ErrTokenInvalid
		}
		c, ok := token.Claims.(*Claims)
		if !ok || !token.Valid {
			return nil, ErrTokenInvalid
		}
		claims = c
	} else {
		// 使用 ParseUnverified 不验证签名，只解析 claims
		token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
		if err != nil {
			return nil, ErrTokenInvalid
		}
		c, ok := token.Claims.(*Claims)
		if !ok {
			return nil, ErrTokenInvalid
		}
		claims = c
	}

	if claims.TokenType != AccessToken || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}

	identity := &Identity{
		UserID:   claims.UserID,
		DeviceID: claims.DeviceID,
		Platform: claims.Platform,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
