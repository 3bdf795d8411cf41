// Package token 校验外部会话服务签发的 JWT。
// GenerateToken 只供运维脚本与测试使用。
package token

import (
	"time"

	"report-intake-go/pkg/errs"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin 是可以修改文件状态和删除文件的审核角色。
const RoleAdmin = "ADMIN"

// JWTManager 使用 HS256 共享密钥签发和校验令牌。
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
}

// Claims 中 Subject 为审核人标识，Role 决定管理权限。
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin 判断令牌持有者是否为管理员。
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// NewJWTManager 创建 JWTManager，ttl 以小时计。
func NewJWTManager(secret string, ttlHours int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		ttl:       time.Hour * time.Duration(ttlHours),
	}
}

// GenerateToken 为 subject 签发带角色的令牌。
func (m *JWTManager) GenerateToken(subject, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
}

// VerifyToken 校验签名与有效期，失败统一归类为 PermissionDenied。
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errs.Wrap(errs.PermissionDenied, "invalid token", err)
	}
	if claims.Subject == "" {
		return nil, errs.New(errs.PermissionDenied, "token has no subject")
	}
	return claims, nil
}
