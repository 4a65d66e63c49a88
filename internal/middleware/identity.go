// Package middleware 提供 HTTP 中间件：跨域与请求身份解析。
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mindease/companion/backend/internal/model/identity"
	"github.com/mindease/companion/backend/pkg/utils"
)

// GuestKeyHeader 携带未登录客户端的稳定标识，缺失时由服务端签发。
const GuestKeyHeader = "X-Guest-Key"

const maxGuestKeyLen = 128

// WebSocket 握手无法设置请求头，允许用查询参数传递。
const (
	tokenQueryParam = "access_token"
	guestQueryParam = "guest"
)

var (
	// ErrInvalidToken 表示令牌无法通过校验。
	ErrInvalidToken = errors.New("invalid token")
	// ErrAuthDisabled 表示请求携带了令牌，但服务未配置签名密钥。
	ErrAuthDisabled = errors.New("authentication is not configured")
	// ErrGuestKeyTooLong 表示访客键超出长度上限。
	ErrGuestKeyTooLong = errors.New("guest key too long")
)

// Verifier 校验托管身份服务签发的 HS256 令牌。
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier 创建校验器；secret 为空时所有令牌都会被拒绝。
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify 返回令牌 subject 对应的身份。
func (v *Verifier) Verify(raw string) (identity.Identity, error) {
	if len(v.secret) == 0 {
		return identity.Identity{}, ErrAuthDisabled
	}

	claims := &jwt.RegisteredClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return identity.Identity{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return identity.Identity{}, ErrInvalidToken
	}
	return identity.Authenticated(claims.Subject), nil
}

// Identity 解析请求身份并写入 context：有效令牌得到登录身份，
// 无令牌得到按访客键区分的匿名身份，无效令牌直接返回 401。
// 请求未携带访客键时签发新键并通过 X-Guest-Key 响应头返回。
func Identity(verifier *Verifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				guest := strings.TrimSpace(r.Header.Get(GuestKeyHeader))
				if guest == "" {
					guest = strings.TrimSpace(r.URL.Query().Get(guestQueryParam))
				}
				if len(guest) > maxGuestKeyLen {
					utils.RespondError(w, http.StatusBadRequest, ErrGuestKeyTooLong.Error())
					return
				}
				if guest == "" {
					guest = identity.NewGuestKey()
				}
				// 客户端需在后续请求中回传该键才能看到自己的匿名数据。
				w.Header().Set(GuestKeyHeader, guest)
				ctx := identity.WithIdentity(r.Context(), identity.Anon(guest))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			id, err := verifier.Verify(raw)
			if err != nil {
				logger.Debug("rejected bearer token", zap.String("path", r.URL.Path), zap.Error(err))
				utils.RespondError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return header
	}
	return strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
}
