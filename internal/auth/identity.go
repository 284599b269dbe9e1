package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/vintagemart/internal/config"
)

// ErrUnauthorized 严格模式下身份缺失或 token 无效
var ErrUnauthorized = errors.New("unauthorized")

// IdentityKind 身份类别
type IdentityKind int

const (
	KindAnonymous     IdentityKind = iota // 完全无身份
	KindGuest                             // 匿名会话
	KindAuthenticated                     // 已登录用户
)

// Identity 一次请求解析出的身份，三选一的封闭变体。
// 所有购物车/结算操作都消费这个结构，不再各自翻 header。
type Identity struct {
	Kind           IdentityKind
	UserID         uuid.UUID // Kind == KindAuthenticated 时有效
	Email          string
	Role           string
	GuestSessionID uuid.UUID // Kind == KindGuest 时有效
}

// IsAdmin 是否管理员身份
func (id Identity) IsAdmin(adminRole string) bool {
	return id.Kind == KindAuthenticated && id.Role == adminRole
}

// Resolver 把请求级凭证（bearer token、游客会话头）归一为 Identity。
// 宽松模式下 token 验证失败吞掉错误降级为 Guest/Anonymous，
// 严格模式（RequireUser）下则是硬失败，由各消费路由自己声明用哪种。
type Resolver struct {
	jwtCfg     *config.JWTConfig
	tokenCache *TokenCache
	sessions   *SessionStore
}

// NewResolver 构建身份解析器，tokenCache 可为 nil
func NewResolver(jwtCfg *config.JWTConfig, tokenCache *TokenCache, sessions *SessionStore) *Resolver {
	return &Resolver{jwtCfg: jwtCfg, tokenCache: tokenCache, sessions: sessions}
}

// trimBearer 兼容裸 token 和 "Bearer xxx" 两种写法
func trimBearer(token string) string {
	token = strings.TrimSpace(token)
	if rest, ok := strings.CutPrefix(token, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return token
}

// Resolve 宽松解析：优先认 token，其次认游客会话头，都没有就是 Anonymous
func (r *Resolver) Resolve(ctx context.Context, token, guestSession string) Identity {
	token = trimBearer(token)
	if token != "" {
		if claims, err := r.parse(ctx, token); err == nil {
			return Identity{
				Kind:   KindAuthenticated,
				UserID: claims.UserID,
				Email:  claims.Email,
				Role:   claims.Role,
			}
		} else {
			// 宽松模式：无效 token 降级处理，不向上冒泡
			zap.L().Debug("token rejected, falling back to guest/anonymous", zap.Error(err))
		}
	}
	if guestSession != "" {
		if sid, err := uuid.Parse(guestSession); err == nil {
			if r.sessions != nil {
				if err := r.sessions.Refresh(ctx, sid); err != nil {
					zap.L().Warn("guest session refresh failed", zap.Error(err))
				}
			}
			return Identity{Kind: KindGuest, GuestSessionID: sid}
		}
	}
	return Identity{Kind: KindAnonymous}
}

// RequireUser 严格解析：token 缺失或无效直接返回 ErrUnauthorized
func (r *Resolver) RequireUser(ctx context.Context, token string) (Identity, error) {
	token = trimBearer(token)
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	claims, err := r.parse(ctx, token)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	return Identity{
		Kind:   KindAuthenticated,
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

func (r *Resolver) parse(ctx context.Context, token string) (*Claims, error) {
	if r.tokenCache != nil {
		if claims, hit, err := r.tokenCache.Get(ctx, token); err == nil && hit {
			return claims, nil
		}
	}
	claims, err := ParseToken(r.jwtCfg, token)
	if err != nil {
		return nil, err
	}
	if r.tokenCache != nil {
		if err := r.tokenCache.Set(ctx, token, claims); err != nil {
			zap.L().Warn("token cache set failed", zap.Error(err))
		}
	}
	return claims, nil
}
