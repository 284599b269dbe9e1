package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	radix "github.com/mediocregopher/radix/v3"
)

const sessionKeyPrefix = "session:guest:%s"

// SessionStore 游客会话登记表。会话标识由服务端签发、客户端通过
// X-Guest-Session 头原样带回；Redis 里的登记只用于续期和观测，
// 不是购物车归属的权威来源（权威在 carts 表的 guest_session_id 列）。
type SessionStore struct {
	redis radix.Client
	ttl   time.Duration
}

// NewSessionStore 构建会话登记表，redis 传 nil 时退化为纯签发器
func NewSessionStore(redis radix.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionStore{redis: redis, ttl: ttl}
}

// Issue 签发一个新的游客会话标识并登记
func (s *SessionStore) Issue(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	if err := s.register(id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Refresh 会话被使用后续期；登记失败只影响观测，不影响请求
func (s *SessionStore) Refresh(ctx context.Context, id uuid.UUID) error {
	return s.register(id)
}

func (s *SessionStore) register(id uuid.UUID) error {
	if s.redis == nil {
		return nil
	}
	key := fmt.Sprintf(sessionKeyPrefix, id)
	return s.redis.Do(radix.FlatCmd(nil, "SETEX", key, int64(s.ttl/time.Second), time.Now().Unix()))
}
