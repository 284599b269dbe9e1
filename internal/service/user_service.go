package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"

	"github.com/example/vintagemart/internal/auth"
	"github.com/example/vintagemart/internal/config"
	"github.com/example/vintagemart/internal/datamodels/user"
)

type UserService struct {
	repo user.Repository
	jwt  *config.JWTConfig
}

func NewUserService(repo user.Repository, jwt *config.JWTConfig) *UserService {
	return &UserService{repo: repo, jwt: jwt}
}

func hashPassword(raw, salt string) string {
	h := sha256.Sum256([]byte(raw + salt))
	return hex.EncodeToString(h[:])
}

func newSalt() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Register 注册新用户
func (s *UserService) Register(ctx context.Context, email, password string) (*user.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validationErr("邮箱格式不正确")
	}
	if len(password) < 8 {
		return nil, validationErr("密码至少 8 位")
	}
	u := &user.User{
		Email: email,
		Salt:  newSalt(),
	}
	u.Password = hashPassword(password, u.Salt)
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login 登录并返回 JWT
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		return "", errors.New("invalid email or password")
	}
	if hashPassword(password, u.Salt) != u.Password {
		return "", errors.New("invalid email or password")
	}
	return auth.GenerateToken(s.jwt, u.ID, u.Email, u.Role)
}
