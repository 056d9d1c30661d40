package service

import (
	"context"
	"errors"

	"github.com/xela07ax/aegis-guard/internal/domain"
	"github.com/xela07ax/aegis-guard/internal/infra/auth"
	"golang.org/x/crypto/bcrypt"
)

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// AuthService совмещает выпуск токенов (закрытый ключ) и их проверку
// (встроенный BaseValidator отдает сервис как auth.TokenValidator).
type AuthService struct {
	*auth.BaseValidator
	repo   AuthProvider
	signer *auth.Signer
}

func NewAuthService(repo AuthProvider, signer *auth.Signer, validator *auth.BaseValidator) *AuthService {
	return &AuthService{
		BaseValidator: validator,
		repo:          repo,
		signer:        signer,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды — хранилище)
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	signed, ttl, err := s.signer.IssueToken(user)
	if err != nil {
		return nil, err
	}

	return &domain.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}
