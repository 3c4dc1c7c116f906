package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// maxPasswordBytes: предел bcrypt, считается в байтах, а не в символах.
const maxPasswordBytes = 72

var validate = validator.New()

// Service отвечает за регистрацию, вход и адреса покупателей.
type Service struct {
	users    domain.UserRepository
	cost     int
	newToken func() string
	logger   *log.Entry
}

// NewService создаёт сервис аккаунтов. cost <= 0 означает bcrypt.DefaultCost.
func NewService(users domain.UserRepository, cost int, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "account")
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users:    users,
		cost:     cost,
		newToken: uuid.NewString,
		logger:   logger,
	}
}

// Register создаёт пользователя. Повторный email → domain.ErrEmailTaken, новая запись не создаётся.
func (s *Service) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || password == "" {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if len(password) > maxPasswordBytes {
		return domain.User{}, domain.ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if !errors.Is(err, domain.ErrEmailTaken) {
			s.logger.WithError(err).Error("create user failed")
		}
		return domain.User{}, err
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	user.PasswordHash = ""
	return user, nil
}

// Login проверяет пароль и выдаёт новый токен; прежний токен перестаёт действовать.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", domain.ErrInvalidCredentials
	}

	token := s.newToken()
	if err := s.users.SetToken(ctx, user.ID, token); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// Authenticate возвращает id пользователя по bearer-токену.
func (s *Service) Authenticate(ctx context.Context, token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, domain.ErrUnauthorized
	}
	userID, err := s.users.GetUserIDByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrUserNotFound) {
			return 0, domain.ErrUnauthorized
		}
		return 0, fmt.Errorf("resolve token: %w", err)
	}
	return userID, nil
}

// AddAddress сохраняет адрес доставки пользователя.
func (s *Service) AddAddress(ctx context.Context, userID int64, address domain.Address) (domain.Address, error) {
	address.ID = 0
	address.UserID = userID
	return s.users.CreateAddress(ctx, address)
}

func (s *Service) Addresses(ctx context.Context, userID int64) ([]domain.Address, error) {
	return s.users.ListAddresses(ctx, userID)
}

func (s *Service) Address(ctx context.Context, userID, addressID int64) (domain.Address, error) {
	return s.users.GetAddress(ctx, userID, addressID)
}

func (s *Service) DeleteAddress(ctx context.Context, userID, addressID int64) error {
	return s.users.DeleteAddress(ctx, userID, addressID)
}
