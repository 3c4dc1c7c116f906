package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// userRepositoryInMemory хранит пользователей и их адреса.
type userRepositoryInMemory struct {
	mu            sync.RWMutex
	nextUserID    int64
	nextAddressID int64
	users         map[int64]domain.User
	byEmail       map[string]int64
	byToken       map[string]int64
	addresses     map[int64]domain.Address
}

// NewUserRepository возвращает пустое in-memory хранилище пользователей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		users:     make(map[int64]domain.User),
		byEmail:   make(map[string]int64),
		byToken:   make(map[string]int64),
		addresses: make(map[int64]domain.Address),
	}
}

func (r *userRepositoryInMemory) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	email := normalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		return domain.User{}, domain.ErrEmailTaken
	}

	r.nextUserID++
	user.ID = r.nextUserID
	user.Email = email
	r.users[user.ID] = user
	r.byEmail[email] = user.ID
	if user.Token != "" {
		r.byToken[user.Token] = user.ID
	}
	return user, nil
}

func (r *userRepositoryInMemory) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.users[id], nil
}

// SetToken заменяет токен пользователя; предыдущий токен перестаёт действовать.
func (r *userRepositoryInMemory) SetToken(_ context.Context, userID int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if user.Token != "" {
		delete(r.byToken, user.Token)
	}
	user.Token = token
	r.users[userID] = user
	if token != "" {
		r.byToken[token] = userID
	}
	return nil
}

func (r *userRepositoryInMemory) GetUserIDByToken(_ context.Context, token string) (int64, error) {
	if token == "" {
		return 0, domain.ErrUnauthorized
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return 0, domain.ErrUnauthorized
	}
	return id, nil
}

func (r *userRepositoryInMemory) CreateAddress(_ context.Context, address domain.Address) (domain.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[address.UserID]; !ok {
		return domain.Address{}, domain.ErrUserNotFound
	}
	r.nextAddressID++
	address.ID = r.nextAddressID
	r.addresses[address.ID] = address
	return address, nil
}

func (r *userRepositoryInMemory) ListAddresses(_ context.Context, userID int64) ([]domain.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Address, 0)
	for _, a := range r.addresses {
		if a.UserID == userID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *userRepositoryInMemory) GetAddress(_ context.Context, userID, addressID int64) (domain.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.addresses[addressID]
	if !ok || a.UserID != userID {
		return domain.Address{}, domain.ErrAddressNotFound
	}
	return a, nil
}

func (r *userRepositoryInMemory) DeleteAddress(_ context.Context, userID, addressID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.addresses[addressID]
	if !ok || a.UserID != userID {
		return domain.ErrAddressNotFound
	}
	delete(r.addresses, addressID)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
