package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	user.ID = int64(len(s.users) + 1)
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func seededStub() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"ceo": {
				ID:        1,
				Username:  "ceo",
				Password:  "ceo-pass-123",
				Role:      domain.RoleCEO,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := seededStub()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ceo", Password: "ceo-pass-123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
}

func TestTokenCarriesActorScope(t *testing.T) {
	users := seededStub()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)
	created, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username:     "Dapur.Staff",
		Password:     "pass12345",
		Role:         domain.RoleDepartmentStaff,
		LocationID:   1,
		DepartmentID: 2,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "dapur.staff" || created.ID == 0 || created.Password != "" {
		t.Fatalf("unexpected created user %+v", created)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "dapur.staff", Password: "pass12345"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.UserID != created.ID || actor.LocationID != 1 || actor.DepartmentID != 2 || actor.Role != domain.RoleDepartmentStaff {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestCreateUserRequiresScopeForRole(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, seededStub())

	cases := []domain.UserCreateRequest{
		{Username: "gudang", Password: "pass12345", Role: domain.RoleStoreManager},
		{Username: "dapur", Password: "pass12345", Role: domain.RoleDepartmentHead, LocationID: 1},
		{Username: "kasir", Password: "pass12345", Role: "cashier", LocationID: 1},
		{Username: "abc", Password: "pass12345", Role: domain.RoleFinance, LocationID: 1},
	}
	for _, req := range cases {
		if _, err := manager.CreateUser(context.Background(), req); !errors.Is(err, store.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
	if _, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "ceo", Password: "pass12345", Role: domain.RoleCEO,
	}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate username conflict, got %v", err)
	}
}

func TestParseTokenRejectsForeignIssuer(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, seededStub())
	claims := actorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "ceo",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: 1,
		Role:   domain.RoleCEO,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	users := seededStub()
	user := users.users["ceo"]
	user.Active = false
	users.users["ceo"] = user

	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, users)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ceo", Password: "ceo-pass-123"}); err == nil {
		t.Fatalf("expected inactive account to be refused")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ceo", Password: "wrong"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}
