package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"dapurku/backend/internal/domain"
	"dapurku/backend/internal/store"
)

const tokenIssuer = "dapurku"

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	mu        sync.RWMutex
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
	users     map[string]credential
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	id         int64
	password   string
	role       string
	location   int64
	department int64
	active     bool
	created    time.Time
}

type actorClaims struct {
	jwtlib.RegisteredClaims
	UserID       int64  `json:"user_id"`
	Role         string `json:"role"`
	LocationID   int64  `json:"location_id,omitempty"`
	DepartmentID int64  `json:"department_id,omitempty"`
}

var knownRoles = map[string]struct{}{
	domain.RoleCEO:             {},
	domain.RoleBranchManager:   {},
	domain.RoleProcurementHead: {},
	domain.RoleFinance:         {},
	domain.RoleStoreManager:    {},
	domain.RoleDepartmentHead:  {},
	domain.RoleDepartmentStaff: {},
}

func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	manager := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
	}
	manager.bootstrapUsers(ctx)
	return manager
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &actorClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.UserID <= 0 {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if _, ok := knownRoles[claims.Role]; !ok {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{
		UserID:       claims.UserID,
		Username:     sub,
		Role:         claims.Role,
		LocationID:   claims.LocationID,
		DepartmentID: claims.DepartmentID,
	}, nil
}

func (a *AuthManager) sign(username string, cred credential, expiresAt time.Time) (string, error) {
	claims := actorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		UserID:       cred.id,
		Role:         cred.role,
		LocationID:   cred.location,
		DepartmentID: cred.department,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CreateUser provisions an account. Every role except ceo is bound to one
// branch, and department roles also to one department.
func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 4 {
		return domain.UserAccount{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrValidation)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.UserAccount{}, fmt.Errorf("%w: username must not contain spaces", store.ErrValidation)
	}
	if len(req.Password) < 8 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrValidation)
	}
	role := strings.TrimSpace(req.Role)
	if _, ok := knownRoles[role]; !ok {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrValidation, role)
	}
	if role != domain.RoleCEO && req.LocationID <= 0 {
		return domain.UserAccount{}, fmt.Errorf("%w: location_id is required for role %s", store.ErrValidation, role)
	}
	if (role == domain.RoleDepartmentHead || role == domain.RoleDepartmentStaff) && req.DepartmentID <= 0 {
		return domain.UserAccount{}, fmt.Errorf("%w: department_id is required for role %s", store.ErrValidation, role)
	}

	a.mu.RLock()
	_, exists := a.users[username]
	a.mu.RUnlock()
	if exists {
		return domain.UserAccount{}, fmt.Errorf("%w: username already exists", store.ErrConflict)
	}

	passwordHash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("failed to hash password")
	}
	now := time.Now().UTC()
	account := domain.UserAccount{
		Username:     username,
		Password:     passwordHash,
		Role:         role,
		LocationID:   req.LocationID,
		DepartmentID: req.DepartmentID,
		Active:       true,
		CreatedAt:    now,
	}
	if role == domain.RoleCEO {
		account.LocationID = 0
		account.DepartmentID = 0
	}
	if err := a.userStore.CreateUser(ctx, account); err != nil {
		return domain.UserAccount{}, err
	}

	// Reload so the cached credential carries the store-assigned id.
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	cred := a.users[username]
	a.mu.RUnlock()
	account.ID = cred.id
	account.Password = ""
	return account, nil
}

func (a *AuthManager) ListUsers(ctx context.Context) []domain.UserAccount {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]domain.UserAccount, 0, len(a.users))
	for username, user := range a.users {
		result = append(result, domain.UserAccount{
			ID:           user.id,
			Username:     username,
			Role:         user.role,
			LocationID:   user.location,
			DepartmentID: user.department,
			Active:       user.active,
			CreatedAt:    user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// bootstrapUsers loads accounts from the user store into the credential
// cache and upgrades legacy plain-text passwords to bcrypt hashes.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}
	users, err := a.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		password := user.Password
		if !isPasswordHash(password) {
			hashed, err := hashPassword(password)
			if err == nil {
				password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		a.users[username] = credential{
			id:         user.ID,
			password:   password,
			role:       user.Role,
			location:   user.LocationID,
			department: user.DepartmentID,
			active:     user.Active,
			created:    user.CreatedAt,
		}
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
