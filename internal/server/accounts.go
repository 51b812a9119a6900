package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Authentication failures. The error text is sent to the client as the reply.
var (
	ErrMalformedCredentials = errors.New("malformed credentials")
	ErrNoSuchUser           = errors.New("no such user")
	ErrWrongPassword        = errors.New("wrong password")
	ErrUserExists           = errors.New("user already exists")
)

type account struct {
	hash     []byte
	username string
}

// Accounts is an in-memory user store with bcrypt password hashes.
type Accounts struct {
	mu    sync.RWMutex
	users map[string]account
	cost  int
}

// NewAccounts creates an empty store hashing with cost.
// A cost <= 0 selects bcrypt.DefaultCost.
func NewAccounts(cost int) *Accounts {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Accounts{users: make(map[string]account), cost: cost}
}

// Register adds a new account.
func (a *Accounts) Register(login, password, username string) error {
	if login == "" || password == "" || username == "" {
		return ErrMalformedCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[login]; ok {
		return ErrUserExists
	}
	a.users[login] = account{hash: hash, username: username}
	return nil
}

// Login checks a password and returns the display name of the account.
func (a *Accounts) Login(login, password string) (string, error) {
	if login == "" || password == "" {
		return "", ErrMalformedCredentials
	}
	a.mu.RLock()
	acc, ok := a.users[login]
	a.mu.RUnlock()
	if !ok {
		return "", ErrNoSuchUser
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return "", ErrWrongPassword
	}
	return acc.username, nil
}

// Authenticate handles one credentials line: "login/password" logs in,
// "login/password/username" registers and logs in.
func (a *Accounts) Authenticate(credentials string) (string, error) {
	parts := strings.Split(credentials, "/")
	switch len(parts) {
	case 2:
		return a.Login(parts[0], parts[1])
	case 3:
		if err := a.Register(parts[0], parts[1], parts[2]); err != nil {
			return "", err
		}
		return parts[2], nil
	default:
		return "", ErrMalformedCredentials
	}
}

// Len returns the number of accounts.
func (a *Accounts) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users)
}
