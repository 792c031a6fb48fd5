package account

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Status values of an account. Only active accounts may send payments.
const (
	StatusActive  = "active"
	StatusPending = "pending"
	StatusLocked  = "locked"
	StatusClosed  = "closed"
)

var (
	ErrNotFound        = errors.New("account not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidStatus   = errors.New("invalid account status")
)

// usernames may not look like on-chain or lightning addresses
var (
	usernamePattern = regexp.MustCompile(`^[0-9a-z_]{3,50}$`)
	addressPrefix   = regexp.MustCompile(`^(1|3|bc1|lnbc1)`)
)

// Account owns wallets and is the unit payments are authorised against.
type Account struct {
	ID              string
	Username        string
	Status          string
	Level           int
	DefaultWalletID string
	CreatedAt       time.Time
}

// Active reports whether the account may send.
func (a Account) Active() bool { return a.Status == StatusActive }

// Contact is a counterparty an account has paid or been paid by.
type Contact struct {
	Username          string
	TransactionsCount int
	UpdatedAt         time.Time
}

// NormalizeUsername lower-cases u and checks its shape.
func NormalizeUsername(u string) (string, error) {
	u = strings.ToLower(strings.TrimSpace(u))
	if !usernamePattern.MatchString(u) || addressPrefix.MatchString(u) {
		return "", ErrInvalidUsername
	}
	return u, nil
}

func validStatus(s string) bool {
	switch s {
	case StatusActive, StatusPending, StatusLocked, StatusClosed:
		return true
	}
	return false
}
