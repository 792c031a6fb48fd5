// Package limits enforces per account level payment limits expressed in the
// display currency over a rolling window.
package limits

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/PuraVida-Technologies/galoy/internal/account"
	"github.com/PuraVida-Technologies/galoy/internal/price"
)

// DefaultWindow is the rolling period limits are accounted over.
const DefaultWindow = 24 * time.Hour

// Input is one payment about to be checked.
type Input struct {
	Amount         int64
	WalletID       string
	WalletCurrency string
	Account        account.Account
	Converter      price.Converter
}

// Checker decides whether a payment may proceed.
type Checker interface {
	Check(ctx context.Context, in Input) error
}

// Volume reports what a wallet already sent inside the window.
type Volume interface {
	OutgoingVolumeSince(ctx context.Context, walletID string, since time.Time) (int64, error)
}

// LimitExceededError is returned when a payment would cross the limit of the
// account level.
type LimitExceededError struct {
	Level     int
	Limit     decimal.Decimal
	Attempted decimal.Decimal
	Currency  string
	Window    time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("cannot transfer more than %s %s in %s (level %d, attempted %s)",
		e.Limit.StringFixed(2), e.Currency, e.Window, e.Level, e.Attempted.StringFixed(2))
}

// LevelChecker applies the limit configured for the sender's account level.
// Levels without a configured limit are unrestricted.
type LevelChecker struct {
	limits map[int]decimal.Decimal
	volume Volume
	window time.Duration
	now    func() time.Time
}

// NewLevelChecker builds a checker. volume may be nil, in which case only the
// payment itself is counted.
func NewLevelChecker(limits map[int]decimal.Decimal, volume Volume) *LevelChecker {
	return &LevelChecker{limits: limits, volume: volume, window: DefaultWindow, now: time.Now}
}

// Check converts the window volume plus the payment into the display
// currency and compares it to the level limit.
func (c *LevelChecker) Check(ctx context.Context, in Input) error {
	limit, ok := c.limits[in.Account.Level]
	if !ok {
		return nil
	}

	total := in.Amount
	if c.volume != nil {
		used, err := c.volume.OutgoingVolumeSince(ctx, in.WalletID, c.now().Add(-c.window))
		if err != nil {
			return fmt.Errorf("limits: volume: %w", err)
		}
		total += used
	}

	attempted, err := in.Converter.ToDisplay(total, in.WalletCurrency)
	if err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if attempted.GreaterThan(limit) {
		return &LimitExceededError{
			Level:     in.Account.Level,
			Limit:     limit,
			Attempted: attempted,
			Currency:  in.Converter.DisplayCurrency(),
			Window:    c.window,
		}
	}
	return nil
}

// ParseLevelLimits reads a "level=amount" comma separated list such as
// "1=1000,2=5000".
func ParseLevelLimits(s string) (map[int]decimal.Decimal, error) {
	out := make(map[int]decimal.Decimal)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lvl, amt, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("limits: malformed entry %q", part)
		}
		level, err := strconv.Atoi(strings.TrimSpace(lvl))
		if err != nil {
			return nil, fmt.Errorf("limits: level %q: %w", lvl, err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(amt))
		if err != nil {
			return nil, fmt.Errorf("limits: amount %q: %w", amt, err)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("limits: negative amount for level %d", level)
		}
		out[level] = amount
	}
	return out, nil
}
