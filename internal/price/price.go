// Package price converts wallet amounts into the display currency.
package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCurrency = errors.New("price: unknown wallet currency")
	ErrNoPrice         = errors.New("price: no price available")
)

// Snapshot is a price observation taken once per payment.
type Snapshot struct {
	DisplayCurrency string
	// PerSat is the display value of one satoshi.
	PerSat decimal.Decimal
	// PerCent is the display value of one USD cent.
	PerCent decimal.Decimal
	TakenAt time.Time
}

// Provider hands out price snapshots.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// StaticProvider serves fixed prices from configuration.
type StaticProvider struct {
	displayCurrency string
	perSat          decimal.Decimal
	perCent         decimal.Decimal
}

// NewStaticProvider validates the configured prices.
func NewStaticProvider(displayCurrency string, perSat, perCent decimal.Decimal) (*StaticProvider, error) {
	if displayCurrency == "" {
		return nil, fmt.Errorf("%w: empty display currency", ErrNoPrice)
	}
	if !perSat.IsPositive() || !perCent.IsPositive() {
		return nil, fmt.Errorf("%w: prices must be positive", ErrNoPrice)
	}
	return &StaticProvider{displayCurrency: displayCurrency, perSat: perSat, perCent: perCent}, nil
}

// Snapshot returns the configured prices stamped with the current time.
func (p *StaticProvider) Snapshot(context.Context) (Snapshot, error) {
	return Snapshot{
		DisplayCurrency: p.displayCurrency,
		PerSat:          p.perSat,
		PerCent:         p.perCent,
		TakenAt:         time.Now().UTC(),
	}, nil
}

// Converter turns base-unit amounts into display amounts using one snapshot.
type Converter struct {
	snapshot Snapshot
}

// NewConverter binds a converter to snapshot.
func NewConverter(snapshot Snapshot) Converter {
	return Converter{snapshot: snapshot}
}

// DisplayCurrency is the currency of the converted amounts.
func (c Converter) DisplayCurrency() string { return c.snapshot.DisplayCurrency }

// ToDisplay converts amount of the wallet currency into the display currency,
// rounded to cents.
func (c Converter) ToDisplay(amount int64, currency string) (decimal.Decimal, error) {
	var unit decimal.Decimal
	switch currency {
	case "BTC":
		unit = c.snapshot.PerSat
	case "USD":
		unit = c.snapshot.PerCent
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
	}
	if unit.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, currency)
	}
	return decimal.NewFromInt(amount).Mul(unit).Round(2), nil
}
