// Copyright (c) 2015-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
)

// AmountFlag embeds a btcutil.Amount and implements the flags.Marshaler and
// Unmarshaler interfaces so it can be used as a config struct field.
//
// Values are either a whole number of satoshis with a "sat" suffix, such as
// "1500 sat", or a decimal coin amount with at most eight fractional digits
// and an optional " BTC" suffix.  Parsing is exact; no floating point is
// involved.
type AmountFlag struct {
	btcutil.Amount
}

// NewAmountFlag creates an AmountFlag with a default btcutil.Amount.
func NewAmountFlag(defaultValue btcutil.Amount) *AmountFlag {
	return &AmountFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (a *AmountFlag) MarshalFlag() (string, error) {
	return a.Amount.String(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (a *AmountFlag) UnmarshalFlag(value string) error {
	amt, err := ParseAmount(value)
	if err != nil {
		return err
	}
	a.Amount = amt
	return nil
}

// ParseAmount parses a satoshi or coin denominated amount.
func ParseAmount(value string) (btcutil.Amount, error) {
	value = strings.TrimSpace(value)

	if sats, ok := strings.CutSuffix(value, "sat"); ok {
		sats = strings.TrimSpace(sats)
		if !isDigits(strings.TrimPrefix(sats, "-")) {
			return 0, fmt.Errorf("invalid satoshi amount %q", value)
		}
		n, err := strconv.ParseInt(sats, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid satoshi amount %q: %w",
				value, err)
		}
		return btcutil.Amount(n), nil
	}

	value = strings.TrimSpace(strings.TrimSuffix(value, "BTC"))
	neg := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")

	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("empty amount")
	}
	// A sign may only lead the whole amount.
	if (whole != "" && !isDigits(whole)) ||
		(frac != "" && !isDigits(frac)) {

		return 0, fmt.Errorf("invalid amount %q", value)
	}
	if len(frac) > 8 {
		return 0, fmt.Errorf("amount %q has more than 8 decimals",
			value)
	}
	frac += strings.Repeat("0", 8-len(frac))
	if whole == "" {
		whole = "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if w > btcutil.MaxSatoshi/btcutil.SatoshiPerBitcoin {
		return 0, fmt.Errorf("amount %q out of range", value)
	}

	amt := btcutil.Amount(w*btcutil.SatoshiPerBitcoin + f)
	if neg {
		amt = -amt
	}
	return amt, nil
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
