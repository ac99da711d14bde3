/*
Conversions between on-chain base units (big.Int / sdkmath.Int) and the decimal
strings users type and read. Token decimals are capped at 18, the precision of LegacyDec.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrTooPrecise       = errors.New("amount has more decimal places than the token")
)

func checkPrecision(precision int) error {
	if precision < 0 || precision > sdkmath.LegacyPrecision {
		return fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, sdkmath.LegacyPrecision)
	}
	return nil
}

// BigToInt converts a chain value into an sdkmath.Int. nil becomes zero.
func BigToInt(v *big.Int) sdkmath.Int {
	if v == nil {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(v)
}

// ParseUnits turns a human amount such as "12.5" into base units.
func ParseUnits(amount string, precision int) (sdkmath.Int, error) {
	if err := checkPrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return sdkmath.ZeroInt(), ErrAmountNil
	}

	dec, err := sdkmath.LegacyNewDecFromStr(amount)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if dec.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	scaled := dec.MulInt(sdkmath.NewIntWithDecimal(1, precision))
	if !scaled.IsInteger() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s with %d decimals", ErrTooPrecise, amount, precision)
	}
	return scaled.TruncateInt(), nil
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(amount sdkmath.Int, precision int) (string, error) {
	if err := checkPrecision(precision); err != nil {
		return "", err
	}
	if amount.IsNil() {
		return "", ErrAmountNil
	}

	s := sdkmath.LegacyNewDecFromIntWithPrec(amount, int64(precision)).String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s, nil
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if err := checkPrecision(precision); err != nil {
		return 0, err
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result := sdkmath.LegacyNewDecFromIntWithPrec(amount, int64(precision))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// WeiToGwei converts a gas price for display.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return gwei
}
