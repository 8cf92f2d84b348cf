package services

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// FeeSchedule computes the fee for a gross amount: a percentage of the amount
// plus a fixed charge, both in cents. Percentage math runs on decimals so
// repeated schedules never drift the way float arithmetic does.
type FeeSchedule struct {
	Percentage decimal.Decimal // e.g. 0.5 means 0.5%
	Fixed      int64           // in cents
}

// ZeroFees is the schedule applied to plain deposits.
var ZeroFees = FeeSchedule{}

// WithdrawalFeesFromConfig loads the withdrawal schedule. Defaults match a
// typical aggregator contract: 0.5% + 50 cents.
func WithdrawalFeesFromConfig() FeeSchedule {
	viper.SetDefault("fees.withdrawal_percentage", "0.5")
	viper.SetDefault("fees.withdrawal_fixed", 50)

	pct, err := decimal.NewFromString(viper.GetString("fees.withdrawal_percentage"))
	if err != nil {
		pct = decimal.NewFromFloat(0.5)
	}
	return FeeSchedule{
		Percentage: pct,
		Fixed:      viper.GetInt64("fees.withdrawal_fixed"),
	}
}

// Fee returns the fee in cents for a gross amount, rounded half-up to the
// nearest cent.
func (fs FeeSchedule) Fee(gross int64) int64 {
	if fs.Percentage.IsZero() && fs.Fixed == 0 {
		return 0
	}
	pct := decimal.NewFromInt(gross).
		Mul(fs.Percentage).
		Div(decimal.NewFromInt(100)).
		Round(0)
	return pct.IntPart() + fs.Fixed
}
