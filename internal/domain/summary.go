package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the monthly income/expense rollup plus the total balance.
type Summary struct {
	TotalBalance decimal.Decimal `json:"totalBalance"`
	MonthIncome  decimal.Decimal `json:"monthIncome"`
	MonthExpense decimal.Decimal `json:"monthExpense"`
	Period       SummaryPeriod   `json:"period"`
}

// SummaryPeriod is the inclusive day range the month totals cover.
type SummaryPeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Dashboard composes the summary with the account list and recent activity.
type Dashboard struct {
	Summary            Summary       `json:"summary"`
	Accounts           []Account     `json:"accounts"`
	RecentTransactions []Transaction `json:"recentTransactions"`
	GeneratedAt        time.Time     `json:"generatedAt"`
}

// MonthBounds returns [start of now's month, start of next month) in now's
// location. The ledger always passes a UTC time, so months follow the UTC
// calendar rather than the server's local zone; date-only inputs are stored
// as UTC midnight, which keeps both sides on the same calendar.
func MonthBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 1, 0)
}
