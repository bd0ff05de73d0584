package loan

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMonthlyRate(t *testing.T) {
	assert.True(t, MonthlyRate(d("12")).Equal(d("0.01")))
	assert.True(t, MonthlyRate(d("0")).IsZero())
	assert.True(t, MonthlyRate(d("6")).Equal(d("0.005")))
}

func TestMonthlyPayment(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		months    int
		currency  string
		want      string
	}{
		{"standard amortizing loan", "1200", "12", 12, "KES", "106.62"},
		{"zero interest", "1200", "0", 12, "KES", "100"},
		{"zero interest uneven", "1000", "0", 3, "USD", "333.33"},
		{"single month", "500", "12", 1, "USD", "505"},
		{"thirty year mortgage", "200000", "6", 360, "USD", "1199.10"},
		{"no minor unit", "120000", "12", 12, "JPY", "10662"},
		{"three decimal currency", "1200", "12", 12, "KWD", "106.619"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthlyPayment(d(tt.principal), d(tt.rate), tt.months, tt.currency)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}

	assert.True(t, MonthlyPayment(d("100"), d("5"), 0, "USD").IsZero())
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name          string
		outstanding   string
		amount        string
		wantInterest  string
		wantPrincipal string
	}{
		{"regular installment", "1200", "106.62", "12.00", "94.62"},
		{"less than interest", "1200", "5", "5", "0"},
		{"exactly interest", "1200", "12", "12", "0"},
		{"payoff", "100", "101", "1", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interest, principal := Split(d(tt.outstanding), d("12"), d(tt.amount), "KES")
			assert.True(t, interest.Equal(d(tt.wantInterest)), "interest %s", interest)
			assert.True(t, principal.Equal(d(tt.wantPrincipal)), "principal %s", principal)
			assert.True(t, interest.Add(principal).Equal(d(tt.amount)))
		})
	}
}

func TestSchedule(t *testing.T) {
	loan := &model.Loan{
		Currency:        "KES",
		PrincipalAmount: d("1200"),
		InterestRate:    d("12"),
		TermMonths:      12,
		MonthlyPayment:  d("106.62"),
	}
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	rows := Schedule(loan, start)
	require.Len(t, rows, 12)

	first := rows[0]
	assert.Equal(t, 1, first.Number)
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), first.DueDate)
	assert.True(t, first.Interest.Equal(d("12")))
	assert.True(t, first.Principal.Equal(d("94.62")))
	assert.True(t, first.RemainingBalance.Equal(d("1105.38")))

	principalSum := decimal.Zero
	for i, row := range rows {
		principalSum = principalSum.Add(row.Principal)
		assert.True(t, row.Payment.Equal(row.Principal.Add(row.Interest)))
		if i > 0 {
			assert.True(t, row.RemainingBalance.LessThan(rows[i-1].RemainingBalance))
		}
	}
	assert.True(t, principalSum.Equal(d("1200")))
	assert.True(t, rows[11].RemainingBalance.IsZero())
	// the final row absorbs rounding, so it stays within a few cents of the fixed payment
	assert.True(t, rows[11].Payment.Sub(d("106.62")).Abs().LessThan(d("0.10")))
}

func TestSchedule_ComputesPaymentForPendingLoan(t *testing.T) {
	loan := &model.Loan{
		Currency:        "USD",
		PrincipalAmount: d("900"),
		InterestRate:    d("0"),
		TermMonths:      3,
	}
	rows := Schedule(loan, time.Now())
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.True(t, row.Payment.Equal(d("300")))
		assert.True(t, row.Interest.IsZero())
	}
}

func TestPow(t *testing.T) {
	assert.True(t, pow(d("1.01"), 0).Equal(d("1")))
	assert.True(t, pow(d("1.01"), 1).Equal(d("1.01")))
	assert.True(t, pow(d("2"), 10).Equal(d("1024")))
	assert.Equal(t, "1.1268250301319697", pow(d("1.01"), 12).StringFixed(16))
}
