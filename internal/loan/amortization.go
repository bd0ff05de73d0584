package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// workingPlaces is the precision kept in intermediate results before the final rounding to
// the currency's minor unit
const workingPlaces = 28

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// MonthlyRate converts an annual percentage rate to a monthly fraction: 12 -> 0.01
func MonthlyRate(annualPercent decimal.Decimal) decimal.Decimal {
	return annualPercent.DivRound(hundred, workingPlaces).DivRound(twelve, workingPlaces)
}

// MonthlyPayment is the fixed installment that repays principal over n months at the
// monthly rate r: P*r*(1+r)^n / ((1+r)^n - 1), or P/n when r is zero.
// The result is rounded half-up to the currency's minor unit.
func MonthlyPayment(principal, annualPercent decimal.Decimal, n int, currency string) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}

	r := MonthlyRate(annualPercent)
	if r.IsZero() {
		return model.RoundMoney(principal.DivRound(decimal.NewFromInt(int64(n)), workingPlaces), currency)
	}

	growth := pow(decimal.NewFromInt(1).Add(r), n)
	payment := principal.Mul(r).Mul(growth).DivRound(growth.Sub(decimal.NewFromInt(1)), workingPlaces)
	return model.RoundMoney(payment, currency)
}

// Split divides a payment into interest and principal. Interest for the period is the
// outstanding balance times the monthly rate, rounded to the minor unit, and is paid first.
func Split(outstanding, annualPercent, amount decimal.Decimal, currency string) (interest, principal decimal.Decimal) {
	due := PeriodInterest(outstanding, annualPercent, currency)
	interest = decimal.Min(amount, due)
	return interest, amount.Sub(interest)
}

// PeriodInterest is one month of interest on outstanding
func PeriodInterest(outstanding, annualPercent decimal.Decimal, currency string) decimal.Decimal {
	return model.RoundMoney(outstanding.Mul(MonthlyRate(annualPercent)), currency)
}

// Schedule lays out the installments of an approved loan starting one month after start.
// Every row pays the fixed monthly payment except the last, which clears the remaining
// balance exactly.
func Schedule(loan *model.Loan, start time.Time) []model.Installment {
	payment := loan.MonthlyPayment
	if !payment.IsPositive() {
		payment = MonthlyPayment(loan.PrincipalAmount, loan.InterestRate, loan.TermMonths, loan.Currency)
	}

	balance := loan.PrincipalAmount
	installments := make([]model.Installment, 0, loan.TermMonths)
	for i := 1; i <= loan.TermMonths && balance.IsPositive(); i++ {
		interest := PeriodInterest(balance, loan.InterestRate, loan.Currency)
		principal := payment.Sub(interest)
		if i == loan.TermMonths || principal.GreaterThan(balance) {
			principal = balance
		}
		balance = balance.Sub(principal)

		installments = append(installments, model.Installment{
			Number:           i,
			DueDate:          start.AddDate(0, i, 0),
			Payment:          principal.Add(interest),
			Principal:        principal,
			Interest:         interest,
			RemainingBalance: balance,
		})
	}
	return installments
}

// pow raises base to a non-negative integer power by squaring, keeping workingPlaces
// decimals at every step so long terms do not grow the precision without bound
func pow(base decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Round(workingPlaces)
		}
		base = base.Mul(base).Round(workingPlaces)
		n >>= 1
	}
	return result
}
