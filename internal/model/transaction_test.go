package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransferRequest_Validate(t *testing.T) {
	fromID := uuid.New()
	toID := uuid.New()

	tests := []struct {
		name    string
		request TransferRequest
		wantErr error
	}{
		{
			name:    "valid request",
			request: TransferRequest{FromAccountID: fromID, ToAccountID: toID, Amount: "100.00"},
		},
		{
			name:    "missing from account",
			request: TransferRequest{ToAccountID: toID, Amount: "100.00"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "missing to account",
			request: TransferRequest{FromAccountID: fromID, Amount: "100.00"},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "same account",
			request: TransferRequest{FromAccountID: fromID, ToAccountID: fromID, Amount: "100.00"},
			wantErr: ErrSameAccount,
		},
		{
			name:    "empty amount",
			request: TransferRequest{FromAccountID: fromID, ToAccountID: toID},
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "negative amount",
			request: TransferRequest{FromAccountID: fromID, ToAccountID: toID, Amount: "-100.00"},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "zero amount",
			request: TransferRequest{FromAccountID: fromID, ToAccountID: toID, Amount: "0"},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "not a number",
			request: TransferRequest{FromAccountID: fromID, ToAccountID: toID, Amount: "ten"},
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.request.Validate())
		})
	}
}

func TestMovementRequest_Validate(t *testing.T) {
	assert.NoError(t, MovementRequest{Amount: "10.50", Description: "salary"}.Validate())
	assert.Equal(t, ErrInvalidAmount, MovementRequest{Amount: "0"}.Validate())
	assert.Equal(t, ErrInvalidAmount, MovementRequest{}.Validate())

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'x'
	}
	assert.Equal(t, ErrInvalidRequest, MovementRequest{Amount: "1", Description: string(long)}.Validate())
}

func TestTransactionType_NaturalDirection(t *testing.T) {
	tests := []struct {
		txnType TransactionType
		want    Direction
		natural bool
	}{
		{TransactionTypeDeposit, DirectionCredit, true},
		{TransactionTypeLoanDisbursement, DirectionCredit, true},
		{TransactionTypeInterest, DirectionCredit, true},
		{TransactionTypeWithdrawal, DirectionDebit, true},
		{TransactionTypeLoanRepayment, DirectionDebit, true},
		{TransactionTypeFee, DirectionDebit, true},
		{TransactionTypeTransfer, "", false},
		{"BOGUS", "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.txnType), func(t *testing.T) {
			got, ok := tt.txnType.NaturalDirection()
			assert.Equal(t, tt.natural, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.True(t, TransactionTypeTransfer.Valid())
	assert.False(t, TransactionType("BOGUS").Valid())
}

func TestTransaction_Signed(t *testing.T) {
	amount := decimal.RequireFromString("12.34")

	debit := &Transaction{Direction: DirectionDebit, Amount: amount}
	credit := &Transaction{Direction: DirectionCredit, Amount: amount}

	assert.True(t, debit.Signed().Equal(amount.Neg()))
	assert.True(t, credit.Signed().Equal(amount))
	assert.Equal(t, DirectionCredit, DirectionDebit.Opposite())
	assert.Equal(t, DirectionDebit, DirectionCredit.Opposite())
	assert.False(t, debit.IsReversal())
	assert.True(t, (&Transaction{ReversalOf: "TXN1"}).IsReversal())
}
