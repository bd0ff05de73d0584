package model

// Actor is the already-authenticated caller of a ledger operation.
// Elevated marks staff privileges (loan approval, disbursement, reversals).
type Actor struct {
	ID       string `json:"id"`
	Elevated bool   `json:"elevated"`
}

// System is used for operations initiated by the ledger itself, such as queued transfers
var System = Actor{ID: "system", Elevated: true}
