// Package idgen issues identifiers for journal entries, loans and loan payments.
//
// Identifiers are snowflake ids: a millisecond timestamp, the node number and a per-node
// sequence. Two generators with distinct node numbers can never produce the same id, and one
// generator never repeats an id, so uniqueness does not depend on collision probability.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Prefixes keep ids of different entities visually distinct
const (
	PrefixTransaction = "TXN"
	PrefixLoan        = "LN"
	PrefixPayment     = "PMT"
)

// Generator issues ids for the ledger. Implementations must be safe for concurrent use.
type Generator interface {
	NewTransactionID() string
	NewLoanID() string
	NewPaymentID() string
}

// Snowflake is a Generator backed by a single snowflake node
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator for the given node number (0-1023).
// Every process writing to the same store must use a different node number.
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &Snowflake{node: node}, nil
}

func (g *Snowflake) NewTransactionID() string {
	return g.next(PrefixTransaction)
}

func (g *Snowflake) NewLoanID() string {
	return g.next(PrefixLoan)
}

func (g *Snowflake) NewPaymentID() string {
	return g.next(PrefixPayment)
}

// next zero-pads the numeric part so ids of one prefix sort in issue order
func (g *Snowflake) next(prefix string) string {
	return fmt.Sprintf("%s%019d", prefix, g.node.Generate().Int64())
}
