package models

import (
	"time"
)

// Transaction represents a recorded value transfer: a directed hyperedge
// from an ordered set of inputs to an ordered set of outputs. Immutable
// once recorded.
type Transaction struct {
	TxID      string     `json:"txid"`
	Timestamp time.Time  `json:"timestamp"`
	Fee       int64      `json:"fee"` // in base units
	Inputs    []TxInput  `json:"inputs"`
	Outputs   []TxOutput `json:"outputs"`
}

// TxInput is a single input of a transaction
type TxInput struct {
	Address string `json:"address"`
	Value   int64  `json:"value"` // in base units
}

// TxOutput is a single output of a transaction
type TxOutput struct {
	Address string `json:"address"`
	Value   int64  `json:"value"` // in base units
}

// TotalInput returns the sum of all input values
func (t *Transaction) TotalInput() int64 {
	var sum int64
	for _, in := range t.Inputs {
		sum += in.Value
	}
	return sum
}

// TotalOutput returns the sum of all output values
func (t *Transaction) TotalOutput() int64 {
	var sum int64
	for _, out := range t.Outputs {
		sum += out.Value
	}
	return sum
}

// InputValue returns the total value the given address contributes to the
// transaction's inputs (an address may appear in more than one input).
func (t *Transaction) InputValue(address string) int64 {
	var sum int64
	for _, in := range t.Inputs {
		if in.Address == address {
			sum += in.Value
		}
	}
	return sum
}

// Balanced reports whether the conservation law holds: inputs fund exactly
// the outputs plus the fee.
func (t *Transaction) Balanced() bool {
	return t.TotalInput() == t.TotalOutput()+t.Fee
}
