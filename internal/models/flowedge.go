package models

import (
	"fmt"
	"time"
)

// FlowEdge is a derived input-to-output value transfer inside one
// transaction. One transaction yields one edge per (input address, output)
// pair via proportional value allocation; the allocation across a
// transaction's outputs plus its fee share sums exactly to the input value.
type FlowEdge struct {
	TxID        string    `json:"txid"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	OutputIndex int       `json:"output_index"`
	Value       int64     `json:"value"` // allocated base units
	Fraction    float64   `json:"fraction"` // share of the transaction's total input value
	Timestamp   time.Time `json:"timestamp"`
}

// ID returns the edge identifier, unique within the graph. Used as the
// visited-set key during traversal.
func (e FlowEdge) ID() string {
	return fmt.Sprintf("%s:%d:%s", e.TxID, e.OutputIndex, e.From)
}
