package models

// ContributionKind classifies where a risk score component came from
type ContributionKind string

const (
	ContributionSeed     ContributionKind = "seed"
	ContributionUpstream ContributionKind = "upstream"
	ContributionPattern  ContributionKind = "pattern"
)

// RiskContribution is one component of a propagated risk score
type RiskContribution struct {
	Kind   ContributionKind `json:"kind"`
	Source string           `json:"source"` // seed subject, upstream address, or pattern ID
	Value  float64          `json:"value"`
}

// RiskScore is a propagated risk value in [0,1] for an address or entity,
// with a full provenance trail. Derived on demand from the traversal
// subgraph plus the seed risk set; never persisted as ground truth.
type RiskScore struct {
	Subject       string             `json:"subject"`
	Score         float64            `json:"score"`
	CycleDetected bool               `json:"cycle_detected,omitempty"`
	Contributions []RiskContribution `json:"contributions,omitempty"`
}
