// Package compliance converts a wallet risk assessment into an
// approve/reject verdict.
//
// The evaluator applies ordered rules over the assessment's exposure data:
// overall risk score, high-risk category proximity, high-risk country
// proximity, and a gambling special case. Rules short-circuit: the first
// match wins and evaluation stops. Evaluation is a pure function of the
// assessment, the category registry, and the configured thresholds.
package compliance

import (
	"time"
)

// Decision is the evaluator's verdict on a wallet.
type Decision string

const (
	DecisionApproved Decision = "Approved"
	DecisionRejected Decision = "Rejected"
)

// ReasonCode identifies which rule produced the verdict.
type ReasonCode string

const (
	ReasonNoRiskScore      ReasonCode = "no_risk_score"
	ReasonAllChecksPassed  ReasonCode = "all_checks_passed"
	ReasonHighRiskScore    ReasonCode = "high_risk_score"
	ReasonHighRiskCategory ReasonCode = "high_risk_category"
	ReasonHighRiskCountry  ReasonCode = "high_risk_country"
	ReasonGamblingHops     ReasonCode = "gambling_within_hop_limit"
	ReasonGamblingVolume   ReasonCode = "gambling_contribution"
)

// Side names which exposure direction a rule hit came from.
type Side string

const (
	SideSource      Side = "Source"
	SideDestination Side = "Destination"
)

// unreachableHops is the sentinel for a contribution that reports no hop
// distance. It exceeds any realistic hop threshold, so the contribution can
// never fall within a hop limit.
const unreachableHops = 999

// Assessment is the typed shape of an upstream wallet-exposure response.
// All fields are optional upstream; absent values carry explicit defaults
// (nil score, sentinel hops, zero percentage).
type Assessment struct {
	RiskScore   *float64   `json:"riskScore,omitempty"`
	Source      []Exposure `json:"source,omitempty"`
	Destination []Exposure `json:"destination,omitempty"`
}

// Exposure is one upstream-reported linkage between the wallet and a risk
// category, carried in the order the upstream API returned it.
type Exposure struct {
	MatchedElements []MatchedElement `json:"matchedElements,omitempty"`
}

// MatchedElement is a single matched category with its contributions.
type MatchedElement struct {
	CategoryID    string         `json:"categoryId"`
	Contributions []Contribution `json:"contributions,omitempty"`
}

// Contribution quantifies one path from the wallet to the matched category.
type Contribution struct {
	MinHops            *int     `json:"minHops,omitempty"`
	IndirectPercentage float64  `json:"indirectPercentage"`
	Countries          []string `json:"countries,omitempty"`
}

// hops returns the contribution's hop distance, or the unreachable sentinel
// when absent.
func (c Contribution) hops() int {
	if c.MinHops == nil {
		return unreachableHops
	}
	return *c.MinHops
}

// RuleHit records one contribution visited during the exposure walk.
type RuleHit struct {
	Category        string  `json:"category"`
	Hops            int     `json:"hops"`
	ContributionPct float64 `json:"contribution"`
}

// TriggeredRules collects hits per exposure side, in visitation order.
type TriggeredRules struct {
	Source      []RuleHit `json:"source"`
	Destination []RuleHit `json:"destination"`
}

// Reason is the structured explanation behind a verdict. Message is the
// human-readable rendering; the typed fields carry the specifics.
type Reason struct {
	Code     ReasonCode `json:"code"`
	Message  string     `json:"message"`
	Category string     `json:"category,omitempty"`
	Country  string     `json:"country,omitempty"`
	Hops     int        `json:"hops,omitempty"`
	Pct      float64    `json:"contribution,omitempty"`
}

// Verdict is the evaluator's final output. Immutable once produced.
type Verdict struct {
	Decision       Decision       `json:"decision"`
	Reason         Reason         `json:"reason"`
	RiskScore      *float64       `json:"riskScore,omitempty"`
	TriggeredRules TriggeredRules `json:"triggeredRules"`
	EvaluatedAt    time.Time      `json:"evaluatedAt"`
}

// Approved reports whether the verdict is an approval.
func (v *Verdict) Approved() bool {
	return v.Decision == DecisionApproved
}

// Thresholds configures the evaluation rules. All values are externally
// supplied; there are no package-level defaults.
type Thresholds struct {
	RiskScoreThreshold            float64
	MaxHopDistance                int
	GamblingHopLimit              int
	GamblingContributionThreshold float64
	HighRiskCountries             map[string]struct{}
}
