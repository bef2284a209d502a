package compliance

import (
	"fmt"
	"math"
	"time"
)

// CategoryResolver is the slice of the category registry the evaluator
// needs: name lookup plus the high-risk identifier set.
type CategoryResolver interface {
	NameOf(id string) string
	IsHighRisk(id string) bool
}

// gamblingCategory is matched by literal name; the category table maps many
// ids onto it.
const gamblingCategory = "Gambling"

// gamblingVolumeHops is the exact hop distance at which the contribution
// volume clause applies. Kept as a literal 3 rather than derived from the
// configured hop limits: the observed rule does not generalize, and
// generalizing it silently would change decisions on replayed assessments.
const gamblingVolumeHops = 3

// Evaluator applies the compliance rules. It holds no mutable state and is
// safe for concurrent use.
type Evaluator struct {
	categories CategoryResolver
	thresholds Thresholds
}

// NewEvaluator creates an evaluator over the given category resolver and
// thresholds.
func NewEvaluator(categories CategoryResolver, thresholds Thresholds) *Evaluator {
	return &Evaluator{categories: categories, thresholds: thresholds}
}

// Evaluate walks the assessment and returns a verdict. It is a total
// function: well-typed input always produces a verdict, never an error.
//
// Rules run in strict priority order with first-match-wins semantics:
//
//  1. Missing risk score: approve immediately.
//  2. Risk score at or above threshold: reject before any exposure walk.
//  3. Exposure walk, source list then destination list, elements and
//     contributions in given order. Every visited contribution is recorded
//     as a rule hit before its rejection conditions are tested, so the
//     triggered-rules map reflects everything visited up to and including
//     the triggering contribution.
//     3a. high-risk category within MaxHopDistance
//     3b. high-risk country within MaxHopDistance (country codes in order)
//     3c. gambling within GamblingHopLimit, or at exactly 3 hops with
//     contribution strictly above GamblingContributionThreshold
//  4. Walk completes: approve with the fully populated hit list.
func (e *Evaluator) Evaluate(a *Assessment) *Verdict {
	v := &Verdict{
		Decision: DecisionApproved,
		TriggeredRules: TriggeredRules{
			Source:      []RuleHit{},
			Destination: []RuleHit{},
		},
		EvaluatedAt: time.Now(),
	}

	if a == nil || a.RiskScore == nil {
		v.Reason = Reason{
			Code:    ReasonNoRiskScore,
			Message: "No risk score found",
		}
		return v
	}

	score := *a.RiskScore
	v.RiskScore = a.RiskScore

	if score >= e.thresholds.RiskScoreThreshold {
		v.Decision = DecisionRejected
		v.Reason = Reason{
			Code:    ReasonHighRiskScore,
			Message: fmt.Sprintf("High Risk Score (%g)", score),
		}
		return v
	}

	sides := []struct {
		side      Side
		exposures []Exposure
	}{
		{SideSource, a.Source},
		{SideDestination, a.Destination},
	}

	for _, s := range sides {
		for _, exposure := range s.exposures {
			for _, element := range exposure.MatchedElements {
				name := e.categories.NameOf(element.CategoryID)

				for _, contribution := range element.Contributions {
					hops := contribution.hops()
					pct := contribution.IndirectPercentage

					// Hit logging is unconditional: the hit is recorded even
					// when this contribution triggers the rejection below.
					hit := RuleHit{
						Category:        name,
						Hops:            hops,
						ContributionPct: round2(pct),
					}
					switch s.side {
					case SideSource:
						v.TriggeredRules.Source = append(v.TriggeredRules.Source, hit)
					case SideDestination:
						v.TriggeredRules.Destination = append(v.TriggeredRules.Destination, hit)
					}

					// 3a: high-risk category within the hop limit.
					if e.categories.IsHighRisk(element.CategoryID) && hops <= e.thresholds.MaxHopDistance {
						v.Decision = DecisionRejected
						v.Reason = Reason{
							Code:     ReasonHighRiskCategory,
							Message:  fmt.Sprintf("%s detected within %d hops", name, hops),
							Category: name,
							Hops:     hops,
						}
						return v
					}

					// 3b: high-risk country within the hop limit.
					for _, code := range contribution.Countries {
						if _, bad := e.thresholds.HighRiskCountries[code]; bad && hops <= e.thresholds.MaxHopDistance {
							v.Decision = DecisionRejected
							v.Reason = Reason{
								Code:    ReasonHighRiskCountry,
								Message: fmt.Sprintf("High-risk country %s detected within %d hops", code, hops),
								Country: code,
								Hops:    hops,
							}
							return v
						}
					}

					// 3c: gambling special case, matched by literal name.
					if name == gamblingCategory {
						if hops <= e.thresholds.GamblingHopLimit {
							v.Decision = DecisionRejected
							v.Reason = Reason{
								Code:     ReasonGamblingHops,
								Message:  fmt.Sprintf("Gambling found at %d hops", hops),
								Category: name,
								Hops:     hops,
							}
							return v
						}
						if hops == gamblingVolumeHops && pct > e.thresholds.GamblingContributionThreshold {
							v.Decision = DecisionRejected
							v.Reason = Reason{
								Code:     ReasonGamblingVolume,
								Message:  fmt.Sprintf("Gambling at 3 hops with %.2f%% contribution", pct),
								Category: name,
								Hops:     hops,
								Pct:      pct,
							}
							return v
						}
					}
				}
			}
		}
	}

	v.Reason = Reason{
		Code:    ReasonAllChecksPassed,
		Message: "All compliance checks passed",
	}
	return v
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
