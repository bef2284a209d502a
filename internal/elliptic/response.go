package elliptic

import (
	"github.com/walletscreen/walletscreen/internal/compliance"
)

// Wire types mirror the upstream response shape. Every field is optional
// upstream; decoding tolerates absence everywhere.

type walletExposureResponse struct {
	RiskScore        *float64         `json:"risk_score"`
	EvaluationDetail evaluationDetail `json:"evaluation_detail"`
	BlockchainInfo   blockchainInfo   `json:"blockchain_info"`
}

type evaluationDetail struct {
	Source      []wireExposure `json:"source"`
	Destination []wireExposure `json:"destination"`
}

type wireExposure struct {
	MatchedElements []wireMatchedElement `json:"matched_elements"`
}

type wireMatchedElement struct {
	CategoryID    string             `json:"category_id"`
	Contributions []wireContribution `json:"contributions"`
}

type wireContribution struct {
	MinNumberOfHops    *int         `json:"min_number_of_hops"`
	IndirectPercentage float64      `json:"indirect_percentage"`
	RiskTriggers       riskTriggers `json:"risk_triggers"`
}

type riskTriggers struct {
	Country []string `json:"country"`
}

type blockchainInfo struct {
	Cluster clusterInfo `json:"cluster"`
}

type clusterInfo struct {
	InflowValue  usdValue `json:"inflow_value"`
	OutflowValue usdValue `json:"outflow_value"`
}

type usdValue struct {
	USD float64 `json:"usd"`
}

func (r *walletExposureResponse) toAnalysis() *Analysis {
	inflow := r.BlockchainInfo.Cluster.InflowValue.USD
	outflow := r.BlockchainInfo.Cluster.OutflowValue.USD
	return &Analysis{
		Assessment: &compliance.Assessment{
			RiskScore:   r.RiskScore,
			Source:      toExposures(r.EvaluationDetail.Source),
			Destination: toExposures(r.EvaluationDetail.Destination),
		},
		Financial: FinancialSummary{
			InflowUSD:  inflow,
			OutflowUSD: outflow,
			BalanceUSD: inflow - outflow,
		},
	}
}

func toExposures(wire []wireExposure) []compliance.Exposure {
	if len(wire) == 0 {
		return nil
	}
	out := make([]compliance.Exposure, 0, len(wire))
	for _, e := range wire {
		var elems []compliance.MatchedElement
		for _, m := range e.MatchedElements {
			elem := compliance.MatchedElement{CategoryID: m.CategoryID}
			for _, c := range m.Contributions {
				elem.Contributions = append(elem.Contributions, compliance.Contribution{
					MinHops:            c.MinNumberOfHops,
					IndirectPercentage: c.IndirectPercentage,
					Countries:          c.RiskTriggers.Country,
				})
			}
			elems = append(elems, elem)
		}
		out = append(out, compliance.Exposure{MatchedElements: elems})
	}
	return out
}
