package query

// Strategy is the execution strategy chosen by the planner.
type Strategy string

// Strategies in planner priority order.
const (
	StrategyLast        Strategy = "LAST"
	StrategyAggregated  Strategy = "AGGREGATED"
	StrategyRaw         Strategy = "RAW"
	StrategyDownsampled Strategy = "DOWNSAMPLED"
)

// Plan is the planner's decision for one request. It is built once and not
// modified afterwards.
type Plan struct {
	Strategy          Strategy `json:"strategy"`
	EstimatedPoints   int64    `json:"estimated_points"`
	NeedsDownsampling bool     `json:"needs_downsampling"`
	Window            string   `json:"window,omitempty"`
	Query             string   `json:"query"`
	// Request is the possibly rewritten request the query was rendered from.
	Request Request `json:"-"`
}

// Adjusted reports whether the plan departs from the caller's literal
// parameters.
func (p Plan) Adjusted() bool {
	return p.NeedsDownsampling
}
