package inter

// PricePoint is one immutable price observation. Points are appended to the
// price oracle's history and never mutated; exports read the slice as-is.
type PricePoint struct {
	Time      SimTime `json:"time"`
	Fork      Fork    `json:"fork"`
	Value     float64 `json:"value"`
	Sustained bool    `json:"sustained"`

	// The factor weights that produced the value, kept for audit.
	ChainWeight    float64 `json:"chain_weight"`
	EconomicWeight float64 `json:"economic_weight"`
	HashrateWeight float64 `json:"hashrate_weight"`
}

// FeePoint is one immutable fee observation, split into the organic rate and
// whatever manipulation premium was active when it was taken.
type FeePoint struct {
	Time SimTime `json:"time"`
	Fork Fork    `json:"fork"`

	OrganicRate   float64 `json:"organic_rate"`    // sats/vB
	Premium       float64 `json:"premium"`         // sats/vB from manipulation
	EffectiveRate float64 `json:"effective_rate"`  // organic + premium
	BlocksPerHour float64 `json:"blocks_per_hour"` // production rate input
	ActivityPct   float64 `json:"activity_pct"`    // economic or transactional pct used
}
