package model

import "github.com/shopspring/decimal"

// VendorBehaviorProfile summarizes how a vendor bills, independent of any detection.
type VendorBehaviorProfile struct {
	AmountVolatility    decimal.Decimal `json:"amount_volatility_score"`
	IntervalStability   decimal.Decimal `json:"interval_stability_score"`
	DuplicateDensity    decimal.Decimal `json:"duplicate_density_rate"`
	RecurringDependency decimal.Decimal `json:"recurring_dependency_ratio"`
	Vendor              string          `json:"vendor"`
	Version             string          `json:"behavior_version"`
	TransactionCount    int             `json:"transaction_count"`
}

// VendorRanking is one vendor's position in the composite risk ranking.
type VendorRanking struct {
	RawScore          decimal.Decimal `json:"risk_score"`
	NormalizedScore   decimal.Decimal `json:"normalized_risk_score"`
	RiskPercentile    decimal.Decimal `json:"risk_percentile"`
	TotalFlaggedSpend decimal.Decimal `json:"total_flagged_spend"`
	FlaggedRatio      decimal.Decimal `json:"flagged_ratio"`
	Volatility        decimal.Decimal `json:"volatility"`
	DuplicateDensity  decimal.Decimal `json:"duplicate_density"`
	RecurringRatio    decimal.Decimal `json:"recurring_ratio"`
	Vendor            string          `json:"vendor"`
}
