package model

import "time"

// Outlier classifications
const (
	ReasonHighOutlier = "high-outlier"
	ReasonLowOutlier  = "low-outlier"
)

// AnomalyFinding is one transaction whose amount deviates from its merchant's mean
type AnomalyFinding struct {
	TransactionID  string    `json:"transaction_id"`
	EntityID       string    `json:"entity_id"`
	DeviationScore float64   `json:"deviation_score"` // |z|
	Amount         float64   `json:"amount"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// DistributionProfile summarizes the amounts of an analyzed merchant
type DistributionProfile struct {
	EntityID string  `json:"entity_id"`
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Q25      float64 `json:"q25"`
	Median   float64 `json:"median"`
	Q75      float64 `json:"q75"`
	Max      float64 `json:"max"`
	Ratio    float64 `json:"ratio"` // median / mean over the fetched records

	// Tukey fences at 1.5 IQR around the quartiles
	IQRLower        float64 `json:"iqr_lower"`
	IQRUpper        float64 `json:"iqr_upper"`
	IQROutlierCount int     `json:"iqr_outlier_count"`
	// amounts above twice Q75
	LargeCount int `json:"large_count"`
}

// SkipRecord notes an entity that was deliberately left out of a stage
type SkipRecord struct {
	Stage    string `json:"stage"`
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}
