package models

// CandlesRequest is the query for the aligned read endpoint.
type CandlesRequest struct {
	Symbols []string `query:"symbols" json:"symbols" validate:"required,min=1,dive,min=1"`
	TF      string   `query:"tf" json:"tf" default:"5m" validate:"oneof=5m 15m 1h 4h 1d"`
	From    string   `query:"from" json:"from" validate:"required"`
	To      string   `query:"to" json:"to" validate:"required"`
}

// CoordinateRequest triggers a full multi-timeframe processing run.
type CoordinateRequest struct {
	Symbols        []string `json:"symbols" validate:"required,min=1,dive,min=1"`
	DaysBack       int      `json:"days_back" default:"30" validate:"gt=0,lte=730"`
	UseAggregation *bool    `json:"use_aggregation,omitempty"`
}

// InvalidateRequest drops every cache entry for one timeframe.
type InvalidateRequest struct {
	TF string `json:"tf" validate:"required,oneof=5m 15m 1h 4h 1d"`
}
