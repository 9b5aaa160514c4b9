package models

// Requests for the reporting HTTP endpoints. Defined in domain for consistency and reuse.

type SignalsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type SignalDetailRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
}

type EventsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Type   string `query:"type" json:"type"`
	// Since accepts RFC3339 or unix seconds; empty means no lower bound.
	Since string `query:"since" json:"since"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
}
