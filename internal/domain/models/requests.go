package models

// Requests for the engine HTTP endpoints. Defined in domain for consistency
// and reuse.

type ForecastRequest struct {
	Node    string `query:"node" json:"node" default:"price_move"`
	Horizon int    `query:"horizon" json:"horizon" default:"1" validate:"gte=0,lte=500"`
	Metric  string `query:"metric" json:"metric" default:"margin" validate:"oneof=margin entropy"`
}

type PredictionsRequest struct {
	Node string `query:"node" json:"node" default:"price_move"`
	N    int    `query:"n" json:"n" default:"100" validate:"gte=1,lte=5000"`
}

type DiagnosticsRequest struct {
	N int `query:"n" json:"n" default:"50" validate:"gte=1,lte=1000"`
}

type ReplayRequest struct {
	Path    string  `json:"path" validate:"required"`
	Decay   float64 `json:"decay" default:"1.0" validate:"gt=0,lte=1"`
	Horizon int     `json:"horizon" default:"1" validate:"gte=0,lte=500"`
}
