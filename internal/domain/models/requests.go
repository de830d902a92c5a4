package models

// Query and body shapes of the analytics HTTP endpoints. The "ticker" tag is
// registered by the HTTP layer.

type ReturnsRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required,ticker"`
	From   string `query:"from" json:"from" validate:"omitempty,datetime=2006-01-02"`
	To     string `query:"to" json:"to" validate:"omitempty,datetime=2006-01-02"`
}

type MovingAverageRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required,ticker"`
	Window int    `query:"window" json:"window" default:"20" validate:"gte=2,lte=250"`
	Limit  int    `query:"limit" json:"limit" default:"250" validate:"gte=1,lte=10000"`
}

// CrossSectionRequest takes a comma separated ticker list; empty means the configured set.
type CrossSectionRequest struct {
	Tickers string `query:"tickers" json:"tickers" validate:"omitempty,max=110"`
}

type FeaturesRequest struct {
	Ticker string `query:"ticker" json:"ticker" validate:"required,ticker"`
	Limit  int    `query:"limit" json:"limit" default:"250" validate:"gte=1,lte=10000"`
}

// LinRegRequest: an empty seed uses the configured one.
type LinRegRequest struct {
	Ticker string `query:"ticker" json:"ticker" default:"JPM" validate:"required,ticker"`
	Seed   string `query:"seed" json:"seed" validate:"omitempty,number"`
}

type RefreshRequest struct {
	Tickers []string `json:"tickers" validate:"omitempty,max=10,dive,required,ticker"`
}
