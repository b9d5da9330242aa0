package domain

// ActionUpsert is the action code the backend interprets as insert-or-update.
const ActionUpsert = "1"

// SellListing is the wire record the remote inventory store accepts.
// Field names follow the backend's JSON schema.
type SellListing struct {
	Channel           string         `json:"channel"`
	Market            string         `json:"market"`
	ChannelItemID     string         `json:"channelItemId"`
	Title             string         `json:"title"`
	SellPriceOriginal float64        `json:"sellPriceOriginal"`
	CurrencyOriginal  string         `json:"currencyOriginal"`
	SellPriceUSD      float64        `json:"sellPriceUsd"`
	FxRateToUSD       float64        `json:"fxRateToUsd"`
	FxAsOfDate        string         `json:"fxAsOfDate"`
	FulfillmentType   *string        `json:"fulfillmentType"`
	ShippingTimeDays  *int           `json:"shippingTimeDays"`
	Rating            *float64       `json:"rating"`
	ReviewsCount      *int           `json:"reviewsCount"`
	ListingTimestamp  string         `json:"listingTimestamp"`
	UnifiedProductID  *int64         `json:"unifiedProductId"`
	Action            string         `json:"action"`
	Attributes        map[string]any `json:"attributes,omitempty"`
}

// ExportOutcome is the structured result of one export invocation.
// Not persisted by the core; persistence is the remote store's job.
type ExportOutcome struct {
	OK            bool           `json:"ok"`
	RunID         string         `json:"run_id"`
	AsOf          string         `json:"as_of"`
	ExistingCount int            `json:"existing_count"`
	NewCount      int            `json:"new_count"`
	SkippedCount  int            `json:"skipped_count"`
	SkipReasons   map[string]int `json:"skip_reasons,omitempty"`
}
