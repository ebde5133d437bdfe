package yahoo

// optionsResponse is the v7 options endpoint payload
type optionsResponse struct {
	OptionChain struct {
		Result []optionsResult `json:"result"`
		Error  *apiError       `json:"error"`
	} `json:"optionChain"`
}

type optionsResult struct {
	UnderlyingSymbol string         `json:"underlyingSymbol"`
	ExpirationDates  []int64        `json:"expirationDates"`
	Quote            quote          `json:"quote"`
	Options          []optionBucket `json:"options"`
}

type quote struct {
	Symbol             string   `json:"symbol"`
	RegularMarketPrice *float64 `json:"regularMarketPrice"`
}

type optionBucket struct {
	ExpirationDate int64       `json:"expirationDate"`
	Calls          []optionRow `json:"calls"`
	Puts           []optionRow `json:"puts"`
}

type optionRow struct {
	ContractSymbol    string   `json:"contractSymbol"`
	Strike            *float64 `json:"strike"`
	ImpliedVolatility *float64 `json:"impliedVolatility"`
}

// chartResponse is the v8 chart endpoint payload
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *apiError) Error() string {
	return e.Code + ": " + e.Description
}

// Unwrap maps Yahoo's "Not Found" payload error onto ErrNotFound
func (e *apiError) Unwrap() error {
	if e.Code == "Not Found" {
		return ErrNotFound
	}
	return nil
}
