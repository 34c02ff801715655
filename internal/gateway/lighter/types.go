package lighter

// Lighter REST API 的请求/响应结构
// 字段按官方接口命名，数值统一用字符串传输避免精度丢失

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type createOrderRequest struct {
	MarketIndex   int    `json:"market_index"`
	ClientOrderID string `json:"client_order_index"`
	IsAsk         bool   `json:"is_ask"`
	Price         string `json:"price"`
	BaseAmount    string `json:"base_amount"`
	OrderType     string `json:"order_type"` // limit / market
	TimeInForce   string `json:"time_in_force"`
	ReduceOnly    bool   `json:"reduce_only"`
}

type createOrderResponse struct {
	apiError
	OrderIndex string `json:"order_index"`
	TxHash     string `json:"tx_hash"`
}

type cancelOrderRequest struct {
	MarketIndex int    `json:"market_index"`
	OrderIndex  string `json:"order_index"`
}

type cancelAllRequest struct {
	MarketIndex int `json:"market_index"`
}

type genericResponse struct {
	apiError
}

type apiOrder struct {
	OrderIndex    string `json:"order_index"`
	ClientOrderID string `json:"client_order_index"`
	MarketIndex   int    `json:"market_index"`
	IsAsk         bool   `json:"is_ask"`
	Price         string `json:"price"`
	InitialBase   string `json:"initial_base_amount"`
	RemainingBase string `json:"remaining_base_amount"`
	FilledBase    string `json:"filled_base_amount"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"created_at"` // 毫秒时间戳
}

type activeOrdersResponse struct {
	apiError
	Orders []apiOrder `json:"orders"`
}

type apiPosition struct {
	MarketIndex int    `json:"market_index"`
	Symbol      string `json:"symbol"`
	Sign        int    `json:"sign"` // 1 多头 / -1 空头
	Position    string `json:"position"`
	AvgEntry    string `json:"avg_entry_price"`
}

type accountResponse struct {
	apiError
	Accounts []struct {
		AccountIndex int           `json:"account_index"`
		Positions    []apiPosition `json:"positions"`
	} `json:"accounts"`
}

type apiMarket struct {
	MarketIndex       int    `json:"market_index"`
	Symbol            string `json:"symbol"`
	PriceTick         string `json:"price_tick"`
	AmountTick        string `json:"amount_tick"`
	MinQuoteAmount    string `json:"min_quote_amount"`
	SupportedPriceDec int    `json:"supported_price_decimals"`
}

type orderBooksResponse struct {
	apiError
	OrderBooks []apiMarket `json:"order_books"`
}

type updateLeverageRequest struct {
	MarketIndex int `json:"market_index"`
	Leverage    int `json:"leverage"`
}
