package lighter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/lightbot/golighter/internal/domain"
	"github.com/lightbot/golighter/internal/ports"
	"github.com/lightbot/golighter/pkg/ratelimit"
)

var gatewayLog = logrus.WithField("component", "lighter_gateway")

// Gateway Lighter 交易所的 REST 网关
// 实现 ports.ExchangeGateway；所有请求经过本地限流器，错误按类别归一化
type Gateway struct {
	client       *resty.Client
	limiter      *ratelimit.Manager
	accountIndex int
}

// Config 网关配置
type Config struct {
	BaseURL      string
	APIKey       string
	APISecret    string
	AccountIndex int
	Timeout      time.Duration
}

// NewGateway 创建 Lighter 网关
func NewGateway(cfg Config) *Gateway {
	host := strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// resty 会自动从环境变量读取代理配置
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", cfg.APIKey).
		SetRetryCount(0) // 重试策略由上层控制，网关本身不重试

	return &Gateway{
		client:       client,
		limiter:      ratelimit.NewManager(),
		accountIndex: cfg.AccountIndex,
	}
}

// classifyError 将 HTTP 响应归一化为错误分类
func classifyError(resp *resty.Response, err error) error {
	if err != nil {
		// 超时由调用方通过 IsOutcomeUnknown 识别，这里原样返回
		if resp == nil || ports.IsOutcomeUnknown(err) {
			return err
		}
		return &ports.TransientError{Cause: err}
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Wrapf(ports.ErrAuth, "HTTP %d", resp.StatusCode())
	case http.StatusTooManyRequests:
		retryAfter := 10 * time.Second
		if h := resp.Header().Get("Retry-After"); h != "" {
			if secs, perr := strconv.Atoi(h); perr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &ports.RateLimitError{RetryAfter: retryAfter}
	}
	if resp.StatusCode() >= 500 {
		return &ports.TransientError{Cause: fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String())}
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// checkAPIError 检查响应体内的业务错误码
func checkAPIError(e apiError) error {
	if e.Code != 0 && e.Code != 200 {
		return fmt.Errorf("API 错误 %d: %s", e.Code, e.Message)
	}
	return nil
}

// PlaceLimitOrder 挂限价单
func (g *Gateway) PlaceLimitOrder(ctx context.Context, inst domain.Instrument, side domain.Side, price, qty decimal.Decimal, clientOrderID string) (string, error) {
	if err := inst.ValidateOrder(price, qty); err != nil {
		return "", &ports.ValidationError{Reason: err.Error()}
	}
	if err := g.limiter.Wait(ctx, "order:create"); err != nil {
		return "", err
	}

	req := createOrderRequest{
		MarketIndex:   inst.MarketID,
		ClientOrderID: clientOrderID,
		IsAsk:         side == domain.SideSell,
		Price:         price.String(),
		BaseAmount:    qty.String(),
		OrderType:     "limit",
		TimeInForce:   "good_till_time",
	}

	var out createOrderResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/sendTx")
	if cerr := classifyError(resp, err); cerr != nil {
		return "", errors.Wrap(cerr, "下单请求失败")
	}
	if aerr := checkAPIError(out.apiError); aerr != nil {
		return "", aerr
	}

	gatewayLog.Debugf("✅ 限价单已提交 %s %s @ %s x %s (client=%s exchange=%s)",
		inst.Symbol, side, price, qty, clientOrderID, out.OrderIndex)
	return out.OrderIndex, nil
}

// PlaceMarketOrder 下市价单（手动平仓用）
func (g *Gateway) PlaceMarketOrder(ctx context.Context, inst domain.Instrument, side domain.Side, qty decimal.Decimal, clientOrderID string) (string, error) {
	if !qty.IsPositive() {
		return "", &ports.ValidationError{Reason: "数量必须为正"}
	}
	if err := g.limiter.Wait(ctx, "order:create"); err != nil {
		return "", err
	}

	req := createOrderRequest{
		MarketIndex:   inst.MarketID,
		ClientOrderID: clientOrderID,
		IsAsk:         side == domain.SideSell,
		BaseAmount:    inst.RoundQuantity(qty).String(),
		OrderType:     "market",
		TimeInForce:   "immediate_or_cancel",
		ReduceOnly:    true,
	}

	var out createOrderResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/v1/sendTx")
	if cerr := classifyError(resp, err); cerr != nil {
		return "", errors.Wrap(cerr, "市价单请求失败")
	}
	if aerr := checkAPIError(out.apiError); aerr != nil {
		return "", aerr
	}

	gatewayLog.Infof("💰 市价单已提交 %s %s x %s", inst.Symbol, side, qty)
	return out.OrderIndex, nil
}

// CancelOrder 撤销单个订单
func (g *Gateway) CancelOrder(ctx context.Context, inst domain.Instrument, exchangeID string) error {
	if err := g.limiter.Wait(ctx, "order:cancel"); err != nil {
		return err
	}

	var out genericResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(cancelOrderRequest{MarketIndex: inst.MarketID, OrderIndex: exchangeID}).
		SetResult(&out).
		Post("/api/v1/cancelOrder")
	if cerr := classifyError(resp, err); cerr != nil {
		return errors.Wrapf(cerr, "撤单请求失败 %s", exchangeID)
	}
	return checkAPIError(out.apiError)
}

// CancelAllOrders 批量撤销该标的全部挂单
func (g *Gateway) CancelAllOrders(ctx context.Context, inst domain.Instrument) error {
	if err := g.limiter.Wait(ctx, "order:cancel_all"); err != nil {
		return err
	}

	var out genericResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(cancelAllRequest{MarketIndex: inst.MarketID}).
		SetResult(&out).
		Post("/api/v1/cancelAllOrders")
	if cerr := classifyError(resp, err); cerr != nil {
		return errors.Wrap(cerr, "批量撤单请求失败")
	}
	return checkAPIError(out.apiError)
}

// OpenOrders 查询交易所视角的活跃订单
func (g *Gateway) OpenOrders(ctx context.Context, inst domain.Instrument) ([]domain.Order, error) {
	if err := g.limiter.Wait(ctx, "account:orders"); err != nil {
		return nil, err
	}

	var out activeOrdersResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"account_index": strconv.Itoa(g.accountIndex),
			"market_index":  strconv.Itoa(inst.MarketID),
		}).
		SetResult(&out).
		Get("/api/v1/accountActiveOrders")
	if cerr := classifyError(resp, err); cerr != nil {
		return nil, errors.Wrap(cerr, "查询活跃订单失败")
	}
	if aerr := checkAPIError(out.apiError); aerr != nil {
		return nil, aerr
	}

	orders := make([]domain.Order, 0, len(out.Orders))
	for _, o := range out.Orders {
		ord, perr := parseAPIOrder(o, inst.Symbol)
		if perr != nil {
			gatewayLog.Warnf("⚠️ 忽略无法解析的订单 %s: %v", o.OrderIndex, perr)
			continue
		}
		orders = append(orders, ord)
	}
	return orders, nil
}

// parseAPIOrder 将 API 订单转换为领域订单
func parseAPIOrder(o apiOrder, symbol string) (domain.Order, error) {
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("价格解析失败: %w", err)
	}
	initial, err := decimal.NewFromString(o.InitialBase)
	if err != nil {
		return domain.Order{}, fmt.Errorf("数量解析失败: %w", err)
	}
	filled := decimal.Zero
	if o.FilledBase != "" {
		if filled, err = decimal.NewFromString(o.FilledBase); err != nil {
			return domain.Order{}, fmt.Errorf("成交量解析失败: %w", err)
		}
	}

	side := domain.SideBuy
	if o.IsAsk {
		side = domain.SideSell
	}

	status, ok := parseOrderStatus(o.Status, filled)
	if !ok {
		return domain.Order{}, fmt.Errorf("未知订单状态 %q", o.Status)
	}
	createdAt := time.UnixMilli(o.CreatedAt)

	return domain.Order{
		ClientID:       o.ClientOrderID,
		ExchangeID:     o.OrderIndex,
		Symbol:         symbol,
		Side:           side,
		Price:          price,
		Quantity:       initial,
		FilledQuantity: filled,
		Status:         status,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}

// parseOrderStatus 归一化交易所订单状态，未知状态返回 false 由调用方丢弃
func parseOrderStatus(s string, filled decimal.Decimal) (domain.OrderStatus, bool) {
	switch strings.ToLower(s) {
	case "open", "pending", "in-progress":
		if filled.IsPositive() {
			return domain.OrderStatusPartial, true
		}
		return domain.OrderStatusOpen, true
	case "filled":
		return domain.OrderStatusFilled, true
	case "canceled", "cancelled":
		return domain.OrderStatusCanceled, true
	case "expired":
		return domain.OrderStatusExpired, true
	}
	return "", false
}

// Positions 查询交易所视角的持仓
func (g *Gateway) Positions(ctx context.Context) ([]domain.Position, error) {
	if err := g.limiter.Wait(ctx, "account:positions"); err != nil {
		return nil, err
	}

	var out accountResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("by", "index").
		SetQueryParam("value", strconv.Itoa(g.accountIndex)).
		SetResult(&out).
		Get("/api/v1/account")
	if cerr := classifyError(resp, err); cerr != nil {
		return nil, errors.Wrap(cerr, "查询持仓失败")
	}
	if aerr := checkAPIError(out.apiError); aerr != nil {
		return nil, aerr
	}

	var positions []domain.Position
	for _, acct := range out.Accounts {
		for _, p := range acct.Positions {
			qty, perr := decimal.NewFromString(p.Position)
			if perr != nil {
				gatewayLog.Warnf("⚠️ 忽略无法解析的持仓 %s: %v", p.Symbol, perr)
				continue
			}
			if qty.IsZero() {
				continue
			}
			if p.Sign < 0 {
				qty = qty.Neg()
			}
			avg, _ := decimal.NewFromString(p.AvgEntry)
			positions = append(positions, domain.Position{
				Symbol:        p.Symbol,
				Quantity:      qty,
				AvgEntryPrice: avg,
				UpdatedAt:     time.Now(),
			})
		}
	}
	return positions, nil
}

// InstrumentMeta 拉取标的的市场约束
// 接口不可用或标的缺失时返回错误，调用方可退回保守默认值
func (g *Gateway) InstrumentMeta(ctx context.Context, symbol string) (domain.Instrument, error) {
	if err := g.limiter.Wait(ctx, "market:meta"); err != nil {
		return domain.Instrument{}, err
	}

	var out orderBooksResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/v1/orderBooks")
	if cerr := classifyError(resp, err); cerr != nil {
		return domain.Instrument{}, errors.Wrap(cerr, "查询市场元数据失败")
	}
	if aerr := checkAPIError(out.apiError); aerr != nil {
		return domain.Instrument{}, aerr
	}

	for _, m := range out.OrderBooks {
		if !strings.EqualFold(m.Symbol, symbol) {
			continue
		}
		tick, terr := decimal.NewFromString(m.PriceTick)
		lot, lerr := decimal.NewFromString(m.AmountTick)
		minNotional, nerr := decimal.NewFromString(m.MinQuoteAmount)
		if terr != nil || lerr != nil || nerr != nil {
			return domain.Instrument{}, fmt.Errorf("市场元数据解析失败 %s", symbol)
		}
		return domain.Instrument{
			Symbol:      symbol,
			MarketID:    m.MarketIndex,
			TickSize:    tick,
			LotSize:     lot,
			MinNotional: minNotional,
		}, nil
	}
	return domain.Instrument{}, fmt.Errorf("未找到标的 %s 的市场元数据", symbol)
}

// SetLeverage 设置杠杆
func (g *Gateway) SetLeverage(ctx context.Context, inst domain.Instrument, leverage int) error {
	if leverage <= 0 {
		return &ports.ValidationError{Reason: "杠杆必须大于 0"}
	}
	if err := g.limiter.Wait(ctx, "account:leverage"); err != nil {
		return err
	}

	var out genericResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(updateLeverageRequest{MarketIndex: inst.MarketID, Leverage: leverage}).
		SetResult(&out).
		Post("/api/v1/updateLeverage")
	if cerr := classifyError(resp, err); cerr != nil {
		return errors.Wrap(cerr, "设置杠杆失败")
	}
	return checkAPIError(out.apiError)
}
