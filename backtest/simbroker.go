package backtest

import (
	"math"
	"math/rand"
	"time"

	"gridquant/engine"
)

const contractSize = 100000.0

// ClosedTrade 平仓落袋的一笔交易（回测流水）
type ClosedTrade struct {
	Ticket     int64
	Side       string
	Tag        string
	Lots       float64
	OpenPrice  float64
	ClosePrice float64
	OpenTime   int64
	CloseTime  int64
	Profit     float64
}

// SimBroker 离线撮合模拟器
// 动态点差 + 随手数/波动放大的滑点，逐K线驱动。实现 engine.Broker。
type SimBroker struct {
	symbol   string
	balance  float64
	equity   float64
	leverage int

	digits int
	point  float64

	orders     []engine.Order
	nextTicket int64

	currentBar   *Bar
	hasBar       bool
	bid, ask     float64
	spreadPoints float64

	ClosedPnLs      []float64
	ClosedTrades    []ClosedTrade
	EquityCurve     []float64
	BalanceCurve    []float64
	EquityTimes     []int64
	spreadPipsCurve []float64

	rand *rand.Rand
}

// NewSimBroker 创建模拟撮合器
func NewSimBroker(symbol string, initialBalance float64, leverage int, seed int64) *SimBroker {
	return &SimBroker{
		symbol:     symbol,
		balance:    initialBalance,
		equity:     initialBalance,
		leverage:   leverage,
		digits:     5,
		point:      0.00001,
		nextTicket: 0,
		rand:       rand.New(rand.NewSource(seed)),
	}
}

// ---- engine.Broker 实现 ----

func (b *SimBroker) GetOrders() []engine.Order {
	out := make([]engine.Order, len(b.orders))
	copy(out, b.orders)
	return out
}

func (b *SimBroker) GetBidAsk() (float64, float64) { return b.bid, b.ask }
func (b *SimBroker) Digits() int                   { return b.digits }
func (b *SimBroker) Point() float64                { return b.point }
func (b *SimBroker) SpreadPoints() float64         { return b.spreadPoints }
func (b *SimBroker) AccountLeverage() int          { return b.leverage }

func (b *SimBroker) FreeMargin() float64 {
	return b.equity - b.usedMargin()
}

func (b *SimBroker) MarginPerLot(symbol string) float64 {
	if symbol != b.symbol {
		return 0
	}
	return contractSize / float64(b.leverage)
}

func (b *SimBroker) IsTradeAllowed() bool  { return true }
func (b *SimBroker) IsExpertEnabled() bool { return true }
func (b *SimBroker) IsStopped() bool       { return false }

func (b *SimBroker) SendPending(orderType engine.OrderType, lots, price float64, comment string) (int64, bool) {
	b.nextTicket++
	var openTime int64
	if b.hasBar {
		openTime = b.currentBar.Ts
	}
	b.orders = append(b.orders, engine.Order{
		Ticket:    b.nextTicket,
		Symbol:    b.symbol,
		Magic:     9453,
		Type:      orderType,
		Lots:      lots,
		OpenPrice: b.round(price),
		Comment:   comment,
		OpenTime:  openTime,
	})
	return b.nextTicket, true
}

func (b *SimBroker) ModifyOrder(ticket int64, newPrice float64) bool {
	o := b.findOrder(ticket)
	if o == nil || !o.Type.IsPending() {
		return false
	}
	o.OpenPrice = b.round(newPrice)
	return true
}

func (b *SimBroker) CloseOrder(ticket int64) bool {
	o := b.findOrder(ticket)
	if o == nil {
		return false
	}
	if o.Type.IsPending() {
		return b.DeleteOrder(ticket)
	}

	// 市价平仓，滑点不利于交易者
	var closePx, pnl float64
	if o.Type == engine.Buy {
		closePx = b.applySlippage(b.bid, o.Lots, false)
		pnl = pnlBuy(o.Lots, o.OpenPrice, closePx)
	} else {
		closePx = b.applySlippage(b.ask, o.Lots, true)
		pnl = pnlSell(o.Lots, o.OpenPrice, closePx)
	}

	b.balance += pnl
	b.ClosedPnLs = append(b.ClosedPnLs, pnl)

	var closeTime int64
	if b.hasBar {
		closeTime = b.currentBar.Ts
	}
	b.ClosedTrades = append(b.ClosedTrades, ClosedTrade{
		Ticket:     o.Ticket,
		Side:       sideName(o.Type),
		Tag:        o.Comment,
		Lots:       o.Lots,
		OpenPrice:  o.OpenPrice,
		ClosePrice: closePx,
		OpenTime:   o.OpenTime,
		CloseTime:  closeTime,
		Profit:     pnl,
	})

	b.removeOrder(ticket)
	b.markToMarket()
	return true
}

func (b *SimBroker) DeleteOrder(ticket int64) bool {
	n0 := len(b.orders)
	b.removeOrder(ticket)
	return len(b.orders) != n0
}

// ---- 回测驱动接口 ----

// OnBar 推进到下一根K线并更新盘口
func (b *SimBroker) OnBar(bar Bar) {
	b.currentBar = &bar
	b.hasBar = true

	spreadPips := b.dynamicSpreadPips(bar)
	b.spreadPoints = spreadPips * 10.0

	halfSpread := (b.spreadPoints * b.point) / 2.0
	mid := bar.Close
	b.bid = b.round(mid - halfSpread)
	b.ask = b.round(mid + halfSpread)
	b.spreadPipsCurve = append(b.spreadPipsCurve, spreadPips)
}

// TriggerPendingFromBar 用当前K线高低价触发突破挂单
// 成交基准价取 max(开盘价, 触发价)（买）/ min（卖），再叠加滑点。
func (b *SimBroker) TriggerPendingFromBar() {
	if !b.hasBar {
		return
	}
	bar := *b.currentBar

	for i := range b.orders {
		o := &b.orders[i]
		switch {
		case o.Type == engine.BuyStop && bar.High >= o.OpenPrice:
			baseFill := math.Max(bar.Open, o.OpenPrice)
			o.Type = engine.Buy
			o.OpenPrice = b.round(b.applySlippage(baseFill, o.Lots, true))
			o.OpenTime = bar.Ts
		case o.Type == engine.SellStop && bar.Low <= o.OpenPrice:
			baseFill := math.Min(bar.Open, o.OpenPrice)
			o.Type = engine.Sell
			o.OpenPrice = b.round(b.applySlippage(baseFill, o.Lots, false))
			o.OpenTime = bar.Ts
		}
	}
	b.markToMarket()
}

// Snapshot 记录权益曲线采样点
func (b *SimBroker) Snapshot() {
	b.markToMarket()
	b.EquityCurve = append(b.EquityCurve, b.equity)
	b.BalanceCurve = append(b.BalanceCurve, b.balance)
	if b.hasBar {
		b.EquityTimes = append(b.EquityTimes, b.currentBar.Ts)
	} else {
		b.EquityTimes = append(b.EquityTimes, time.Now().Unix())
	}
}

func (b *SimBroker) Balance() float64 { return b.balance }
func (b *SimBroker) Equity() float64  { return b.equity }

// AvgSpreadPips 回测期间的平均点差
func (b *SimBroker) AvgSpreadPips() float64 {
	if len(b.spreadPipsCurve) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range b.spreadPipsCurve {
		sum += v
	}
	return sum / float64(len(b.spreadPipsCurve))
}

// ---- 内部 ----

func (b *SimBroker) round(v float64) float64 {
	p := math.Pow(10, float64(b.digits))
	return math.Round(v*p) / p
}

func (b *SimBroker) findOrder(ticket int64) *engine.Order {
	for i := range b.orders {
		if b.orders[i].Ticket == ticket {
			return &b.orders[i]
		}
	}
	return nil
}

func (b *SimBroker) removeOrder(ticket int64) {
	for i := range b.orders {
		if b.orders[i].Ticket == ticket {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return
		}
	}
}

func (b *SimBroker) usedMargin() float64 {
	used := 0.0
	for _, o := range b.orders {
		if o.Type == engine.Buy || o.Type == engine.Sell {
			used += o.Lots * b.MarginPerLot(b.symbol)
		}
	}
	return used
}

func (b *SimBroker) markToMarket() {
	floating := 0.0
	for i := range b.orders {
		o := &b.orders[i]
		switch o.Type {
		case engine.Buy:
			o.Profit = pnlBuy(o.Lots, o.OpenPrice, b.bid)
		case engine.Sell:
			o.Profit = pnlSell(o.Lots, o.OpenPrice, b.ask)
		default:
			o.Profit = 0
		}
		floating += o.TotalProfit()
	}
	b.equity = b.balance + floating
}

// dynamicSpreadPips 点差模型：基础 + 波动 + 时段 + 微观结构噪声
func (b *SimBroker) dynamicSpreadPips(bar Bar) float64 {
	base := 0.55
	rangePips := math.Max((bar.High-bar.Low)/0.0001, 0)
	volPart := math.Min(1.6, 0.018*rangePips)

	hour := time.Unix(bar.Ts, 0).UTC().Hour()
	var session float64
	switch {
	case hour >= 21 || hour <= 1:
		session = 0.45
	case hour >= 6 && hour <= 15:
		session = 0.0
	default:
		session = 0.15
	}

	noise := -0.08 + b.rand.Float64()*0.20
	return math.Min(3.0, math.Max(0.25, base+volPart+session+noise))
}

// applySlippage 滑点模型：up=true 价格向上恶化（买方向）
func (b *SimBroker) applySlippage(price, lots float64, up bool) float64 {
	if !b.hasBar {
		return price
	}
	rangePips := math.Max((b.currentBar.High-b.currentBar.Low)/0.0001, 0)
	volComponent := math.Min(1.2, 0.012*rangePips)
	sizeComponent := math.Min(0.6, math.Max(0, lots-0.05)*0.18)
	noise := math.Abs(b.rand.NormFloat64() * 0.10)
	slipPips := math.Min(2.5, 0.08+volComponent+sizeComponent+noise)
	slip := slipPips * 0.0001

	if up {
		return b.round(price + slip)
	}
	return b.round(price - slip)
}

func pnlBuy(lots, openPrice, closeBid float64) float64 {
	if closeBid <= 0 {
		return 0
	}
	units := contractSize * lots
	return units * (closeBid - openPrice) / closeBid
}

func pnlSell(lots, openPrice, closeAsk float64) float64 {
	if closeAsk <= 0 {
		return 0
	}
	units := contractSize * lots
	return units * (openPrice - closeAsk) / closeAsk
}

func sideName(t engine.OrderType) string {
	if t == engine.Buy || t == engine.BuyStop {
		return "buy"
	}
	return "sell"
}
