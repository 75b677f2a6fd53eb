package engine

// OrderType 订单类型（沿用 MT4 的数值编码）
type OrderType int

const (
	Buy      OrderType = 0 // 买入持仓
	Sell     OrderType = 1 // 卖出持仓
	BuyStop  OrderType = 4 // 买入挂单（突破）
	SellStop OrderType = 5 // 卖出挂单（突破）
)

// String 返回订单类型的字符串表示
func (t OrderType) String() string {
	switch t {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case BuyStop:
		return "BUYSTOP"
	case SellStop:
		return "SELLSTOP"
	default:
		return "UNKNOWN"
	}
}

// IsPending 是否为挂单
func (t OrderType) IsPending() bool {
	return t == BuyStop || t == SellStop
}

// Order 订单快照
// 订单归交易端所有，引擎每个 tick 重新拉取，绝不跨 tick 缓存；
// 引擎也从不直接改写字段，所有变更都通过 Broker 接口完成。
type Order struct {
	Ticket     int64     // 唯一票号（交易端内单调递增）
	Symbol     string    // 品种
	Magic      int       // 归属标识（魔术号）
	Type       OrderType // 订单类型
	Lots       float64   // 手数
	OpenPrice  float64   // 开仓价/挂单价
	Profit     float64   // 浮动盈亏
	Swap       float64   // 库存费
	Commission float64   // 手续费
	Comment    string    // 注释（引擎只使用 "SS" 和 "NN" 两个哨兵值）
	OpenTime   int64     // 开仓时间（Unix秒）
}

// TotalProfit 含库存费和手续费的总盈亏
func (o *Order) TotalProfit() float64 {
	return o.Profit + o.Swap + o.Commission
}

// Side 平仓方向
type Side int

const (
	SideBoth Side = 0  // 双边
	SideBuy  Side = 1  // 仅买方
	SideSell Side = -1 // 仅卖方
)

// String 返回方向的字符串表示
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "both"
	}
}

// OpenMode 开单节奏模式
type OpenMode int

const (
	OpenBar    OpenMode = 1 // 每根K线最多评估一次开单
	OpenSleep  OpenMode = 2 // 距上一同向成交单至少间隔 sleep_seconds
	OpenAlways OpenMode = 3 // 每个 tick 都评估
)

// ParseOpenMode 解析开单模式串（未知值回落到 always）
func ParseOpenMode(s string) OpenMode {
	switch s {
	case "bar":
		return OpenBar
	case "sleep":
		return OpenSleep
	default:
		return OpenAlways
	}
}

// State 引擎跨 tick 状态
// 随引擎创建，全部清零；两个峰值在失衡部分平仓触发时一并归零。
type State struct {
	PauseUntil   int64   // 暂停开单截止时间（Unix秒）
	LastBarTime  int64   // bar 模式的去重键（上次评估开单的K线时间）
	PeakBuyDiff  float64 // 买方优势度峰值
	PeakSellDiff float64 // 卖方优势度峰值
}
