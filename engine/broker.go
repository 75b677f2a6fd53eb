package engine

// Broker 交易端能力接口
//
// 引擎与执行端（回测模拟器或实盘适配器）之间的唯一契约：
// 行情、账户事实、权限开关，以及四个变更操作。任何实现都必须
// 提供一致的语义——变更失败返回 false/无票号，引擎视为"仍未完成"，
// 留到下一个 tick 或重试轮次再处理，绝不抛出。
type Broker interface {
	// 订单快照（全品种全归属，引擎自行按品种+魔术号过滤）
	GetOrders() []Order

	// 行情与品种精度
	GetBidAsk() (bid, ask float64)
	Digits() int
	Point() float64
	SpreadPoints() float64

	// 账户事实
	AccountLeverage() int
	FreeMargin() float64
	MarginPerLot(symbol string) float64

	// 权限与熔断开关
	IsTradeAllowed() bool
	IsExpertEnabled() bool
	IsStopped() bool

	// 变更操作
	SendPending(orderType OrderType, lots, price float64, comment string) (ticket int64, ok bool)
	ModifyOrder(ticket int64, newPrice float64) bool
	CloseOrder(ticket int64) bool
	DeleteOrder(ticket int64) bool
}
