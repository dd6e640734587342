// Package gateway submits risk-approved orders to a venue and reports their
// lifecycle back as ExecReports. Two implementations exist: Mock, a local
// fill simulator grounded on the reference program's paper-trading broker,
// and Exchange, a REST + user-data-stream client grounded on the reference
// program's HMAC-signed trading client.
package gateway

import "tradingengine/pkg/types"

// Gateway accepts orders for one venue and reports execution lifecycle
// events asynchronously. Submit never blocks on the network; it enqueues the
// order and returns, with ACK/FILLED/REJECTED reports arriving later on
// Reports().
type Gateway interface {
	Name() string
	Submit(order types.Order)
	Reports() <-chan types.ExecReport
}
