package daemon

import (
	"encoding/json"

	"github.com/patrickjm/orderwatch/internal/portal"
	"github.com/patrickjm/orderwatch/internal/store"
)

type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RespError      `json:"error,omitempty"`
}

type RespError struct {
	Message string `json:"message"`
}

type StartParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type StatusResult struct {
	Monitoring bool   `json:"monitoring"`
	Reason     string `json:"reason,omitempty"`
	Seen       int    `json:"seen"`
	Orders     int    `json:"orders"`
}

type OrdersParams struct {
	Undelivered bool `json:"undelivered,omitempty"`
}

type DeliverParams struct {
	OrderID string `json:"order_id"`
}

type ScrapeParams struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Save     bool   `json:"save,omitempty"`
}

type ScrapeResult struct {
	Orders []portal.Order `json:"orders"`
	Saved  bool           `json:"saved"`
}

type OrdersResult struct {
	Orders []store.Record `json:"orders"`
}
