package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/patrickjm/orderwatch/internal/monitor"
	"github.com/patrickjm/orderwatch/internal/store"
)

type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

var reqCounter uint64

func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Call(method string, params any, out any) error {
	id := strconv.FormatUint(atomic.AddUint64(&reqCounter, 1), 10)
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = b
	}
	if err := c.enc.Encode(Request{ID: id, Method: method, Params: raw}); err != nil {
		return err
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return errors.New(resp.Error.Message)
	}
	if out != nil {
		return json.Unmarshal(resp.Result, out)
	}
	return nil
}

func (c *Client) Status() (StatusResult, error) {
	var result StatusResult
	return result, c.Call("Status", nil, &result)
}

func (c *Client) StartMonitoring(email, password string) (monitor.StartResult, error) {
	var result monitor.StartResult
	return result, c.Call("StartMonitoring", StartParams{Email: email, Password: password}, &result)
}

func (c *Client) StopMonitoring() error {
	return c.Call("StopMonitoring", nil, nil)
}

func (c *Client) Orders(undelivered bool) ([]store.Record, error) {
	var result OrdersResult
	if err := c.Call("Orders", OrdersParams{Undelivered: undelivered}, &result); err != nil {
		return nil, err
	}
	return result.Orders, nil
}

func (c *Client) MarkDelivered(orderID string) error {
	return c.Call("MarkDelivered", DeliverParams{OrderID: orderID}, nil)
}

func (c *Client) Scrape(email, password string, save bool) (ScrapeResult, error) {
	var result ScrapeResult
	return result, c.Call("Scrape", ScrapeParams{Email: email, Password: password, Save: save}, &result)
}

func (c *Client) Stop() error {
	return c.Call("Stop", nil, nil)
}
