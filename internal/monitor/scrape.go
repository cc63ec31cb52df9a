package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
	"github.com/patrickjm/orderwatch/internal/portal"
)

// Scrape is the one-shot variant: a fresh short-lived browser session that
// logs in, reads the current list once, extracts every order and returns
// them. No seen set, no loop. Independent scrapes may run in parallel since
// each owns its own browser.
func Scrape(engine browser.Engine, cfg config.Config, creds portal.Credentials, log *slog.Logger) ([]portal.Order, error) {
	if log == nil {
		log = slog.Default()
	}
	sess, err := engine.Start(browser.StartOptions{
		Browser:   cfg.Browser,
		Channel:   cfg.Channel,
		Headless:  cfg.Headless,
		StorageIn: storagePath(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer sess.Close()

	page, err := sess.NewPage()
	if err != nil {
		return nil, err
	}
	_ = page.SetTimeout(int(cfg.NavTimeout.Milliseconds()))

	ctrl := portal.Controller{Page: page, Cfg: cfg.Portal, TimeoutMs: int(cfg.NavTimeout.Milliseconds())}
	if err := ctrl.Login(creds); err != nil {
		return nil, err
	}

	if err := retry(navAttempts, navBackoff, time.Sleep, func() error {
		return page.Goto(cfg.Portal.OrderListURL)
	}); err != nil {
		return nil, err
	}
	rows, err := portal.ReadOrderList(page, cfg.Portal, cfg.NavTimeout)
	if err != nil {
		if errors.Is(err, portal.ErrNoOrders) {
			return nil, nil
		}
		return nil, err
	}

	orders := make([]portal.Order, 0, len(rows))
	for _, row := range rows {
		if err := page.Click(fmt.Sprintf(cfg.Portal.OrderLinkTemplate, row.OrderID)); err != nil {
			log.Warn("open order", "order", row.OrderID, "err", err)
			_ = page.Goto(cfg.Portal.OrderListURL)
			continue
		}
		order, ok, err := portal.ExtractOrderDetail(page, cfg.Portal, cfg.NavTimeout)
		if err != nil || !ok {
			log.Warn("extract order", "order", row.OrderID, "err", err)
			_ = page.Goto(cfg.Portal.OrderListURL)
			continue
		}
		if order.Status == "" {
			order.Status = row.Status
		}
		if order.OrderTime == "" {
			order.OrderTime = row.OrderTime
		}
		orders = append(orders, order)
		_ = page.Goto(cfg.Portal.OrderListURL)
	}
	return orders, nil
}
