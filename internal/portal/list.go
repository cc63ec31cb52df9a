package portal

import (
	"errors"
	"strings"
	"time"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
)

// ErrNoOrders means the bounded wait saw neither order rows nor the portal's
// empty-list marker. Callers decide whether that is a retry or an empty list.
var ErrNoOrders = errors.New("no orders or list timeout")

type ListRow struct {
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	OrderTime string `json:"orderTime"`
	RowIndex  int    `json:"rowIndex"`
}

const listPollStep = 250 * time.Millisecond

// ReadOrderList waits for either a populated order table or the no-orders
// marker, then returns visible rows in document order. An explicitly empty
// list is (nil, nil); a wait that resolves neither way is ErrNoOrders.
func ReadOrderList(page browser.Page, cfg config.Portal, timeout time.Duration) ([]ListRow, error) {
	deadline := time.Now().Add(timeout)
	for {
		snap, err := captureListSnapshot(page, cfg)
		if err != nil {
			return nil, err
		}
		rows := RowsFromSnapshot(snap, cfg)
		if len(rows) > 0 {
			return rows, nil
		}
		if snap.NoOrders {
			return nil, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrNoOrders
		}
		time.Sleep(listPollStep)
	}
}

// RowsFromSnapshot applies the table-location strategies in priority order:
// the known structural hook, then any table containing the header phrase,
// then a role=grid. First strategy that yields rows wins. Header rows are
// dropped by matching the header phrase in the first cell.
func RowsFromSnapshot(snap ListSnapshot, cfg config.Portal) []ListRow {
	for _, rowSet := range [][][]string{snap.Scoped, snap.Scanned, snap.Grid} {
		rows := rowsFromCells(rowSet, cfg.HeaderPhrase)
		if len(rows) > 0 {
			return rows
		}
	}
	return nil
}

func rowsFromCells(rowSet [][]string, headerPhrase string) []ListRow {
	rows := make([]ListRow, 0, len(rowSet))
	for i, cells := range rowSet {
		if len(cells) < 3 {
			continue
		}
		id := strings.TrimSpace(cells[0])
		if id == "" {
			continue
		}
		if headerPhrase != "" && strings.Contains(id, headerPhrase) {
			continue
		}
		rows = append(rows, ListRow{
			OrderID:   id,
			OrderTime: strings.TrimSpace(cells[1]),
			Status:    strings.TrimSpace(cells[2]),
			RowIndex:  i,
		})
	}
	return rows
}
