package portal

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/patrickjm/orderwatch/internal/browser"
)

func listPage(t *testing.T, snap ListSnapshot) *browser.FakePage {
	t.Helper()
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	return &browser.FakePage{EvalResult: raw}
}

func TestRowsFromSnapshotScopedWins(t *testing.T) {
	cfg := portalCfg()
	snap := ListSnapshot{
		Scoped: [][]string{
			{"注文ID", "注文日時", "ステータス"},
			{"DM-1", "2024/05/01 12:00", "新規"},
		},
		Scanned: [][]string{
			{"DM-9", "2024/05/01 09:00", "調理中"},
		},
	}
	rows := RowsFromSnapshot(snap, cfg)
	if len(rows) != 1 || rows[0].OrderID != "DM-1" {
		t.Fatalf("expected scoped row DM-1, got %+v", rows)
	}
	if rows[0].OrderTime != "2024/05/01 12:00" || rows[0].Status != "新規" {
		t.Fatalf("unexpected row fields: %+v", rows[0])
	}
}

func TestRowsFromSnapshotFallsBack(t *testing.T) {
	cfg := portalCfg()
	snap := ListSnapshot{
		Scanned: [][]string{
			{"注文ID", "注文日時", "ステータス"},
			{"DM-2", "2024/05/01 13:00", "新規"},
		},
	}
	rows := RowsFromSnapshot(snap, cfg)
	if len(rows) != 1 || rows[0].OrderID != "DM-2" {
		t.Fatalf("expected scanned fallback, got %+v", rows)
	}

	snap = ListSnapshot{
		Grid: [][]string{{"DM-3", "2024/05/01 14:00", "調理中"}},
	}
	rows = RowsFromSnapshot(snap, cfg)
	if len(rows) != 1 || rows[0].OrderID != "DM-3" {
		t.Fatalf("expected grid fallback, got %+v", rows)
	}
}

func TestRowsFromCellsSkipsBadRows(t *testing.T) {
	rows := rowsFromCells([][]string{
		{"注文ID", "注文日時", "ステータス"},
		{"DM-4", "2024/05/01 15:00"},
		{"", "2024/05/01 15:00", "新規"},
		{"DM-5", "2024/05/01 16:00", "新規"},
	}, "注文ID")
	if len(rows) != 1 || rows[0].OrderID != "DM-5" {
		t.Fatalf("expected only DM-5, got %+v", rows)
	}
	if rows[0].RowIndex != 3 {
		t.Fatalf("expected document row index 3, got %d", rows[0].RowIndex)
	}
}

func TestReadOrderListRows(t *testing.T) {
	cfg := portalCfg()
	page := listPage(t, ListSnapshot{
		Scoped: [][]string{{"DM-6", "2024/05/01 17:00", "新規"}},
	})
	rows, err := ReadOrderList(page, cfg, time.Second)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if len(rows) != 1 || rows[0].OrderID != "DM-6" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestReadOrderListEmpty(t *testing.T) {
	cfg := portalCfg()
	page := listPage(t, ListSnapshot{NoOrders: true})
	rows, err := ReadOrderList(page, cfg, time.Second)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if rows != nil {
		t.Fatalf("expected nil rows for an explicitly empty list, got %+v", rows)
	}
}

func TestReadOrderListTimeout(t *testing.T) {
	cfg := portalCfg()
	page := listPage(t, ListSnapshot{})
	_, err := ReadOrderList(page, cfg, 10*time.Millisecond)
	if !errors.Is(err, ErrNoOrders) {
		t.Fatalf("expected ErrNoOrders, got %v", err)
	}
}
