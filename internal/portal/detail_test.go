package portal

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
)

func portalCfg() config.Portal {
	return config.Default().Portal
}

func TestFindValueByLabelFallsBackToCells(t *testing.T) {
	snap := DetailSnapshot{
		Cells: []LabelValue{{Label: "注文ID", Value: "DM-1001"}},
	}
	f := FindValueByLabel(snap, "注文ID")
	if !f.Found || f.Value != "DM-1001" {
		t.Fatalf("expected DM-1001 from cells, got %+v", f)
	}
}

func TestFindValueByLabelSkipsEmptyMatches(t *testing.T) {
	snap := DetailSnapshot{
		Pairs:    []LabelValue{{Label: "支払い方法", Value: ""}},
		DivPairs: []LabelValue{{Label: "支払い方法", Value: "クレジットカード"}},
	}
	f := FindValueByLabel(snap, "支払い方法")
	if f.Value != "クレジットカード" {
		t.Fatalf("expected later strategy to win over an empty match, got %+v", f)
	}
}

func TestFindValueByLabelScanStripsLabel(t *testing.T) {
	snap := DetailSnapshot{
		Labeled: []LabeledText{
			{Text: "住所", Parent: "住所: 東京都渋谷区1-2-3"},
		},
	}
	f := FindValueByLabel(snap, "住所")
	if f.Value != "東京都渋谷区1-2-3" {
		t.Fatalf("expected stripped parent text, got %q", f.Value)
	}
}

func TestFindValueByLabelMissing(t *testing.T) {
	f := FindValueByLabel(DetailSnapshot{}, "注文ID")
	if f.Found {
		t.Fatalf("expected not found, got %+v", f)
	}
	if f.OrEmpty() != "" {
		t.Fatalf("expected empty value")
	}
}

func TestExtractTotalLastLineWins(t *testing.T) {
	snap := DetailSnapshot{
		ItemLines: []string{
			"唐揚げ弁当 ¥800",
			"小計 ¥800",
			"合計 ¥1,280",
			"合計(税込) ¥1,380",
		},
	}
	if got := ExtractTotal(snap, "合計"); got != 1380 {
		t.Fatalf("expected 1380, got %d", got)
	}
}

func TestExtractTotalLastMatchInLine(t *testing.T) {
	snap := DetailSnapshot{
		ItemLines: []string{"合計 ¥500 (税込 ¥1,500)"},
	}
	if got := ExtractTotal(snap, "合計"); got != 1500 {
		t.Fatalf("expected 1500, got %d", got)
	}
}

func TestExtractTotalFallsBackToBody(t *testing.T) {
	snap := DetailSnapshot{
		Body: "ご注文の詳細\n合計 ￥2,000\nありがとうございました",
	}
	if got := ExtractTotal(snap, "合計"); got != 2000 {
		t.Fatalf("expected 2000 from body, got %d", got)
	}
}

func TestExtractTotalDefaultsToZero(t *testing.T) {
	if got := ExtractTotal(DetailSnapshot{Body: "合計 未定"}, "合計"); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestBuildOrderRejectsMissingID(t *testing.T) {
	cfg := portalCfg()
	if _, ok := BuildOrder(DetailSnapshot{Ready: true}, cfg); ok {
		t.Fatalf("expected rejection without an order id")
	}
	snap := DetailSnapshot{
		Ready: true,
		Pairs: []LabelValue{{Label: "注文ID", Value: "なし"}},
	}
	if _, ok := BuildOrder(snap, cfg); ok {
		t.Fatalf("expected rejection for the absent-id sentinel")
	}
}

func TestBuildOrderFields(t *testing.T) {
	cfg := portalCfg()
	snap := DetailSnapshot{
		Ready: true,
		Pairs: []LabelValue{
			{Label: "注文ID", Value: "DM-2024-0042"},
			{Label: "注文日時", Value: "2024/05/01 12:00"},
			{Label: "注文者", Value: "山田太郎"},
		},
		Cells: []LabelValue{
			{Label: "電話番号", Value: "090-1234-5678"},
			{Label: "支払い方法", Value: "現金"},
		},
		ItemLines: []string{"唐揚げ弁当 ¥800", " ", "緑茶 ¥150", "合計 ¥950"},
		NotesText: "備考: ネギ抜きでお願いします",
	}
	order, ok := BuildOrder(snap, cfg)
	if !ok {
		t.Fatalf("expected order to build")
	}
	if order.OrderID != "DM-2024-0042" {
		t.Fatalf("order id: %q", order.OrderID)
	}
	if order.OrderTime != "2024/05/01 12:00" {
		t.Fatalf("order time: %q", order.OrderTime)
	}
	if order.CustomerName != "山田太郎" || order.CustomerPhone != "090-1234-5678" {
		t.Fatalf("customer: %q %q", order.CustomerName, order.CustomerPhone)
	}
	if order.PaymentMethod != "現金" {
		t.Fatalf("payment: %q", order.PaymentMethod)
	}
	if order.Items != "唐揚げ弁当 ¥800\n緑茶 ¥150\n合計 ¥950" {
		t.Fatalf("items: %q", order.Items)
	}
	if order.Notes != "ネギ抜きでお願いします" {
		t.Fatalf("notes: %q", order.Notes)
	}
	if order.TotalAmount != 950 {
		t.Fatalf("total: %d", order.TotalAmount)
	}
}

func TestTagUtensilsAppendsOnce(t *testing.T) {
	cfg := portalCfg()
	snap := DetailSnapshot{
		Ready: true,
		Pairs: []LabelValue{{Label: "注文ID", Value: "DM-7"}},
		ItemLines: []string{
			"カツ丼 ¥900",
		},
		Body: "カツ丼 ¥900 カトラリー希望 / Cutlery requested",
	}
	order, ok := BuildOrder(snap, cfg)
	if !ok {
		t.Fatalf("expected order to build")
	}
	if n := strings.Count(order.Items, cfg.UtensilsText); n != 1 {
		t.Fatalf("expected utensils phrase once, got %d in %q", n, order.Items)
	}

	// already part of the listed items, must not be duplicated
	snap.ItemLines = append(snap.ItemLines, cfg.UtensilsText)
	order, _ = BuildOrder(snap, cfg)
	if n := strings.Count(order.Items, cfg.UtensilsText); n != 1 {
		t.Fatalf("expected utensils phrase once, got %d in %q", n, order.Items)
	}
}

func TestExtractNotesScanFallback(t *testing.T) {
	snap := DetailSnapshot{
		Labeled: []LabeledText{
			{Text: "備考", Parent: "備考： ドアの前に置いてください"},
		},
	}
	if got := extractNotes(snap, "備考"); got != "ドアの前に置いてください" {
		t.Fatalf("notes: %q", got)
	}
}

func TestExtractOrderDetail(t *testing.T) {
	cfg := portalCfg()
	snap := DetailSnapshot{
		Ready:     true,
		Pairs:     []LabelValue{{Label: "注文ID", Value: "DM-9"}},
		ItemLines: []string{"合計 ¥600"},
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	page := &browser.FakePage{EvalResult: raw}
	order, ok, err := ExtractOrderDetail(page, cfg, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !ok || order.OrderID != "DM-9" || order.TotalAmount != 600 {
		t.Fatalf("unexpected order: ok=%t %+v", ok, order)
	}
	if len(page.Waits) == 0 || page.Waits[0] != cfg.DetailReadySelector {
		t.Fatalf("expected wait on %q, got %v", cfg.DetailReadySelector, page.Waits)
	}
}
