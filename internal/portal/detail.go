package portal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
)

const detailPollStep = 250 * time.Millisecond

// ExtractOrderDetail waits for the detail document to signal readiness (the
// definition-list structure visible and the order-ID label in the DOM), then
// builds an Order from one batched snapshot. ok is false when the order ID
// cannot be resolved; the caller skips such rows.
func ExtractOrderDetail(page browser.Page, cfg config.Portal, timeout time.Duration) (Order, bool, error) {
	if err := page.WaitForSelector(cfg.DetailReadySelector, int(timeout.Milliseconds())); err != nil {
		return Order{}, false, err
	}
	deadline := time.Now().Add(timeout)
	var snap DetailSnapshot
	for {
		var err error
		snap, err = captureDetailSnapshot(page, cfg)
		if err != nil {
			return Order{}, false, err
		}
		if snap.Ready || time.Now().After(deadline) {
			break
		}
		time.Sleep(detailPollStep)
	}
	order, ok := BuildOrder(snap, cfg)
	return order, ok, nil
}

// BuildOrder assembles an Order from a detail snapshot. Field extraction is
// best-effort throughout; only an unresolved or sentinel order ID rejects the
// whole order.
func BuildOrder(snap DetailSnapshot, cfg config.Portal) (Order, bool) {
	id := FindValueByLabel(snap, cfg.Labels.OrderID)
	if !id.Found || id.Value == "" || id.Value == cfg.AbsentOrderID {
		return Order{}, false
	}

	items := strings.Join(compactLines(snap.ItemLines), "\n")
	items = tagUtensils(items, snap, cfg.UtensilsText)

	return Order{
		OrderID:       id.Value,
		OrderTime:     FindValueByLabel(snap, cfg.Labels.OrderTime).OrEmpty(),
		DeliveryTime:  FindValueByLabel(snap, cfg.Labels.DeliveryTime).OrEmpty(),
		PaymentMethod: FindValueByLabel(snap, cfg.Labels.PaymentMethod).OrEmpty(),
		VisitCount:    FindValueByLabel(snap, cfg.Labels.VisitCount).OrEmpty(),
		CustomerName:  FindValueByLabel(snap, cfg.Labels.CustomerName).OrEmpty(),
		CustomerPhone: FindValueByLabel(snap, cfg.Labels.CustomerPhone).OrEmpty(),
		ReceiptName:   FindValueByLabel(snap, cfg.Labels.ReceiptName).OrEmpty(),
		WaitingTime:   FindValueByLabel(snap, cfg.Labels.WaitingTime).OrEmpty(),
		Address:       FindValueByLabel(snap, cfg.Labels.Address).OrEmpty(),
		Items:         items,
		Notes:         extractNotes(snap, cfg.RemarksLabel),
		TotalAmount:   ExtractTotal(snap, cfg.TotalLabel),
	}, true
}

type labelStrategy func(DetailSnapshot, string) Field

// Ordered fallback chain. The portal renders the same semantic field through
// different structures depending on revision and order state, so each lookup
// tries them all until one yields a non-empty value.
var labelStrategies = []labelStrategy{
	labelFromPairs,
	labelFromCells,
	labelFromDivPairs,
	labelFromScan,
}

func FindValueByLabel(snap DetailSnapshot, label string) Field {
	if label == "" {
		return Field{}
	}
	for _, strategy := range labelStrategies {
		f := strategy(snap, label)
		if f.Found && f.Value != "" {
			return f
		}
	}
	return Field{}
}

func labelFromPairs(snap DetailSnapshot, label string) Field {
	return fromLabelValues(snap.Pairs, label)
}

func labelFromCells(snap DetailSnapshot, label string) Field {
	return fromLabelValues(snap.Cells, label)
}

func labelFromDivPairs(snap DetailSnapshot, label string) Field {
	return fromLabelValues(snap.DivPairs, label)
}

func labelFromScan(snap DetailSnapshot, label string) Field {
	for _, lt := range snap.Labeled {
		if strings.Contains(lt.Text, label) {
			return fieldOf(stripLabel(lt.Parent, label))
		}
	}
	return Field{}
}

func fromLabelValues(pairs []LabelValue, label string) Field {
	for _, p := range pairs {
		if strings.Contains(p.Label, label) {
			return fieldOf(p.Value)
		}
	}
	return Field{}
}

func stripLabel(text, label string) string {
	stripped := strings.Replace(text, label, "", 1)
	return strings.Trim(stripped, ":： \t\n")
}

var yenPattern = regexp.MustCompile(`[¥￥]\s*([0-9][0-9,]*)`)

// ExtractTotal scans the items section from the end so the final total line
// (the tax-inclusive grand total) wins over intermediate ones. Falls back to
// the items table, then the whole body. 0 when nothing matches.
func ExtractTotal(snap DetailSnapshot, totalLabel string) int {
	if n, ok := totalFromLines(snap.ItemLines, totalLabel); ok {
		return n
	}
	if n, ok := totalFromLines(strings.Split(snap.ItemsTable, "\n"), totalLabel); ok {
		return n
	}
	if n, ok := totalFromLines(strings.Split(snap.Body, "\n"), totalLabel); ok {
		return n
	}
	return 0
}

func totalFromLines(lines []string, label string) (int, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if label != "" && !strings.Contains(lines[i], label) {
			continue
		}
		matches := yenPattern.FindAllStringSubmatch(lines[i], -1)
		if len(matches) == 0 {
			continue
		}
		digits := strings.ReplaceAll(matches[len(matches)-1][1], ",", "")
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// tagUtensils appends the utensils-request phrase to the items text when the
// detail page carries it anywhere, so downstream consumers can detect it with
// the same substring check without re-scanning the DOM.
func tagUtensils(items string, snap DetailSnapshot, phrase string) string {
	if phrase == "" || strings.Contains(items, phrase) {
		return items
	}
	if !strings.Contains(snap.ItemsTable, phrase) && !strings.Contains(snap.Body, phrase) {
		return items
	}
	if items == "" {
		return phrase
	}
	return items + "\n" + phrase
}

func extractNotes(snap DetailSnapshot, label string) string {
	if v := strings.TrimSpace(snap.NotesText); v != "" {
		return stripLabel(v, label)
	}
	return labelFromScan(snap, label).OrEmpty()
}

func compactLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if v := strings.TrimSpace(line); v != "" {
			out = append(out, v)
		}
	}
	return out
}
