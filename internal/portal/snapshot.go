package portal

import (
	"encoding/json"

	"github.com/patrickjm/orderwatch/internal/browser"
	"github.com/patrickjm/orderwatch/internal/config"
)

// Snapshots are structural dumps of a loaded document, captured in one batched
// in-page round-trip. The cascading extraction heuristics run Go-side over the
// snapshot so each fallback strategy stays testable against fixtures instead
// of a live page.

type LabelValue struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type LabeledText struct {
	Text   string `json:"text"`
	Parent string `json:"parent"`
}

type ListSnapshot struct {
	Scoped   [][]string `json:"scoped"`
	Scanned  [][]string `json:"scanned"`
	Grid     [][]string `json:"grid"`
	NoOrders bool       `json:"noOrders"`
}

type DetailSnapshot struct {
	Ready      bool          `json:"ready"`
	Pairs      []LabelValue  `json:"pairs"`
	Cells      []LabelValue  `json:"cells"`
	DivPairs   []LabelValue  `json:"divPairs"`
	Labeled    []LabeledText `json:"labeled"`
	ItemLines  []string      `json:"itemLines"`
	ItemsTable string        `json:"itemsTable"`
	NotesText  string        `json:"notesText"`
	Body       string        `json:"body"`
}

const listSnapshotJS = `(opts) => {
  const text = (el) => el ? (el.innerText || "").trim() : "";
  const rowsOf = (root) => {
    if (!root) return [];
    return Array.from(root.querySelectorAll("tr"))
      .map(tr => Array.from(tr.querySelectorAll("th,td")).map(text))
      .filter(cells => cells.length > 0);
  };
  const scoped = rowsOf(document.querySelector(opts.hook));
  let scanned = [];
  for (const t of Array.from(document.querySelectorAll("table"))) {
    if ((t.innerText || "").includes(opts.headerPhrase)) {
      scanned = rowsOf(t);
      break;
    }
  }
  let grid = [];
  const g = document.querySelector("[role=grid]");
  if (g) {
    grid = Array.from(g.querySelectorAll("[role=row]"))
      .map(r => Array.from(r.querySelectorAll("[role=gridcell],[role=cell],[role=columnheader]")).map(text))
      .filter(cells => cells.length > 0);
  }
  const noOrders = opts.noOrdersText !== "" && (document.body.innerText || "").includes(opts.noOrdersText);
  return { scoped, scanned, grid, noOrders };
}`

const detailSnapshotJS = `(opts) => {
  const text = (el) => el ? (el.innerText || "").trim() : "";
  const pairs = [];
  document.querySelectorAll("dl dt").forEach(dt => {
    let dd = dt.nextElementSibling;
    while (dd && dd.tagName !== "DD") dd = dd.nextElementSibling;
    if (dd) pairs.push({ label: text(dt), value: text(dd) });
  });
  const cells = [];
  document.querySelectorAll("table tr").forEach(tr => {
    const cs = Array.from(tr.querySelectorAll("th,td"));
    for (let i = 0; i + 1 < cs.length; i++) {
      cells.push({ label: text(cs[i]), value: text(cs[i + 1]) });
    }
  });
  const divPairs = [];
  document.querySelectorAll("[class*=label]").forEach(el => {
    const sib = el.nextElementSibling;
    if (sib) divPairs.push({ label: text(el), value: text(sib) });
  });
  const labeled = [];
  document.querySelectorAll("dt,th,td,div,span,p,li").forEach(el => {
    if (el.children.length > 0) return;
    const t = text(el);
    if (!t) return;
    labeled.push({ text: t, parent: text(el.parentElement) });
  });
  const itemsRoot = document.querySelector(opts.itemsHook);
  const itemLines = itemsRoot ? Array.from(itemsRoot.children).map(text).filter(t => t) : [];
  let itemsTable = "";
  for (const t of Array.from(document.querySelectorAll("table"))) {
    const cls = typeof t.className === "string" ? t.className : "";
    if (cls.includes("item") || (opts.totalLabel !== "" && (t.innerText || "").includes(opts.totalLabel))) {
      itemsTable = text(t);
      break;
    }
  }
  const notesText = text(document.querySelector(opts.notesHook));
  const body = text(document.body);
  const ready = opts.orderIdLabel !== "" && body.includes(opts.orderIdLabel);
  return { ready, pairs, cells, divPairs, labeled, itemLines, itemsTable, notesText, body };
}`

// scriptWithArgs inlines the options as a JSON literal so the whole capture
// stays a single Eval round-trip.
func scriptWithArgs(fn string, args any) string {
	b, _ := json.Marshal(args)
	return "(" + fn + ")(" + string(b) + ")"
}

func captureListSnapshot(page browser.Page, cfg config.Portal) (ListSnapshot, error) {
	raw, err := page.Eval(scriptWithArgs(listSnapshotJS, map[string]any{
		"hook":         cfg.OrderTableHook,
		"headerPhrase": cfg.HeaderPhrase,
		"noOrdersText": cfg.NoOrdersText,
	}))
	if err != nil {
		return ListSnapshot{}, err
	}
	var snap ListSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return ListSnapshot{}, err
	}
	return snap, nil
}

func captureDetailSnapshot(page browser.Page, cfg config.Portal) (DetailSnapshot, error) {
	raw, err := page.Eval(scriptWithArgs(detailSnapshotJS, map[string]any{
		"orderIdLabel": cfg.Labels.OrderID,
		"itemsHook":    cfg.ItemsSectionHook,
		"notesHook":    cfg.NotesHook,
		"totalLabel":   cfg.TotalLabel,
	}))
	if err != nil {
		return DetailSnapshot{}, err
	}
	var snap DetailSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return DetailSnapshot{}, err
	}
	return snap, nil
}
