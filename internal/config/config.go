package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir      string
	Browser      string
	Channel      string
	Headless     bool
	PollInterval time.Duration
	ErrorBackoff time.Duration
	NavTimeout   time.Duration
	Portal       Portal
}

// Portal holds every URL, selector and label phrase the scraper touches. The
// target site's markup has changed across revisions, so none of these are
// treated as fixed contracts; all of them can be recalibrated from config.toml
// without a rebuild.
type Portal struct {
	LoginURL     string
	OrderListURL string

	EmailLoginButton string
	EmailField       string
	PasswordField    string
	SubmitButton     string
	LoginErrorText   string
	LoginEntryText   string

	OrderTableHook    string
	OrderLinkTemplate string
	HeaderPhrase      string
	NoOrdersText      string

	DetailReadySelector string
	ItemsSectionHook    string
	NotesHook           string

	Labels        Labels
	TotalLabel    string
	RemarksLabel  string
	UtensilsText  string
	AbsentOrderID string
}

type Labels struct {
	OrderID       string
	OrderTime     string
	DeliveryTime  string
	PaymentMethod string
	VisitCount    string
	CustomerName  string
	CustomerPhone string
	ReceiptName   string
	WaitingTime   string
	Address       string
}

type rawConfig struct {
	DataDir      string    `toml:"data_dir"`
	Browser      string    `toml:"browser"`
	Channel      string    `toml:"channel"`
	Headless     *bool     `toml:"headless"`
	PollInterval string    `toml:"poll_interval"`
	ErrorBackoff string    `toml:"error_backoff"`
	NavTimeout   string    `toml:"nav_timeout"`
	Portal       rawPortal `toml:"portal"`
}

type rawPortal struct {
	LoginURL            string            `toml:"login_url"`
	OrderListURL        string            `toml:"order_list_url"`
	EmailLoginButton    string            `toml:"email_login_button"`
	EmailField          string            `toml:"email_field"`
	PasswordField       string            `toml:"password_field"`
	SubmitButton        string            `toml:"submit_button"`
	LoginErrorText      string            `toml:"login_error_text"`
	LoginEntryText      string            `toml:"login_entry_text"`
	OrderTableHook      string            `toml:"order_table_hook"`
	OrderLinkTemplate   string            `toml:"order_link_template"`
	HeaderPhrase        string            `toml:"header_phrase"`
	NoOrdersText        string            `toml:"no_orders_text"`
	DetailReadySelector string            `toml:"detail_ready_selector"`
	ItemsSectionHook    string            `toml:"items_section_hook"`
	NotesHook           string            `toml:"notes_hook"`
	TotalLabel          string            `toml:"total_label"`
	RemarksLabel        string            `toml:"remarks_label"`
	UtensilsText        string            `toml:"utensils_text"`
	AbsentOrderID       string            `toml:"absent_order_id"`
	Labels              map[string]string `toml:"labels"`
}

func Default() Config {
	return Config{
		DataDir:      defaultDataDir(),
		Browser:      "chromium",
		Headless:     true,
		PollInterval: 5 * time.Second,
		ErrorBackoff: 3 * time.Second,
		NavTimeout:   30 * time.Second,
		Portal: Portal{
			LoginURL:     "https://merchant.demae-can.com/login",
			OrderListURL: "https://merchant.demae-can.com/order/list",

			EmailLoginButton: "text=メールアドレスでログイン",
			EmailField:       "input[name=email]",
			PasswordField:    "input[name=password]",
			SubmitButton:     "button[type=submit]",
			LoginErrorText:   "ログインに失敗",
			LoginEntryText:   "メールアドレスでログイン",

			OrderTableHook:    ".order-list table",
			OrderLinkTemplate: `tr:has-text("%s") a`,
			HeaderPhrase:      "注文ID",
			NoOrdersText:      "注文はありません",

			DetailReadySelector: "dl",
			ItemsSectionHook:    ".order-items",
			NotesHook:           ".remarks",

			TotalLabel:    "合計",
			RemarksLabel:  "備考",
			UtensilsText:  "カトラリー希望 / Cutlery requested",
			AbsentOrderID: "なし",

			Labels: Labels{
				OrderID:       "注文ID",
				OrderTime:     "注文日時",
				DeliveryTime:  "配達希望時間",
				PaymentMethod: "支払い方法",
				VisitCount:    "利用回数",
				CustomerName:  "注文者",
				CustomerPhone: "電話番号",
				ReceiptName:   "領収書宛名",
				WaitingTime:   "待ち時間",
				Address:       "住所",
			},
		},
	}
}

func Load(dataDirOverride string) (Config, error) {
	cfg := Default()

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
		break
	}

	if v := strings.TrimSpace(os.Getenv("ORDERWATCH_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("ORDERWATCH_POLL_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if strings.TrimSpace(dataDirOverride) != "" {
		cfg.DataDir = dataDirOverride
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw rawConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return err
	}
	if raw.DataDir != "" {
		cfg.DataDir = raw.DataDir
	}
	if raw.Browser != "" {
		cfg.Browser = raw.Browser
	}
	if raw.Channel != "" {
		cfg.Channel = raw.Channel
	}
	if raw.Headless != nil {
		cfg.Headless = *raw.Headless
	}
	if d, ok := parseDuration(raw.PollInterval); ok {
		cfg.PollInterval = d
	}
	if d, ok := parseDuration(raw.ErrorBackoff); ok {
		cfg.ErrorBackoff = d
	}
	if d, ok := parseDuration(raw.NavTimeout); ok {
		cfg.NavTimeout = d
	}
	applyPortal(&cfg.Portal, raw.Portal)
	return nil
}

func applyPortal(p *Portal, raw rawPortal) {
	setString(&p.LoginURL, raw.LoginURL)
	setString(&p.OrderListURL, raw.OrderListURL)
	setString(&p.EmailLoginButton, raw.EmailLoginButton)
	setString(&p.EmailField, raw.EmailField)
	setString(&p.PasswordField, raw.PasswordField)
	setString(&p.SubmitButton, raw.SubmitButton)
	setString(&p.LoginErrorText, raw.LoginErrorText)
	setString(&p.LoginEntryText, raw.LoginEntryText)
	setString(&p.OrderTableHook, raw.OrderTableHook)
	setString(&p.OrderLinkTemplate, raw.OrderLinkTemplate)
	setString(&p.HeaderPhrase, raw.HeaderPhrase)
	setString(&p.NoOrdersText, raw.NoOrdersText)
	setString(&p.DetailReadySelector, raw.DetailReadySelector)
	setString(&p.ItemsSectionHook, raw.ItemsSectionHook)
	setString(&p.NotesHook, raw.NotesHook)
	setString(&p.TotalLabel, raw.TotalLabel)
	setString(&p.RemarksLabel, raw.RemarksLabel)
	setString(&p.UtensilsText, raw.UtensilsText)
	setString(&p.AbsentOrderID, raw.AbsentOrderID)

	labels := map[string]*string{
		"order_id":       &p.Labels.OrderID,
		"order_time":     &p.Labels.OrderTime,
		"delivery_time":  &p.Labels.DeliveryTime,
		"payment_method": &p.Labels.PaymentMethod,
		"visit_count":    &p.Labels.VisitCount,
		"customer_name":  &p.Labels.CustomerName,
		"customer_phone": &p.Labels.CustomerPhone,
		"receipt_name":   &p.Labels.ReceiptName,
		"waiting_time":   &p.Labels.WaitingTime,
		"address":        &p.Labels.Address,
	}
	for key, dst := range labels {
		if v, ok := raw.Labels[key]; ok && v != "" {
			*dst = v
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseDuration(v string) (time.Duration, bool) {
	if strings.TrimSpace(v) == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func configPaths() []string {
	paths := []string{}
	if v := strings.TrimSpace(os.Getenv("ORDERWATCH_CONFIG")); v != "" {
		paths = append(paths, v)
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "orderwatch", "config.toml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "orderwatch", "config.toml"))
	}
	paths = append(paths,
		"/opt/homebrew/etc/orderwatch/config.toml",
		"/usr/local/etc/orderwatch/config.toml",
	)
	return paths
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/orderwatch"
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "orderwatch")
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "orderwatch")
	}
	return filepath.Join(home, ".local", "share", "orderwatch")
}
