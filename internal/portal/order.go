package portal

import "strings"

// Order is the unit of extraction. Every field is best-effort: a value the
// extractor could not locate is an empty string (or 0 for TotalAmount), never
// a failure of the whole order. OrderID is the sole identity.
type Order struct {
	OrderID       string `json:"orderId"`
	OrderTime     string `json:"orderTime"`
	Status        string `json:"status"`
	DeliveryTime  string `json:"deliveryTime"`
	PaymentMethod string `json:"paymentMethod"`
	VisitCount    string `json:"visitCount"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	ReceiptName   string `json:"receiptName"`
	WaitingTime   string `json:"waitingTime"`
	Address       string `json:"address"`
	Items         string `json:"items"`
	Notes         string `json:"notes"`
	TotalAmount   int    `json:"totalAmount"`
}

// Field distinguishes "present but blank" from "not found" while extraction
// strategies run. It collapses to a plain string at the Order boundary.
type Field struct {
	Value string
	Found bool
}

func fieldOf(value string) Field {
	return Field{Value: strings.TrimSpace(value), Found: true}
}

func (f Field) OrEmpty() string {
	if !f.Found {
		return ""
	}
	return f.Value
}

type Credentials struct {
	Email    string
	Password string
}
