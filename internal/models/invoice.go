package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceComponents is the JSON snapshot of the three raw aggregate
// components at invoice generation time, stored alongside the mirror columns.
type InvoiceComponents struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Taxes     decimal.Decimal `json:"impuestos"`
	Discounts decimal.Decimal `json:"descuentos"`
}

// Value implements driver.Valuer, serializing the snapshot as JSON.
func (c InvoiceComponents) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *InvoiceComponents) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = InvoiceComponents{}
		return nil
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("cannot scan %T into InvoiceComponents", value)
	}
}

// Invoice (factura) is the at-most-once snapshot generated per order.
type Invoice struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	OrderID    uuid.UUID         `json:"order_id" db:"pedido_id"`
	Subtotal   decimal.Decimal   `json:"subtotal" db:"subtotal"`
	Taxes      decimal.Decimal   `json:"taxes" db:"impuestos"`
	Discounts  decimal.Decimal   `json:"discounts" db:"descuentos"`
	Total      decimal.Decimal   `json:"total" db:"total"`
	Components InvoiceComponents `json:"components" db:"componentes"`
	CreatedAt  time.Time         `json:"created_at" db:"fecha_creacion"`
}

// InvoiceLine is one label/amount row in the shape the PDF renderer expects.
type InvoiceLine struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// InvoiceView is the invoice plus its renderer-ready breakdown lines.
type InvoiceView struct {
	Invoice *Invoice      `json:"invoice"`
	Lines   []InvoiceLine `json:"lines"`
}
