// Package ledger derives a balanced double-entry journal from a normalized
// expense. Account resolution goes through static lookup tables with
// mandatory fallback entries, so a lookup never fails.
package ledger

import (
	"strings"

	"github.com/contaflow/expense-engine/internal/domain/expense"
)

// Account identifies one account in the chart.
type Account struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Chart holds the lookup tables used by the derivation engine: category to
// expense account, tax type to input/withholding account, and payment source
// to credit account. Every table has a fallback entry.
type Chart struct {
	Categories   map[string]Account
	TaxInputs    map[expense.TaxType]Account
	Withholdings map[expense.TaxType]Account
	Payments     map[expense.PaymentSource]Account

	GeneralExpenses     Account
	TaxInputFallback    Account
	WithholdingFallback Account
	Payable             Account
	Bank                Account
}

// DefaultChart returns a chart modeled on a Mexican SMB account catalog.
func DefaultChart() *Chart {
	return &Chart{
		Categories: map[string]Account{
			"fuel":        {Code: "601-01", Name: "Combustibles y lubricantes"},
			"combustible": {Code: "601-01", Name: "Combustibles y lubricantes"},
			"travel":      {Code: "601-02", Name: "Viáticos y gastos de viaje"},
			"viaticos":    {Code: "601-02", Name: "Viáticos y gastos de viaje"},
			"meals":       {Code: "601-03", Name: "Alimentos y consumos"},
			"alimentos":   {Code: "601-03", Name: "Alimentos y consumos"},
			"office":      {Code: "601-04", Name: "Papelería y artículos de oficina"},
			"papeleria":   {Code: "601-04", Name: "Papelería y artículos de oficina"},
			"software":    {Code: "601-05", Name: "Software y servicios digitales"},
			"rent":        {Code: "601-06", Name: "Rentas"},
			"services":    {Code: "601-07", Name: "Honorarios y servicios profesionales"},
			"honorarios":  {Code: "601-07", Name: "Honorarios y servicios profesionales"},
			"maintenance": {Code: "601-08", Name: "Mantenimiento"},
		},
		TaxInputs: map[expense.TaxType]Account{
			expense.TaxIVA:  {Code: "118-01", Name: "IVA acreditable pagado"},
			expense.TaxIEPS: {Code: "118-02", Name: "IEPS acreditable"},
		},
		Withholdings: map[expense.TaxType]Account{
			expense.TaxISR: {Code: "216-01", Name: "Retenciones de ISR por pagar"},
			expense.TaxIVA: {Code: "216-02", Name: "Retenciones de IVA por pagar"},
		},
		Payments: map[expense.PaymentSource]Account{
			expense.SourceCompanyBank:   {Code: "102-01", Name: "Bancos cuenta empresa"},
			expense.SourcePettyCash:     {Code: "107-01", Name: "Gastos por comprobar"},
			expense.SourceCorporateCard: {Code: "205-01", Name: "Tarjeta corporativa por pagar"},
		},
		GeneralExpenses:     Account{Code: "601-99", Name: "Gastos generales"},
		TaxInputFallback:    Account{Code: "118-99", Name: "Impuestos acreditables"},
		WithholdingFallback: Account{Code: "216-99", Name: "Retenciones por pagar"},
		Payable:             Account{Code: "201-01", Name: "Proveedores"},
		Bank:                Account{Code: "102-01", Name: "Bancos cuenta empresa"},
	}
}

// CategoryAccount resolves the expense-line account for a category. Unknown
// or empty categories land in general expenses.
func (c *Chart) CategoryAccount(category string) Account {
	if a, ok := c.Categories[strings.ToLower(strings.TrimSpace(category))]; ok {
		return a
	}
	return c.GeneralExpenses
}

// TaxInputAccount resolves the debit account for a pass-through tax.
func (c *Chart) TaxInputAccount(t expense.TaxType) Account {
	if a, ok := c.TaxInputs[t]; ok {
		return a
	}
	return c.TaxInputFallback
}

// WithholdingAccount resolves the credit account for a withheld tax.
func (c *Chart) WithholdingAccount(t expense.TaxType) Account {
	if a, ok := c.Withholdings[t]; ok {
		return a
	}
	return c.WithholdingFallback
}

// PaymentAccount resolves the credit account for an expense paid before (or
// without) an invoice, by payment source.
func (c *Chart) PaymentAccount(src expense.PaymentSource) Account {
	if a, ok := c.Payments[src]; ok {
		return a
	}
	if a, ok := c.Payments[expense.SourceCompanyBank]; ok {
		return a
	}
	return c.Bank
}
