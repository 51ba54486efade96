// Package report renders event rosters as spreadsheets and printable PDFs.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"rollcall/pkg/domain"
)

// Format names an output format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts "xlsx" or "pdf" in any case.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unsupported report format %q", raw)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Source is the read side of the service a roster is built from.
type Source interface {
	GetEvent(id string) (domain.Event, bool)
	PeopleForEvent(eventID string) []domain.PersonForEvent
	EventStats(eventID string) domain.EventStats
	Settings() domain.Settings
}

// Row is one person on the roster.
type Row struct {
	Name      string
	Attending bool
	PaidAt    *time.Time
}

// Roster is everything a rendered report shows.
type Roster struct {
	Event       domain.Event
	Currency    string
	Rows        []Row
	Stats       domain.EventStats
	GeneratedAt time.Time
}

// Collected is the cost multiplied by the number of paid attendees.
func (r Roster) Collected() decimal.Decimal {
	if !r.Event.Cost.Valid {
		return decimal.Zero
	}
	return r.Event.Cost.Decimal.Mul(decimal.NewFromInt(int64(r.Stats.Attending - r.Stats.Unpaid)))
}

// Outstanding is the cost multiplied by the number of unpaid attendees.
func (r Roster) Outstanding() decimal.Decimal {
	if !r.Event.Cost.Valid {
		return decimal.Zero
	}
	return r.Event.Cost.Decimal.Mul(decimal.NewFromInt(int64(r.Stats.Unpaid)))
}

// Filename suggests a download name such as "2024-03-01-climbing.xlsx".
func (r Roster) Filename(f Format) string {
	slug := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			return c
		case c >= 'A' && c <= 'Z':
			return c + ('a' - 'A')
		}
		return '-'
	}, r.Event.Title)
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if slug == "" {
		slug = "event"
	}
	return fmt.Sprintf("%s-%s.%s", r.Event.Date, slug, f)
}

// Build assembles the roster of eventID.
func Build(src Source, eventID string, now time.Time) (Roster, error) {
	event, ok := src.GetEvent(eventID)
	if !ok {
		return Roster{}, domain.ErrNotFound{Entity: domain.EntityEvent, ID: eventID}
	}
	people := src.PeopleForEvent(eventID)
	rows := make([]Row, 0, len(people))
	for _, p := range people {
		rows = append(rows, Row{Name: p.Name, Attending: p.Attending, PaidAt: p.PaidAt})
	}
	return Roster{
		Event:       event,
		Currency:    src.Settings().Currency,
		Rows:        rows,
		Stats:       src.EventStats(eventID),
		GeneratedAt: now,
	}, nil
}

// Render encodes r in format f.
func Render(r Roster, f Format) ([]byte, error) {
	switch f {
	case FormatXLSX:
		return renderXLSX(r)
	case FormatPDF:
		return renderPDF(r)
	}
	return nil, fmt.Errorf("unsupported report format %q", f)
}

// FormatMoney prints amount with two decimals and the currency code.
func FormatMoney(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(2) + " " + currency
}

// FormatCost prints an optional event cost; "-" when there is none.
func FormatCost(cost decimal.NullDecimal, currency string) string {
	if !cost.Valid {
		return "-"
	}
	return FormatMoney(cost.Decimal, currency)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func paidAt(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

var headers = []string{"Name", "Attending", "Paid", "Paid at"}

const sheetName = "Roster"

func renderXLSX(r Roster) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	set := func(cell string, value any) error {
		return f.SetCellValue(sheetName, cell, value)
	}
	if err := set("A1", r.Event.Title); err != nil {
		return nil, err
	}
	if err := set("B1", string(r.Event.Date)); err != nil {
		return nil, err
	}
	if err := set("C1", "Cost"); err != nil {
		return nil, err
	}
	if err := set("D1", FormatCost(r.Event.Cost, r.Currency)); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		if err := set(cell, h); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheetName, "A3", "D3", bold); err != nil {
		return nil, err
	}

	row := 4
	for _, p := range r.Rows {
		values := []any{p.Name, yesNo(p.Attending), yesNo(p.PaidAt != nil), paidAt(p.PaidAt)}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			if err := set(cell, v); err != nil {
				return nil, err
			}
		}
		row++
	}

	row++
	footer := [][2]any{
		{"Attending", r.Stats.Attending},
		{"Unpaid", r.Stats.Unpaid},
		{"Collected", FormatMoney(r.Collected(), r.Currency)},
		{"Outstanding", FormatMoney(r.Outstanding(), r.Currency)},
	}
	for _, kv := range footer {
		if err := set(fmt.Sprintf("A%d", row), kv[0]); err != nil {
			return nil, err
		}
		if err := set(fmt.Sprintf("B%d", row), kv[1]); err != nil {
			return nil, err
		}
		row++
	}
	if err := f.SetColWidth(sheetName, "A", "A", 32); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "B", "D", 18); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPDF(r Roster) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(r.Event.Title), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(r.Event.Title))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 8, fmt.Sprintf("%s  |  Cost: %s", r.Event.Date, tr(FormatCost(r.Event.Cost, r.Currency))))
	pdf.Ln(12)

	widths := []float64{80, 30, 30, 40}
	pdf.SetFont("Arial", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, p := range r.Rows {
		values := []string{tr(p.Name), yesNo(p.Attending), yesNo(p.PaidAt != nil), paidAt(p.PaidAt)}
		for i, v := range values {
			pdf.CellFormat(widths[i], 6, v, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Attending: %d   Unpaid: %d", r.Stats.Attending, r.Stats.Unpaid))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Collected: %s   Outstanding: %s",
		FormatMoney(r.Collected(), r.Currency), FormatMoney(r.Outstanding(), r.Currency)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.Cell(0, 5, "Generated "+r.GeneratedAt.UTC().Format(time.RFC3339))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
