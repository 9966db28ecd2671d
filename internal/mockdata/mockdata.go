// Package mockdata generates realistic sample datasets for demos and load
// testing. A generated dataset behaves exactly like a file source: it
// implements source.Reader and flows through the same inference and write
// path as an uploaded spreadsheet.
package mockdata

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/mkrogh/sheetpipe/internal/source"
)

// Template describes one generatable dataset.
type Template struct {
	Key         string   `json:"key"`
	Description string   `json:"description"`
	Columns     []string `json:"columns"`
}

// Templates returns the available dataset templates.
func Templates() []Template {
	return []Template{
		{
			Key:         "employees",
			Description: "Employee roster with salaries and hire dates",
			Columns:     employeeColumns,
		},
		{
			Key:         "sales",
			Description: "Sales orders with line totals",
			Columns:     salesColumns,
		},
		{
			Key:         "inventory",
			Description: "Inventory stock levels with restock timestamps",
			Columns:     inventoryColumns,
		},
	}
}

var (
	employeeColumns = []string{
		"employee_id", "full_name", "email", "department",
		"job_title", "salary", "hire_date", "active",
	}
	salesColumns = []string{
		"order_id", "order_date", "customer", "region",
		"product", "quantity", "unit_price", "total",
	}
	inventoryColumns = []string{
		"sku", "product_name", "category", "quantity",
		"unit_cost", "restocked_at", "discontinued",
	}
)

var departments = []string{
	"Engineering", "Sales", "Marketing", "Finance", "Operations", "Support",
}

var regions = []string{"North", "South", "East", "West"}

var categories = []string{
	"Electronics", "Office Supplies", "Furniture", "Tools", "Apparel",
}

// Generate returns a Reader producing rows rows for the given template,
// chunked like a file source. Seed zero picks a random seed.
func Generate(template string, rows, chunkSize int, seed uint64) (source.Reader, error) {
	var (
		columns []string
		gen     func(f *gofakeit.Faker, n int) []source.Value
	)
	switch template {
	case "employees":
		columns, gen = employeeColumns, employeeRow
	case "sales":
		columns, gen = salesColumns, salesRow
	case "inventory":
		columns, gen = inventoryColumns, inventoryRow
	default:
		return nil, fmt.Errorf("unknown template: %s", template)
	}

	if rows <= 0 {
		rows = 100
	}
	if chunkSize <= 0 {
		chunkSize = 10000
	}

	return &reader{
		faker:     gofakeit.New(seed),
		columns:   columns,
		gen:       gen,
		total:     rows,
		chunkSize: chunkSize,
	}, nil
}

type reader struct {
	faker     *gofakeit.Faker
	columns   []string
	gen       func(f *gofakeit.Faker, n int) []source.Value
	total     int
	chunkSize int

	produced int
	chunks   int
}

func (r *reader) Columns() []string { return r.columns }
func (r *reader) TotalRows() int    { return r.total }
func (r *reader) Close() error      { return nil }

func (r *reader) Next(ctx context.Context) (*source.RowChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.produced >= r.total {
		return nil, io.EOF
	}

	n := r.total - r.produced
	if n > r.chunkSize {
		n = r.chunkSize
	}

	chunk := &source.RowChunk{
		Index:   r.chunks,
		Columns: r.columns,
		Rows:    make([]source.Row, n),
	}
	for i := 0; i < n; i++ {
		r.produced++
		chunk.Rows[i] = source.Row{
			// Row 1 is the header in a real sheet.
			Num:   r.produced + 1,
			Cells: r.gen(r.faker, r.produced),
		}
	}
	r.chunks++
	return chunk, nil
}

func employeeRow(f *gofakeit.Faker, n int) []source.Value {
	hired := f.DateRange(
		time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	)
	return []source.Value{
		source.Number(float64(1000 + n)),
		source.String(f.Name()),
		source.String(f.Email()),
		source.String(f.RandomString(departments)),
		source.String(f.JobTitle()),
		source.Number(f.Price(40000, 220000)),
		source.Time(midnight(hired)),
		source.Bool(f.Number(0, 9) > 0),
	}
}

func salesRow(f *gofakeit.Faker, n int) []source.Value {
	ordered := f.DateRange(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	)
	qty := f.Number(1, 50)
	price := f.Price(5, 500)
	return []source.Value{
		source.Number(float64(100000 + n)),
		source.Time(midnight(ordered)),
		source.String(f.Company()),
		source.String(f.RandomString(regions)),
		source.String(f.ProductName()),
		source.Number(float64(qty)),
		source.Number(price),
		source.Number(float64(qty) * price),
	}
}

func inventoryRow(f *gofakeit.Faker, n int) []source.Value {
	restocked := f.DateRange(
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	)
	return []source.Value{
		source.String(fmt.Sprintf("SKU-%06d", n)),
		source.String(f.ProductName()),
		source.String(f.RandomString(categories)),
		source.Number(float64(f.Number(0, 5000))),
		source.Number(f.Price(1, 200)),
		source.Time(restocked),
		source.Bool(f.Number(0, 19) == 0),
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
