// Package chart renders query results into PNG charts. Every call is
// stateless: the render target lives on the stack of one invocation and
// nothing carries over between requests.
package chart

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	wchart "github.com/wcharczuk/go-chart/v2"
)

// Kind selects the rendering and its input-shape validation.
type Kind string

const (
	KindHistogram Kind = "histogram"
	KindPie       Kind = "pie"
	KindBar       Kind = "bar"
)

// Fixed diagnostics. They share the return channel with successful
// renders, so callers switch on Result.IsImage rather than sniffing bytes.
const (
	MsgNoData       = "No data found."
	MsgNoNumericCol = "No numeric column found for histogram."
	MsgPieEmpty     = "No values found for pie chart."
	MsgBarTwoCols   = "Bar chart needs at least two columns."
	MsgBarNoNumeric = "No numeric data found for bar chart."
	MsgInvalidKind  = "Invalid chart_type."
	MsgEmptyQuery   = "Query must not be empty."
)

const histogramBins = 10

// Result is the discriminated outcome of one chart generation: either a
// rendered PNG or a plain-text diagnostic.
type Result struct {
	PNG     []byte
	Message string
}

// IsImage reports whether the result carries a rendered chart.
func (r Result) IsImage() bool {
	return len(r.PNG) > 0
}

// Tool turns a read-only query against the data database into a chart.
type Tool struct {
	db *sql.DB
}

// NewTool wires the chart tool to the data database.
func NewTool(db *sql.DB) *Tool {
	return &Tool{db: db}
}

// Generate runs the query and renders the requested chart kind. All
// failure paths come back as diagnostic messages, never as errors the
// caller has to translate for the user.
func (t *Tool) Generate(ctx context.Context, query string, kind Kind) Result {
	if Kind(strings.ToLower(string(kind))) != KindHistogram &&
		Kind(strings.ToLower(string(kind))) != KindPie &&
		Kind(strings.ToLower(string(kind))) != KindBar {
		return Result{Message: MsgInvalidKind}
	}
	kind = Kind(strings.ToLower(string(kind)))

	if strings.TrimSpace(query) == "" {
		return Result{Message: MsgEmptyQuery}
	}

	columns, cells, err := t.queryRows(ctx, query)
	if err != nil {
		return Result{Message: fmt.Sprintf("Error generating chart: %v", err)}
	}
	if len(cells) == 0 {
		return Result{Message: MsgNoData}
	}

	switch kind {
	case KindHistogram:
		return renderHistogram(columns, cells)
	case KindPie:
		return renderPie(columns, cells)
	default:
		return renderBar(columns, cells)
	}
}

// queryRows executes the query and materializes every cell as a string
// plus its coerced numeric value when one exists.
func (t *Tool) queryRows(ctx context.Context, query string) ([]string, [][]cell, error) {
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]cell
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		record := make([]cell, len(columns))
		for i, v := range raw {
			record[i] = newCell(v)
		}
		out = append(out, record)
	}
	return columns, out, rows.Err()
}

type cell struct {
	text    string
	value   float64
	numeric bool
}

func newCell(v any) cell {
	switch x := v.(type) {
	case nil:
		return cell{}
	case int64:
		return cell{text: strconv.FormatInt(x, 10), value: float64(x), numeric: true}
	case float64:
		return cell{text: strconv.FormatFloat(x, 'f', -1, 64), value: x, numeric: true}
	case bool:
		val := 0.0
		if x {
			val = 1.0
		}
		return cell{text: strconv.FormatBool(x), value: val, numeric: true}
	case []byte:
		return coerceText(string(x))
	case string:
		return coerceText(x)
	default:
		return coerceText(fmt.Sprint(x))
	}
}

func coerceText(s string) cell {
	trimmed := strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && trimmed != "" {
		return cell{text: s, value: f, numeric: true}
	}
	return cell{text: s}
}

func renderHistogram(columns []string, cells [][]cell) Result {
	col := -1
	var values []float64
	for c := range columns {
		numeric := true
		vals := make([]float64, 0, len(cells))
		for _, row := range cells {
			if row[c].text == "" {
				continue
			}
			if !row[c].numeric {
				numeric = false
				break
			}
			vals = append(vals, row[c].value)
		}
		if numeric && len(vals) > 0 {
			col = c
			values = vals
			break
		}
	}
	if col < 0 {
		return Result{Message: MsgNoNumericCol}
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	counts := make([]int, histogramBins)
	width := (hi - lo) / histogramBins
	for _, v := range values {
		idx := histogramBins - 1
		if width > 0 {
			idx = int((v - lo) / width)
			if idx >= histogramBins {
				idx = histogramBins - 1
			}
		}
		counts[idx]++
	}

	bars := make([]wchart.Value, 0, histogramBins)
	for i, n := range counts {
		binLo := lo + float64(i)*width
		bars = append(bars, wchart.Value{
			Value: float64(n),
			Label: strconv.FormatFloat(binLo, 'f', 1, 64),
		})
	}
	return renderBarValues(fmt.Sprintf("Histogram of %s", columns[col]), bars)
}

func renderPie(columns []string, cells [][]cell) Result {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, row := range cells {
		key := row[0].text
		if key == "" {
			continue
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	if len(order) == 0 {
		return Result{Message: MsgPieEmpty}
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	values := make([]wchart.Value, 0, len(order))
	for _, key := range order {
		pct := float64(counts[key]) / float64(total) * 100
		values = append(values, wchart.Value{
			Value: float64(counts[key]),
			Label: fmt.Sprintf("%s (%.1f%%)", key, pct),
		})
	}

	pie := wchart.PieChart{
		Title:  fmt.Sprintf("Pie Chart of %s", columns[0]),
		Width:  512,
		Height: 512,
		Values: values,
	}
	var buf bytes.Buffer
	if err := pie.Render(wchart.PNG, &buf); err != nil {
		return Result{Message: fmt.Sprintf("Error generating chart: %v", err)}
	}
	return Result{PNG: buf.Bytes()}
}

func renderBar(columns []string, cells [][]cell) Result {
	if len(columns) < 2 {
		return Result{Message: MsgBarTwoCols}
	}
	bars := make([]wchart.Value, 0, len(cells))
	for _, row := range cells {
		if !row[1].numeric {
			continue
		}
		bars = append(bars, wchart.Value{
			Value: row[1].value,
			Label: row[0].text,
		})
	}
	if len(bars) == 0 {
		return Result{Message: MsgBarNoNumeric}
	}
	return renderBarValues(fmt.Sprintf("%s by %s", columns[1], columns[0]), bars)
}

func renderBarValues(title string, bars []wchart.Value) Result {
	bc := wchart.BarChart{
		Title:    title,
		Width:    max(60*len(bars)+120, 512),
		Height:   512,
		BarWidth: 40,
		Background: wchart.Style{
			Padding: wchart.Box{Top: 40},
		},
		Bars: bars,
	}
	var buf bytes.Buffer
	if err := bc.Render(wchart.PNG, &buf); err != nil {
		return Result{Message: fmt.Sprintf("Error generating chart: %v", err)}
	}
	return Result{PNG: buf.Bytes()}
}
