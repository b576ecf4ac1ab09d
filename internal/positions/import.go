// Package positions normalizes imported target allocations: long-format
// CSV rows (date, stock_code, weight) become clean per-date weight sets that
// sum to 1.0.
package positions

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/minqt/weight-sync/internal/logger"
)

// Row is one imported allocation entry.
type Row struct {
	Date      string // YYYYMMDD
	StockCode string
	Weight    float64
}

var marketCodeMap = map[string]string{
	"XSHG": "SH",
	"XSHE": "SZ",
}

var allowedMarkets = []string{".SH", ".SZ"}

// ParseCSV reads long-format rows. The first record must be the header
// date,stock_code,weight.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("csv has no data rows")
	}

	header := records[0]
	if len(header) < 3 || strings.TrimSpace(header[0]) != "date" ||
		strings.TrimSpace(header[1]) != "stock_code" || strings.TrimSpace(header[2]) != "weight" {
		return nil, fmt.Errorf("unexpected header %v, want date,stock_code,weight", header)
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) < 3 {
			return nil, fmt.Errorf("row %d: want 3 columns, got %d", i+2, len(rec))
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse weight %q: %w", i+2, rec[2], err)
		}
		rows = append(rows, Row{
			Date:      normalizeDate(strings.TrimSpace(rec[0])),
			StockCode: FormatStockCode(rec[1]),
			Weight:    weight,
		})
	}
	return rows, nil
}

// FormatStockCode maps exchange suffixes to the broker's convention,
// e.g. 600000.XSHG -> 600000.SH.
func FormatStockCode(code string) string {
	code = strings.TrimSpace(code)
	for old, repl := range marketCodeMap {
		code = strings.ReplaceAll(code, old, repl)
	}
	return code
}

func normalizeDate(date string) string {
	return strings.NewReplacer("-", "", "/", "", ".", "").Replace(date)
}

// Normalize drops rows outside the tradable markets or with non-positive
// weights, then rescales each date's remaining weights to sum to 1.0.
func Normalize(rows []Row, log *logger.Logger) []Row {
	kept := make([]Row, 0, len(rows))
	droppedMarket, droppedWeight := 0, 0
	for _, row := range rows {
		if !hasAllowedMarket(row.StockCode) {
			droppedMarket++
			continue
		}
		if row.Weight <= 0 {
			droppedWeight++
			continue
		}
		kept = append(kept, row)
	}
	if droppedMarket > 0 {
		log.Info("dropped rows outside SH/SZ markets", "count", droppedMarket)
	}
	if droppedWeight > 0 {
		log.Info("dropped rows with non-positive weight", "count", droppedWeight)
	}

	sums := make(map[string]float64)
	for _, row := range kept {
		sums[row.Date] += row.Weight
	}
	for i := range kept {
		if sum := sums[kept[i].Date]; sum > 0 {
			kept[i].Weight /= sum
		}
	}
	return kept
}

func hasAllowedMarket(code string) bool {
	for _, suffix := range allowedMarkets {
		if strings.HasSuffix(code, suffix) {
			return true
		}
	}
	return false
}
