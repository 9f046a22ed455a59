package app

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/transfa/portal-service/internal/domain"
)

var transactionCSVHeader = []string{"Transaction ID", "Date", "Description", "Type", "Amount"}

// WriteTransactionsCSV writes transactions in the statement download format.
// Amounts keep their sign so debits stay negative.
func WriteTransactionsCSV(out io.Writer, txs []domain.Transaction) error {
	writer := csv.NewWriter(out)

	if err := writer.Write(transactionCSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, tx := range txs {
		row := []string{
			strconv.FormatInt(tx.ID, 10),
			tx.Timestamp,
			tx.Description,
			string(tx.Type),
			tx.Amount.StringFixed(2),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// SpendingByCategory sums debits per transaction type, largest first.
func SpendingByCategory(txs []domain.Transaction) []domain.SpendingByCategory {
	totals := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.IsCredit() {
			continue
		}
		category := string(tx.Type)
		totals[category] = totals[category].Add(tx.Amount.Abs())
	}

	out := make([]domain.SpendingByCategory, 0, len(totals))
	for category, total := range totals {
		out = append(out, domain.SpendingByCategory{Category: category, TotalSpent: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalSpent.Cmp(out[j].TotalSpent); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}
