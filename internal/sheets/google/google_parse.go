package google

import (
	"fmt"
	"strconv"
	"strings"

	"pennylogs/internal/core"
)

// Column layout of an export sheet; the expense id is last so the sheet
// reads naturally left to right.
var columns = []string{"Date", "Name", "Category", "Amount", "Monthly", "User", "ID"}

const (
	lastColumn = "G"
	idColumn   = 6
)

func headerRow() []any {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	return row
}

func exportRow(uid string, e core.Expense) []any {
	category := e.CategoryName
	if category == "" {
		category = e.Category
	}
	monthly := ""
	if e.Monthly {
		monthly = "yes"
	}
	return []any{e.Date.String(), e.Name, category, e.Amount.String(), monthly, uid, e.ID}
}

// findExpenseRow returns the 1-based row holding id, or 0.
func findExpenseRow(values [][]any, id string) int {
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) > idColumn && cols[idColumn] == id {
			return i + 1
		}
	}
	return 0
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet quotes a sheet title for A1 notation.
func quoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), row, lastColumn, row)
}
