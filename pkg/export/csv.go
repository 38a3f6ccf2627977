package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/asoradar/asoradar/internal/store"
)

// csvHeader is the column order of the history export.
var csvHeader = []string{
	"keyword", "country", "popularity", "difficulty",
	"interpretation", "app_rank", "searched_at",
}

// WriteCSV writes result rows as CSV. NULL popularity and rank are
// emitted as empty cells so spreadsheets don't mistake them for zero.
func WriteCSV(w io.Writer, results []store.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range results {
		row := []string{
			r.Keyword,
			r.Country,
			optInt(r.Popularity),
			strconv.Itoa(r.Difficulty),
			r.Interpretation,
			optInt(r.AppRank),
			r.SearchedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %q: %w", r.Keyword, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
