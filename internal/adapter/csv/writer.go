// Package csv exports result tables as CSV.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/climate-series-service/internal/domain"
)

var fixedColumns = []string{"date", "period", "image_id", "feature_id"}

// WriteRows writes a header and one line per row. Band columns are the union
// of every row's bands in sorted order; undefined values are left empty.
func WriteRows(w io.Writer, rows []domain.StatRow) error {
	var bands []domain.Band
	for _, row := range rows {
		for b := range row.Values {
			if !slices.Contains(bands, b) {
				bands = append(bands, b)
			}
		}
	}
	slices.Sort(bands)

	cw := csv.NewWriter(w)
	header := slices.Clone(fixedColumns)
	for _, b := range bands {
		header = append(header, string(b))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, row := range rows {
		record := []string{row.Date.Format(time.DateOnly), row.Period.String(), row.ImageID, row.FeatureID}
		for _, b := range bands {
			v, ok := row.Value(b)
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
