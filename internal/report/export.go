package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"timeclock/internal/attendance"
)

// TimestampLayout is the timestamp format used in exports.
const TimestampLayout = "2006-01-02 15:04:05"

const sheetName = "Records"

// ExportFilename names a download produced at now.
func ExportFilename(now time.Time, ext string) string {
	return fmt.Sprintf("clockwise_export_%s.%s", now.Format(dayLayout), strings.TrimPrefix(ext, "."))
}

// WriteCSV writes records with every field quoted.
func WriteCSV(w io.Writer, records []attendance.TimeRecord, loc *time.Location) error {
	if _, err := io.WriteString(w, "User,Type,Timestamp,IP Address\n"); err != nil {
		return err
	}
	for _, r := range records {
		fields := []string{r.UserName, string(r.Type), r.Timestamp.In(loc).Format(TimestampLayout), r.IPAddress}
		for i, f := range fields {
			fields[i] = quote(f)
		}
		if _, err := io.WriteString(w, strings.Join(fields, ",")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// WriteXLSX writes records as a single-sheet workbook.
func WriteXLSX(w io.Writer, records []attendance.TimeRecord, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	header := []interface{}{"User", "Type", "Timestamp", "IP Address", "Latitude", "Longitude"}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	for i, r := range records {
		row := []interface{}{
			r.UserName,
			string(r.Type),
			r.Timestamp.In(loc).Format(TimestampLayout),
			r.IPAddress,
			formatCoord(r.Latitude),
			formatCoord(r.Longitude),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}
