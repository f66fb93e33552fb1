package dashboard

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/neotracker/neotracker/internal/catalog"
)

func writeRecordsCSV(w io.Writer, records []catalog.Record) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Designation", "Approach Date", "Distance (AU)", "Velocity (km/s)", "Absolute Magnitude", "Dangerous"}); err != nil {
		return err
	}
	for _, rec := range records {
		h := ""
		if rec.AbsoluteMagnitude != nil {
			h = formatFloat(*rec.AbsoluteMagnitude)
		}
		if err := writer.Write([]string{
			rec.Designation,
			rec.ApproachTime.UTC().Format(time.RFC3339),
			formatFloat(rec.DistanceAU),
			formatFloat(rec.VelocityKmS),
			h,
			strconv.FormatBool(rec.Dangerous()),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
