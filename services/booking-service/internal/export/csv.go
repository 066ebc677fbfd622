package export

import (
	"encoding/csv"
	"io"
	"time"
)

func WriteCSV(w io.Writer, rows []Row, loc *time.Location) error {
	loc = location(loc)
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.values(loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
