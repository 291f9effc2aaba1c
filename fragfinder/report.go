package fragfinder

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/olekukonko/tablewriter"
)

func FormatBytes(n int64) string {
	return bytesize.New(float64(n)).String()
}

// ParseBytes parses sizes such as "512MB" or "1GB". A plain number is bytes.
func ParseBytes(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	b, err := bytesize.Parse(s)
	if err != nil {
		return 0, err
	}

	return int64(b), nil
}

func WriteTables(w io.Writer, tables []*Table, c Criteria) {
	tw := newTableWriter(w)
	tw.SetHeader([]string{"Schema", "Table", "Engine", "Rows", "Size", "Free", "Frag %", "Bucket"})
	tw.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
	})

	for _, t := range tables {
		tw.Append([]string{
			t.DBName,
			t.Name,
			t.Engine,
			strconv.FormatUint(t.Rows, 10),
			FormatBytes(t.Size()),
			FormatBytes(t.DataFree),
			fmt.Sprintf("%.1f", t.FragRatio()),
			string(c.Bucket(t)),
		})
	}
	tw.SetFooter([]string{"", "", "", "", "", FormatBytes(totalFree(tables)), "", fmt.Sprintf("%d table(s)", len(tables))})

	tw.Render()
}

func WriteResults(w io.Writer, s *Summary) {
	tw := newTableWriter(w)
	tw.SetHeader([]string{"Table", "Status", "Reclaimed", "Elapsed", "Message"})

	for _, r := range s.Results {
		msg := ""
		if r.Err != nil {
			msg = r.errMessage()
		}
		tw.Append([]string{
			r.Table.String(),
			string(r.Status),
			FormatBytes(r.Reclaimed),
			r.Elapsed.Round(time.Millisecond).String(),
			msg,
		})
	}

	tw.Render()
}

func WrapUp(s *Summary) string {
	skipped := ""
	if s.Skipped > 0 {
		skipped = fmt.Sprintf(", %d skipped", s.Skipped)
	}

	return fmt.Sprintf("Optimized %d table(s), %d failed%s, reclaimed %s in %s",
		s.Optimized, s.Failed, skipped, FormatBytes(s.Reclaimed), s.Elapsed.Round(time.Millisecond))
}

func newTableWriter(w io.Writer) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)

	return tw
}

func totalFree(tables []*Table) int64 {
	var n int64
	for _, t := range tables {
		n += t.DataFree
	}

	return n
}
