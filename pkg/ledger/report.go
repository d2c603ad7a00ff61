package ledger

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// WriteRuns prints runs as a table, one line per run with its metrics
// sorted by name.
func WriteRuns(w io.Writer, runs []Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "started\tpipeline\tstatus\trows\toutput\tmetrics")
	for _, r := range runs {
		names := make([]string, 0, len(r.Metrics))
		for name := range r.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		metrics := make([]string, len(names))
		for i, name := range names {
			metrics[i] = fmt.Sprintf("%s=%.4g", name, r.Metrics[name])
		}
		if r.Error != "" {
			metrics = append(metrics, "error: "+r.Error)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Pipeline, r.Status, r.Rows, r.Output, strings.Join(metrics, " "))
	}
	return tw.Flush()
}
