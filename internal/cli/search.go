package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yairfalse/traceview/pkg/domain"
	"github.com/yairfalse/traceview/pkg/search"
)

var (
	searchTime    int64
	searchPID     int
	searchBack    bool
	searchVisible bool
)

var searchCmd = &cobra.Command{
	Use:   "search [trace files...]",
	Short: "Find the entry nearest a timestamp, optionally for one task",
	Long: `search binary-searches the merged array for the first entry at or
after the given timestamp. With --pid it scans on from there for the
next entry of that task; --back scans toward older entries instead.`,
	Example: `  # First entry at or after t=1500000
  traceview search -t 1500000 sched.jsonl

  # Next visible entry of pid 42 at or after t
  traceview search -t 1500000 --pid 42 --visible-only sched.jsonl`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().Int64VarP(&searchTime, "time", "t", 0, "timestamp in nanoseconds")
	searchCmd.Flags().IntVar(&searchPID, "pid", -1, "restrict to one task id")
	searchCmd.Flags().BoolVar(&searchBack, "back", false, "scan backward in time")
	searchCmd.Flags().BoolVar(&searchVisible, "visible-only", false, "only count entries visible in the text view")
	searchCmd.MarkFlagRequired("time")
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), args)
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()
	n := len(s.entries)
	if n == 0 {
		fmt.Fprintln(out, "no entries")
		return nil
	}

	at := search.FindEntryByTime(searchTime, s.entries, 0, n-1)
	switch at {
	case search.AllSmaller:
		fmt.Fprintln(out, "every entry is before the requested time")
		return nil
	case search.AllGreater:
		at = 0
	}

	if searchPID < 0 {
		return printEntry(s, out, at)
	}

	req := &search.Request{
		First:       at,
		N:           n,
		Match:       matchPIDAnyStream,
		Values:      []int64{int64(searchPID)},
		VisibleOnly: searchVisible,
		VisibleMask: domain.TextViewMask,
	}
	var outcome search.Outcome
	var hit int
	if searchBack {
		hit, outcome = req.GetBack(s.entries)
	} else {
		hit, outcome = req.GetFront(s.entries)
	}
	switch outcome {
	case search.OutcomeNone:
		fmt.Fprintf(out, "no entry of pid %d in range\n", searchPID)
	case search.OutcomeHidden:
		fmt.Fprintf(out, "pid %d matches at index %d but is hidden by filters\n", searchPID, hit)
	case search.OutcomeFound:
		return printEntry(s, out, hit)
	}
	return nil
}

// matchPIDAnyStream matches a pid regardless of the owning stream; the
// CLI searches the whole merged array.
func matchPIDAnyStream(e *domain.Entry, streamID int, values []int64) bool {
	return int64(e.PID) == values[0]
}

func printEntry(s *session, out io.Writer, at int) error {
	e := &s.entries[at]
	st, err := s.reg.Get(int(e.StreamID))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d: %s\n", at, st.DumpEntry(e))
	return nil
}
