package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/traceview/pkg/domain"
)

var (
	dumpLimit       int
	dumpVisibleOnly bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump [trace files...]",
	Short: "Print merged trace entries in time order",
	Example: `  # Dump the streams configured in traceview.yaml
  traceview dump

  # Dump two trace files merged together
  traceview dump sched.jsonl irq.jsonl

  # First 100 visible entries only
  traceview dump --limit 100 --visible-only sched.jsonl`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().IntVar(&dumpLimit, "limit", 0, "maximum entries to print (0 = all)")
	dumpCmd.Flags().BoolVar(&dumpVisibleOnly, "visible-only", false, "skip entries hidden by filters")
}

func runDump(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), args)
	if err != nil {
		return err
	}
	defer s.close()

	printed := 0
	for i := range s.entries {
		e := &s.entries[i]
		if dumpVisibleOnly && e.Visible&domain.TextViewMask == 0 {
			continue
		}
		st, err := s.reg.Get(int(e.StreamID))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, st.DumpEntry(e))
		printed++
		if dumpLimit > 0 && printed >= dumpLimit {
			break
		}
	}
	return nil
}
