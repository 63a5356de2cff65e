package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/traceview/pkg/domain"
)

var eventsCmd = &cobra.Command{
	Use:   "events [trace files...]",
	Short: "List the event types and tasks of each open stream",
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context(), args)
	if err != nil {
		return err
	}
	defer s.close()

	out := cmd.OutOrStdout()
	for _, st := range s.reg.Streams() {
		fmt.Fprintf(out, "stream %d: %s (%d cpus)\n", st.ID, st.File, st.NCPUs)

		ids, err := st.Format().AllEventIDs(st)
		if err != nil {
			return fmt.Errorf("listing events of stream %d: %w", st.ID, err)
		}
		for _, id := range ids {
			name, err := st.EventName(&domain.Entry{EventID: int16(id)})
			if err != nil {
				name = "<unknown>"
			}
			fmt.Fprintf(out, "  event %3d: %s\n", id, name)
		}
		fmt.Fprintf(out, "  tasks: %v\n", st.Tasks.IDs())
	}
	return nil
}
