package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
)

var (
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36"))
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func printTitle(w io.Writer, title string, detail string) {
	fmt.Fprintln(w, styleTitle.Render(title), styleDim.Render(detail))
}

// timing collects the durations of repeated rounds of one workload.
type timing struct {
	label  string
	items  int
	rounds []time.Duration
}

func (t timing) best() time.Duration {
	return lo.Min(t.rounds)
}

func (t timing) mean() time.Duration {
	if len(t.rounds) == 0 {
		return 0
	}
	return lo.Sum(t.rounds) / time.Duration(len(t.rounds))
}

// rate is items per second in the best round.
func (t timing) rate() float64 {
	best := t.best()
	if best <= 0 {
		return 0
	}
	return float64(t.items) / best.Seconds()
}

func writeTimings(w io.Writer, timings ...timing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "workload\trounds\tbest\tmean\titems/s\t\n")
	for _, t := range timings {
		fmt.Fprintf(tw, "%s\t%d\t%v\t%v\t%.0f\t\n",
			t.label, len(t.rounds), t.best().Round(time.Microsecond), t.mean().Round(time.Microsecond), t.rate())
	}
	return tw.Flush()
}

// writeDistribution prints how many task entries each worker handled.
func writeDistribution(w io.Writer, perWorker []uint64) error {
	total := lo.Sum(perWorker)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "worker\ttasks\tshare\t\n")
	for id, n := range perWorker {
		share := 0.0
		if total > 0 {
			share = 100 * float64(n) / float64(total)
		}
		fmt.Fprintf(tw, "%d\t%d\t%.1f%%\t\n", id, n, share)
	}
	return tw.Flush()
}
