// this file renders play-stat reports as text
package meta

import (
	"fmt"
	"strings"
	"time"
)

const chartWidth = 25

var medals = []string{":first_place:", ":second_place:", ":third_place:"}

// StatsText builds the "top bogarters" report: a ranked list with medals
// for the podium, then a block-character bar chart.
func StatsText(stats []PlayerStat, startDate, endDate *time.Time) string {
	var b strings.Builder
	b.WriteString("Here are the top bogarters")
	switch {
	case startDate != nil && endDate != nil:
		fmt.Fprintf(&b, " from %s to %s", startDate.Format("01/02/2006"), endDate.Format("01/02/2006"))
	case startDate != nil:
		fmt.Fprintf(&b, " from %s and on", startDate.Format("01/02/2006"))
	case endDate != nil:
		fmt.Fprintf(&b, " until %s", endDate.Format("01/02/2006"))
	default:
		b.WriteString(" of all time")
	}
	b.WriteString(":\n")

	for i, stat := range stats {
		marker := fmt.Sprintf("%d)", i+1)
		if i < len(medals) {
			marker = medals[i]
		}
		fmt.Fprintf(&b, "%s %s: %d\n", marker, stat.Username, stat.PlayCount)
	}
	b.WriteString(ChartText(stats))
	return b.String()
}

// ChartText renders a horizontal bar chart scaled so the biggest count
// spans chartWidth block characters. All-zero counts render flat bars
// instead of dividing by zero.
func ChartText(stats []PlayerStat) string {
	if len(stats) == 0 {
		return ""
	}

	var maxCount int64
	labelWidth, countWidth := 0, 0
	for _, stat := range stats {
		if stat.PlayCount > maxCount {
			maxCount = stat.PlayCount
		}
		if len(stat.Username) > labelWidth {
			labelWidth = len(stat.Username)
		}
		if w := len(fmt.Sprintf("%d", stat.PlayCount)); w > countWidth {
			countWidth = w
		}
	}

	lines := make([]string, 0, len(stats))
	for _, stat := range stats {
		chunks := 0
		if maxCount > 0 {
			chunks = int(stat.PlayCount * chartWidth / maxCount)
		}
		bar := strings.Repeat("█", chunks)
		if bar == "" {
			bar = "▏"
		}
		lines = append(lines, fmt.Sprintf("%*s ▏%*d %s", labelWidth, stat.Username, countWidth, stat.PlayCount, bar))
	}
	return "`\n" + strings.Join(lines, "\n") + "`"
}
