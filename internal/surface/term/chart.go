package term

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/embedviz/vizframe/internal/schema"
	"github.com/embedviz/vizframe/internal/surface"
)

const barColor lipgloss.Color = "#FBAA6D"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	barStyle     = lipgloss.NewStyle().Foreground(barColor)
	countStyle   = lipgloss.NewStyle().Faint(true)
	captionStyle = lipgloss.NewStyle().Italic(true)
	loadingStyle = lipgloss.NewStyle().Faint(true)
)

func loadingPanel(size surface.Size) string {
	return place(loadingStyle.Render("loading data..."), size)
}

func emptyPanel(size surface.Size) string {
	return place("", size)
}

// documentPanel picks a painter by document shape: binned bar documents get
// the bar chart, everything else shows its title as a caption.
func documentPanel(doc schema.ChartDocument, size surface.Size) string {
	bins := doc.Bins()
	if doc.Mark == schema.MarkBar && len(bins) > 0 {
		return barChartPanel(doc.TitleText(), bins, size)
	}
	return captionPanel(doc.TitleText(), size)
}

func captionPanel(text string, size surface.Size) string {
	if text == "" {
		return emptyPanel(size)
	}
	style := captionStyle
	if size.Width > 0 {
		style = style.Width(size.Width).Align(lipgloss.Center)
	}
	return place(style.Render(text), size)
}

// barChartPanel lays out one row per bin: range label, scaled bar, count.
func barChartPanel(title string, bins []schema.Bin, size surface.Size) string {
	rows := len(bins)
	overflow := 0
	if size.Height > 0 {
		budget := size.Height
		if title != "" {
			budget -= 2
		}
		if rows > budget {
			// one row makes way for the overflow note
			rows = budget - 1
			if rows < 1 {
				rows = 1
			}
			overflow = len(bins) - rows
		}
	}

	labels := make([]string, rows)
	counts := make([]string, rows)
	labelWidth, countWidth := 0, 0
	var maxN int64
	for i := 0; i < rows; i++ {
		labels[i] = fmt.Sprintf("%s to %s", formatEdge(bins[i].Min), formatEdge(bins[i].Max))
		counts[i] = strconv.FormatInt(bins[i].N, 10)
		if w := ansi.StringWidth(labels[i]); w > labelWidth {
			labelWidth = w
		}
		if w := ansi.StringWidth(counts[i]); w > countWidth {
			countWidth = w
		}
		if bins[i].N > maxN {
			maxN = bins[i].N
		}
	}

	barArea := size.Width - labelWidth - countWidth - 3
	if barArea < 1 {
		barArea = 1
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(titleStyle.Render(truncateTo(title, size.Width)))
		b.WriteString("\n\n")
	}
	for i := 0; i < rows; i++ {
		length := 0
		if maxN > 0 && bins[i].N > 0 {
			length = int(float64(bins[i].N) / float64(maxN) * float64(barArea))
			if length < 1 {
				length = 1
			}
		}
		b.WriteString(padTo(labels[i], labelWidth))
		b.WriteString(" ")
		b.WriteString(barStyle.Render(strings.Repeat("█", length)))
		b.WriteString(strings.Repeat(" ", barArea-length+1))
		b.WriteString(countStyle.Render(padTo(counts[i], countWidth)))
		if i < rows-1 || overflow > 0 {
			b.WriteString("\n")
		}
	}
	if overflow > 0 {
		b.WriteString(countStyle.Render(fmt.Sprintf("+ %d more buckets", overflow)))
	}
	return place(b.String(), size)
}

func formatEdge(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func place(content string, size surface.Size) string {
	if size.Width <= 0 || size.Height <= 0 {
		return content
	}
	return lipgloss.Place(size.Width, size.Height, lipgloss.Center, lipgloss.Center, content)
}

// padTo pads s with spaces to the given visual width.
func padTo(s string, width int) string {
	w := ansi.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func truncateTo(s string, width int) string {
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "...")
}
