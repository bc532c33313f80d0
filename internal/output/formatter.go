package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/matthewjhunter/onboard"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	case "":
		return FormatHuman, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	urlStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// JobInfo describes a registered job for listing.
type JobInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (f *Formatter) encode(v any) error {
	return json.NewEncoder(f.out).Encode(v)
}

// OutputRecommendations outputs a served recommendation batch
func (f *Formatter) OutputRecommendations(recs *onboard.Recommendations) error {
	switch f.format {
	case FormatJSON:
		return f.encode(recs)
	case FormatText:
		fmt.Fprintf(f.out, "rec_id=%s\tgenerated_at=%s\n", recs.RecID, recs.GeneratedAt.Format(time.RFC3339))
		for _, it := range recs.Items {
			fmt.Fprintf(f.out, "id=%s\tscore=%.4f\tsource=%s\texplored=%t\ttitle=%s\turl=%s\n",
				it.ItemID, it.Score, it.Source, it.Explored, it.Title, it.URL)
		}
		return nil
	case FormatHuman:
		if len(recs.Items) == 0 {
			fmt.Fprintln(f.out, "No recommendations yet. Ingest some items and run embed-refresh.")
			return nil
		}
		fmt.Fprintln(f.out, headerStyle.Render(fmt.Sprintf("Recommendations (%d)", len(recs.Items))))
		fmt.Fprintln(f.out)
		f.humanItems(recs.Items)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

func (f *Formatter) humanItems(items []onboard.ScoredItem) {
	for i, it := range items {
		title := it.Title
		if title == "" {
			title = it.URL
		}
		marker := ""
		if it.Explored {
			marker = labelStyle.Render(" (explore)")
		}
		fmt.Fprintf(f.out, "%2d. %s %s%s\n", i+1, titleStyle.Render(truncate(title, 80)),
			scoreStyle.Render(fmt.Sprintf("[%.3f]", it.Score)), marker)
		fmt.Fprintf(f.out, "    %s\n", urlStyle.Render(it.URL))
		meta := []string{}
		if it.Source != "" {
			meta = append(meta, "source: "+it.Source)
		}
		if it.PublishedAt != nil {
			meta = append(meta, "published: "+it.PublishedAt.Format("2006-01-02 15:04"))
		}
		if len(meta) > 0 {
			fmt.Fprintf(f.out, "    %s\n", labelStyle.Render(strings.Join(meta, "  ")))
		}
	}
}

// OutputTopics outputs the interest histogram
func (f *Formatter) OutputTopics(topics []onboard.Topic) error {
	switch f.format {
	case FormatJSON:
		if topics == nil {
			topics = []onboard.Topic{}
		}
		return f.encode(topics)
	case FormatText:
		for _, t := range topics {
			fmt.Fprintf(f.out, "token=%s\twt_long=%.4f\twt_short=%.4f\tlast_updated=%s\n",
				t.Token, t.WtLong, t.WtShort, formatTime(t.LastUpdated))
		}
		return nil
	case FormatHuman:
		if len(topics) == 0 {
			fmt.Fprintln(f.out, "No topics recorded")
			return nil
		}
		fmt.Fprintln(f.out, headerStyle.Render(fmt.Sprintf("Topics (%d)", len(topics))))
		f.humanTopics(topics)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

func (f *Formatter) humanTopics(topics []onboard.Topic) {
	maxWt := 0.0
	for _, t := range topics {
		maxWt = max(maxWt, t.WtLong)
	}
	for _, t := range topics {
		n := 0
		if maxWt > 0 {
			n = int(t.WtLong / maxWt * 30)
		}
		fmt.Fprintf(f.out, "  %-24s %s %s\n", truncate(t.Token, 24), barStyle.Render(strings.Repeat("█", n)),
			labelStyle.Render(fmt.Sprintf("long %.3f  short %.3f", t.WtLong, t.WtShort)))
	}
}

// OutputProfile outputs profile vector magnitudes
func (f *Formatter) OutputProfile(p *onboard.Profile) error {
	switch f.format {
	case FormatJSON:
		return f.encode(p)
	case FormatText:
		fmt.Fprintf(f.out, "short=%.6f\tlong=%.6f\n", p.Magnitudes.Short, p.Magnitudes.Long)
		return nil
	case FormatHuman:
		fmt.Fprintln(f.out, headerStyle.Render("Interest profile"))
		fmt.Fprintf(f.out, "  %s %.4f\n", labelStyle.Render("short-term magnitude:"), p.Magnitudes.Short)
		fmt.Fprintf(f.out, "  %s %.4f\n", labelStyle.Render("long-term magnitude: "), p.Magnitudes.Long)
		if p.Magnitudes.Short == 0 && p.Magnitudes.Long == 0 {
			fmt.Fprintln(f.out, "  Profile is empty. Record clicks or seed from bookmarks.")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputClick outputs the outcome of recording a click
func (f *Formatter) OutputClick(res *onboard.ClickResult) error {
	switch f.format {
	case FormatJSON:
		return f.encode(res)
	case FormatText:
		fmt.Fprintf(f.out, "item_id=%s\trecorded=%t\tupdated=%d\n", res.ItemID, res.Recorded, res.Updated)
		return nil
	case FormatHuman:
		if !res.Recorded {
			fmt.Fprintf(f.out, "Click on %s already recorded\n", res.ItemID)
			return nil
		}
		fmt.Fprintf(f.out, "Recorded click on %s (%d topics updated)\n", res.ItemID, res.Updated)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputFeedback outputs the outcome of explicit feedback
func (f *Formatter) OutputFeedback(itemID, signal string, updated int) error {
	switch f.format {
	case FormatJSON:
		return f.encode(map[string]any{"item_id": itemID, "signal": signal, "updated": updated})
	case FormatText:
		fmt.Fprintf(f.out, "item_id=%s\tsignal=%s\tupdated=%d\n", itemID, signal, updated)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Feedback %q on %s adjusted %d topics\n", signal, itemID, updated)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputJobList outputs the registered maintenance jobs
func (f *Formatter) OutputJobList(jobs []JobInfo) error {
	switch f.format {
	case FormatJSON:
		return f.encode(jobs)
	case FormatText:
		for _, j := range jobs {
			fmt.Fprintf(f.out, "name=%s\tdescription=%s\n", j.Name, j.Description)
		}
		return nil
	case FormatHuman:
		fmt.Fprintln(f.out, headerStyle.Render("Jobs"))
		for _, j := range jobs {
			fmt.Fprintf(f.out, "  %-20s %s\n", j.Name, labelStyle.Render(j.Description))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputJobResults outputs the results of one or more job runs
func (f *Formatter) OutputJobResults(results []onboard.JobResult) error {
	switch f.format {
	case FormatJSON:
		if results == nil {
			results = []onboard.JobResult{}
		}
		return f.encode(results)
	case FormatText:
		for _, r := range results {
			fmt.Fprintf(f.out, "job=%s\tprocessed=%d\tdry_run=%t\tduration=%s\n",
				r.Job, r.Processed, r.DryRun, r.Duration)
		}
		return nil
	case FormatHuman:
		for _, r := range results {
			verb := "processed"
			if r.DryRun {
				verb = "would process"
			}
			fmt.Fprintf(f.out, "%s %s %d in %s\n", titleStyle.Render(r.Job), verb, r.Processed,
				r.Duration.Round(time.Millisecond))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputDiscover outputs a discover report
func (f *Formatter) OutputDiscover(rep *onboard.DiscoverReport) error {
	switch f.format {
	case FormatJSON:
		return f.encode(rep)
	case FormatText:
		s := rep.Stats
		fmt.Fprintf(f.out, "items=%d\tembedded=%d\tbookmarks=%d\tclicks=%d\ttopics=%d\trec_logs=%d\n",
			s.Items, s.EmbeddedItems, s.Bookmarks, s.Clicks, s.Topics, s.RecLogs)
		for _, sc := range rep.TopSources {
			fmt.Fprintf(f.out, "source=%s\titems=%d\n", sc.Source, sc.Items)
		}
		fmt.Fprintf(f.out, "short=%.6f\tlong=%.6f\n", rep.Magnitudes.Short, rep.Magnitudes.Long)
		for _, t := range rep.Topics {
			fmt.Fprintf(f.out, "token=%s\twt_long=%.4f\twt_short=%.4f\n", t.Token, t.WtLong, t.WtShort)
		}
		for _, it := range rep.Recommendations {
			fmt.Fprintf(f.out, "id=%s\tscore=%.4f\ttitle=%s\turl=%s\n", it.ItemID, it.Score, it.Title, it.URL)
		}
		return nil
	case FormatHuman:
		s := rep.Stats
		fmt.Fprintln(f.out, headerStyle.Render("Stored data"))
		fmt.Fprintf(f.out, "  items %d (embedded %d)  bookmarks %d  clicks %d  topics %d  served %d\n",
			s.Items, s.EmbeddedItems, s.Bookmarks, s.Clicks, s.Topics, s.RecLogs)
		if len(rep.TopSources) > 0 {
			fmt.Fprintln(f.out)
			fmt.Fprintln(f.out, headerStyle.Render("Top sources"))
			for _, sc := range rep.TopSources {
				fmt.Fprintf(f.out, "  %-30s %d\n", truncate(sc.Source, 30), sc.Items)
			}
		}
		fmt.Fprintln(f.out)
		fmt.Fprintln(f.out, headerStyle.Render("Profile"))
		fmt.Fprintf(f.out, "  short %.4f  long %.4f\n", rep.Magnitudes.Short, rep.Magnitudes.Long)
		if len(rep.Topics) > 0 {
			fmt.Fprintln(f.out)
			fmt.Fprintln(f.out, headerStyle.Render("Topics"))
			f.humanTopics(rep.Topics)
		}
		fmt.Fprintln(f.out)
		fmt.Fprintln(f.out, headerStyle.Render("Would recommend"))
		if len(rep.Recommendations) == 0 {
			fmt.Fprintln(f.out, "  nothing embedded yet")
			return nil
		}
		f.humanItems(rep.Recommendations)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// truncate truncates a string to maxLen runes
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// CommandOutput is the JSON envelope consumed by cron-driven chat delivery.
// An empty Text means there is nothing to deliver.
type CommandOutput struct {
	Text     string            `json:"text"`
	Title    string            `json:"title,omitempty"`
	Format   string            `json:"format,omitempty"`
	User     string            `json:"user,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutputDigest renders a recommendation batch as a markdown digest envelope.
func (f *Formatter) OutputDigest(recs *onboard.Recommendations, user string) error {
	if f.format != FormatJSON {
		return fmt.Errorf("digest output only supports JSON format")
	}

	var text strings.Builder
	metadata := make(map[string]string)

	if len(recs.Items) > 0 {
		fmt.Fprintf(&text, "%d recommended read(s):\n\n", len(recs.Items))
		for _, it := range recs.Items {
			title := it.Title
			if title == "" {
				title = it.URL
			}
			fmt.Fprintf(&text, "- [%s](%s)\n", title, it.URL)
		}
		metadata["rec_id"] = recs.RecID
		metadata["count"] = fmt.Sprintf("%d", len(recs.Items))
	}

	return f.encode(CommandOutput{
		Text:     text.String(),
		Title:    "Reading Digest",
		Format:   "markdown",
		User:     user,
		Metadata: metadata,
	})
}
