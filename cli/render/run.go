package render

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/pithecene-io/wptdiff/types"
)

// renderRun prints the comparison summary: one row per test, then the video.
func (r *Renderer) renderRun(result *types.RunResult) error {
	fmt.Fprintln(r.out, r.styles.heading("Comparison "+result.RunID))
	fmt.Fprintln(r.out)

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tURL\tTEST ID\tSTATE\tREPORT")
	for _, task := range result.Tasks {
		report := ""
		if detail := result.Tests[task.ID]; detail != nil {
			report = stringField(detail, "webReportUrl")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			orDash(task.Label), task.URL, task.ID, r.styles.state(string(task.State)), orDash(report))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(result.Video) == 0 && len(result.Player) == 0 {
		return nil
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.styles.heading("Video"))
	w = tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, key := range videoKeys(result.Video) {
		fmt.Fprintf(w, "%s:\t%s\n", r.styles.label(key), stringField(result.Video, key))
	}
	if len(result.Player) > 0 {
		fmt.Fprintf(w, "%s:\t%d fields\n", r.styles.label("player"), len(result.Player))
	}
	return w.Flush()
}

// videoKeys lists the scalar keys of the video detail in sorted order.
func videoKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, float64, bool:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
