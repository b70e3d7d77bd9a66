package sync

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/dfoursync/internal/config"
	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/domain"
)

// Report is what a run shows before applying anything
type Report struct {
	Snapshots int               `json:"-" yaml:"-"`
	Changes   []domain.Change   `json:"changes" yaml:"changes"`
	Conflicts []domain.Conflict `json:"conflicts" yaml:"conflicts"`
	// Previews maps a change name to a content diff
	Previews map[string]string `json:"-" yaml:"-"`
}

// csvHeader matches the serialized keys of domain.Change
var csvHeader = []string{"name", "type", "source", "target", "topic", "bfsNumber", "local_date", "remote_date"}

// Render writes the report in the given format
func Render(w io.Writer, format config.OutputFormat, r Report) error {
	if r.Changes == nil {
		r.Changes = []domain.Change{}
	}
	if r.Conflicts == nil {
		r.Conflicts = []domain.Conflict{}
	}

	switch format {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case config.OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case config.OutputCSV:
		return renderCSV(w, r.Changes)
	default:
		return renderText(w, r)
	}
}

func renderCSV(w io.Writer, changes []domain.Change) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range changes {
		record := []string{
			c.Name,
			string(c.Kind),
			c.Source,
			c.Target,
			c.Topic,
			strconv.Itoa(c.BfsNumber),
			formatDate(c.LocalDate),
			formatDate(c.RemoteDate),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

var (
	downloadColor = color.New(color.FgGreen)
	uploadColor   = color.New(color.FgCyan)
	conflictColor = color.New(color.FgRed, color.Bold)
	headerColor   = color.New(color.Bold)
	addedColor    = color.New(color.FgGreen)
	removedColor  = color.New(color.FgRed)
)

func renderText(w io.Writer, r Report) error {
	_, _ = headerColor.Fprintf(w, "%d snapshot(s) found\n", r.Snapshots)

	for _, c := range r.Changes {
		target := c.Target
		if target == "" {
			target = "(new)"
		}
		line := fmt.Sprintf("%-17s %-24s %s -> %s\n", c.Kind, c.Name, c.Source, target)
		if c.Kind.IsDownload() {
			_, _ = downloadColor.Fprint(w, line)
		} else {
			_, _ = uploadColor.Fprint(w, line)
		}
		if preview, ok := r.Previews[c.Name]; ok && preview != "" {
			writePreview(w, preview)
		}
	}

	for _, c := range r.Conflicts {
		_, _ = conflictColor.Fprintf(w, "%-17s %-24s content differs with equal timestamps (%s), merge %s and pk %s manually\n",
			"conflict", c.Name, c.Modified.Format(time.RFC3339), c.LocalPath, c.RemotePK)
	}

	if len(r.Changes) == 0 && len(r.Conflicts) == 0 {
		_, err := fmt.Fprintln(w, "Everything is up to date.")
		return err
	}
	return nil
}

func writePreview(w io.Writer, preview string) {
	for _, line := range strings.Split(strings.TrimRight(preview, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			_, _ = addedColor.Fprintln(w, "    "+line)
		case strings.HasPrefix(line, "-"):
			_, _ = removedColor.Fprintln(w, "    "+line)
		default:
			_, _ = fmt.Fprintln(w, "    "+line)
		}
	}
}

// previewContext is the number of unchanged lines kept around a change
const previewContext = 3

// ContentDiff returns a line diff turning from into to, both rendered the
// way downloaded files are written. Long unchanged runs are elided.
func ContentDiff(from, to map[string]any) (string, error) {
	a, err := datapackage.MarshalPretty(from)
	if err != nil {
		return "", err
	}
	b, err := datapackage.MarshalPretty(to)
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(string(a), string(b))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var sb strings.Builder
	for i, d := range diffs {
		text := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			for _, l := range text {
				sb.WriteString("+" + l + "\n")
			}
		case diffmatchpatch.DiffDelete:
			for _, l := range text {
				sb.WriteString("-" + l + "\n")
			}
		case diffmatchpatch.DiffEqual:
			writeContext(&sb, text, i > 0, i < len(diffs)-1)
		}
	}
	return sb.String(), nil
}

// writeContext keeps previewContext lines next to neighbouring changes
func writeContext(sb *strings.Builder, lines []string, afterChange, beforeChange bool) {
	var head, tail []string
	if afterChange {
		head = lines[:min(previewContext, len(lines))]
		lines = lines[len(head):]
	}
	if beforeChange {
		n := min(previewContext, len(lines))
		tail = lines[len(lines)-n:]
		lines = lines[:len(lines)-n]
	}

	for _, l := range head {
		sb.WriteString(" " + l + "\n")
	}
	if len(lines) > 0 {
		sb.WriteString(" ...\n")
	}
	for _, l := range tail {
		sb.WriteString(" " + l + "\n")
	}
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
