package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// Table is a Renderable score grid. Columns whose cells are all numbers
// (a trailing "*" marker allowed) are right-aligned.
type Table struct {
	Title   string     `json:"-"`
	Headers []string   `json:"-"`
	Rows    [][]string `json:"-"`
	// Notes are legend lines printed under the grid.
	Notes []string `json:"-"`
	Data  any      `json:"data,omitempty"`
}

// NewTable creates a table; data, when non-nil, is what JSON and TOON emit.
func NewTable(title string, headers []string, rows [][]string, data any) *Table {
	return &Table{Title: title, Headers: headers, Rows: rows, Data: data}
}

// WithNotes appends legend lines and returns t.
func (t *Table) WithNotes(notes ...string) *Table {
	t.Notes = append(t.Notes, notes...)
	return t
}

func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	result := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		result[i] = m
	}
	return result
}

// numericColumns reports, per header, whether every filled cell is a number.
// "-" marks a missing score and does not count either way.
func (t *Table) numericColumns() []bool {
	numeric := make([]bool, len(t.Headers))
	for j := range t.Headers {
		seen := false
		numeric[j] = true
		for _, row := range t.Rows {
			if j >= len(row) || row[j] == "-" || row[j] == "" {
				continue
			}
			if _, err := strconv.ParseFloat(strings.TrimSuffix(row[j], "*"), 64); err != nil {
				numeric[j] = false
				break
			}
			seen = true
		}
		numeric[j] = numeric[j] && seen
	}
	return numeric
}

func (t *Table) RenderText(w io.Writer, colored bool) error {
	if t.Title != "" {
		heading(w, t.Title, "-", colored, color.Bold)
	}
	if len(t.Rows) == 0 {
		fmt.Fprintln(w, "(none)")
		return nil
	}

	align := make([]tw.Align, len(t.Headers))
	for j, num := range t.numericColumns() {
		align[j] = tw.AlignLeft
		if num {
			align[j] = tw.AlignRight
		}
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft, PerColumn: align},
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft, PerColumn: align},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{BetweenColumns: tw.Off},
			},
		}),
	)
	table.Header(t.Headers)
	for _, row := range t.Rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, n := range t.Notes {
		if colored {
			color.New(color.Faint).Fprintln(w, n)
		} else {
			fmt.Fprintln(w, n)
		}
	}
	return nil
}

func (t *Table) RenderMarkdown(w io.Writer) error {
	if t.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", t.Title)
	}
	if len(t.Rows) == 0 {
		fmt.Fprint(w, "_none_\n\n")
		return nil
	}

	fmt.Fprintf(w, "| %s |\n", strings.Join(t.Headers, " | "))
	rule := make([]string, len(t.Headers))
	for j, num := range t.numericColumns() {
		rule[j] = "---"
		if num {
			rule[j] = "---:"
		}
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(rule, " | "))
	for _, row := range t.Rows {
		fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | "))
	}
	fmt.Fprintln(w)

	for _, n := range t.Notes {
		fmt.Fprintf(w, "_%s_\n\n", n)
	}
	return nil
}

// Field is one labelled line of a Panel.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Panel is a titled block of aligned fields, a paragraph, and a bullet or
// numbered list, with optional nested panels.
type Panel struct {
	Title   string   `json:"title,omitempty"`
	Fields  []Field  `json:"fields,omitempty"`
	Text    string   `json:"text,omitempty"`
	Items   []string `json:"items,omitempty"`
	Ordered bool     `json:"ordered,omitempty"`
	Panels  []Panel  `json:"panels,omitempty"`
	Data    any      `json:"-"`
}

func (p *Panel) RenderData() any {
	if p.Data != nil {
		return p.Data
	}
	return p
}

func (p *Panel) RenderText(w io.Writer, colored bool) error {
	p.renderText(w, colored, 0)
	return nil
}

// renderText underlines top-level titles; nested panels are indented under
// a "Title:" line.
func (p *Panel) renderText(w io.Writer, colored bool, depth int) {
	indent := strings.Repeat("  ", max(depth-1, 0))
	if p.Title != "" {
		if depth == 0 {
			heading(w, p.Title, "-", colored, color.Bold)
		} else {
			fmt.Fprintf(w, "%s%s:\n", indent, p.Title)
			indent += "  "
		}
	}

	width := 0
	for _, f := range p.Fields {
		width = max(width, len(f.Label))
	}
	for _, f := range p.Fields {
		fmt.Fprintf(w, "%s%-*s %s\n", indent, width+1, f.Label+":", f.Value)
	}
	if p.Text != "" {
		for _, line := range strings.Split(p.Text, "\n") {
			fmt.Fprintf(w, "%s%s\n", indent, line)
		}
	}
	for i, it := range p.Items {
		fmt.Fprintf(w, "%s%s%s\n", indent, p.marker(i), it)
	}
	for _, sub := range p.Panels {
		sub.renderText(w, colored, depth+1)
	}
}

func (p *Panel) marker(i int) string {
	if p.Ordered {
		return strconv.Itoa(i+1) + ". "
	}
	return "- "
}

func (p *Panel) RenderMarkdown(w io.Writer) error {
	p.renderMarkdown(w, 2)
	return nil
}

func (p *Panel) renderMarkdown(w io.Writer, level int) {
	if p.Title != "" {
		fmt.Fprintf(w, "%s %s\n\n", strings.Repeat("#", level), p.Title)
	}
	if len(p.Fields) > 0 {
		for _, f := range p.Fields {
			fmt.Fprintf(w, "- **%s:** %s\n", f.Label, f.Value)
		}
		fmt.Fprintln(w)
	}
	if p.Text != "" {
		fmt.Fprintf(w, "%s\n\n", p.Text)
	}
	if len(p.Items) > 0 {
		for i, it := range p.Items {
			fmt.Fprintf(w, "%s%s\n", p.marker(i), it)
		}
		fmt.Fprintln(w)
	}
	for _, sub := range p.Panels {
		sub.renderMarkdown(w, level+1)
	}
}

// Report is a titled sequence of panels and tables.
type Report struct {
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Blocks   []Renderable `json:"-"`
	Data     any          `json:"data,omitempty"`
}

func (r *Report) RenderData() any {
	if r.Data != nil {
		return r.Data
	}
	parts := make([]any, len(r.Blocks))
	for i, b := range r.Blocks {
		parts[i] = b.RenderData()
	}
	return map[string]any{"title": r.Title, "blocks": parts}
}

func (r *Report) RenderText(w io.Writer, colored bool) error {
	if r.Title != "" {
		heading(w, r.Title, "=", colored, color.Bold, color.FgCyan)
	}
	if r.Subtitle != "" {
		fmt.Fprintln(w, r.Subtitle)
	}
	for _, b := range r.Blocks {
		fmt.Fprintln(w)
		if err := b.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) RenderMarkdown(w io.Writer) error {
	if r.Title != "" {
		fmt.Fprintf(w, "# %s\n\n", r.Title)
	}
	if r.Subtitle != "" {
		fmt.Fprintf(w, "_%s_\n\n", r.Subtitle)
	}
	for _, b := range r.Blocks {
		if err := b.RenderMarkdown(w); err != nil {
			return err
		}
	}
	return nil
}

func heading(w io.Writer, title, rule string, colored bool, attrs ...color.Attribute) {
	if colored {
		color.New(attrs...).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintln(w, strings.Repeat(rule, len(title)))
}
