package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"

	scoringsvc "github.com/panbanda/rehabscore/internal/service/scoring"
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

// ResultView renders one ScoreResult. Scale is optional; when set, domains
// and composites appear in definition order under their display names.
type ResultView struct {
	Result *models.ScoreResult
	Scale  *scale.Scale
	// Status is the instance state behind the result: completed when read
	// from the store, scored for an unsaved computation.
	Status models.Status
	// Cached is set when the result came from the result cache.
	Cached bool
}

func (v *ResultView) RenderData() any {
	return v.Result
}

func (v *ResultView) RenderText(w io.Writer, colored bool) error {
	return v.report(colored).RenderText(w, colored)
}

func (v *ResultView) RenderMarkdown(w io.Writer) error {
	return v.report(false).RenderMarkdown(w)
}

type row struct {
	code, name string
}

func (v *ResultView) domains() []row {
	if v.Scale != nil {
		out := make([]row, 0, len(v.Scale.Domains))
		for _, d := range v.Scale.Domains {
			out = append(out, row{code: string(d.Code), name: displayName(d.Name, string(d.Code))})
		}
		return out
	}
	return sortedRows(v.Result.RawScores)
}

func (v *ResultView) composites() []row {
	if v.Scale != nil {
		out := make([]row, 0, len(v.Scale.Composites))
		for _, c := range v.Scale.Composites {
			out = append(out, row{code: c.Code, name: displayName(c.Name, c.Code)})
		}
		return out
	}
	return sortedRows(v.Result.Composites)
}

func sortedRows[V any](m map[string]V) []row {
	out := make([]row, 0, len(m))
	for code := range m {
		out = append(out, row{code: code, name: code})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out
}

func displayName(name, code string) string {
	if name != "" {
		return name
	}
	return code
}

func label(c models.Classification, colored bool) string {
	if c.Label == "" {
		return "-"
	}
	if colored {
		return SeverityColor(c.Severity, c.Label)
	}
	return c.Label
}

func score(x float64) string {
	return strconv.FormatFloat(x, 'f', 0, 64)
}

func pct(x float64) string {
	return strconv.FormatFloat(x, 'f', 1, 64)
}

func (v *ResultView) report(colored bool) *Report {
	r := v.Result
	title := "Assessment " + r.InstanceID
	if r.InstanceID == "" {
		title = "Assessment"
	}

	summary := []Field{
		{"Scale", r.ScaleID},
		{"Age group", fmt.Sprintf("%s (%s norms)", r.AgeGroup, r.Gender)},
		{"Overall", label(r.Overall, colored)},
	}
	if c, ok := r.Composites[r.PrimaryIndex]; ok {
		summary = append(summary, Field{"Primary", fmt.Sprintf("%s %s (percentile %s)", r.PrimaryIndex, score(c.Value), pct(r.Percentiles[r.PrimaryIndex]))})
	}
	summary = append(summary, Field{"Validity", verdictText(r.Validity.Verdict, colored)})
	if v.Status != "" {
		summary = append(summary, Field{"Status", string(v.Status)})
	}
	if v.Cached {
		summary = append(summary, Field{"Source", "cache"})
	}

	var domainRows [][]string
	prorated := false
	for _, d := range v.domains() {
		raw, ok := r.RawScores[d.code]
		if !ok {
			continue
		}
		if raw.Insufficient {
			domainRows = append(domainRows, []string{d.name, "-", "-", "-", "insufficient data",
				fmt.Sprintf("%d/%d", raw.Answered, raw.Expected)})
			continue
		}
		risk := "validity"
		if c, ok := r.DomainRisk[d.code]; ok {
			risk = label(c, colored)
		}
		rawText := score(raw.Value)
		if raw.Extrapolated {
			rawText += "*"
			prorated = true
		}
		domainRows = append(domainRows, []string{d.name, rawText, score(r.StandardScores[d.code]),
			pct(r.Percentiles[d.code]), risk, r.NormTiers[d.code]})
	}
	domains := NewTable("Domains", []string{"Domain", "Raw", "Standard", "Percentile", "Risk", "Norms"}, domainRows, nil)
	if prorated {
		domains.WithNotes("* prorated from the answered items")
	}

	var compositeRows [][]string
	for _, c := range v.composites() {
		cs, ok := r.Composites[c.code]
		if !ok {
			continue
		}
		members := fmt.Sprintf("%d/%d", cs.ValidMembers, cs.Members)
		if cs.LowConfidence {
			members += " (low confidence)"
		}
		compositeRows = append(compositeRows, []string{c.name, score(cs.Value), pct(r.Percentiles[c.code]),
			label(r.CompositeRisk[c.code], colored), members})
	}

	report := &Report{
		Title:    title,
		Subtitle: v.subtitle(),
		Data:     r,
		Blocks: []Renderable{
			&Panel{Title: "Summary", Fields: summary},
			domains,
			NewTable("Composites", []string{"Composite", "Score", "Percentile", "Risk", "Members"}, compositeRows, nil),
			validityPanel(r.Validity),
			interpretationPanel(r.Interpretation),
		},
	}
	if len(r.Recommendations) > 0 {
		items := make([]string, len(r.Recommendations))
		for i, rec := range r.Recommendations {
			items[i] = fmt.Sprintf("[%s] %s", rec.Priority, rec.Text)
		}
		report.Blocks = append(report.Blocks, &Panel{Title: "Recommendations", Items: items, Ordered: true})
	}
	if len(r.Warnings) > 0 {
		report.Blocks = append(report.Blocks, &Panel{Title: "Warnings", Items: r.Warnings})
	}
	return report
}

// subtitle names the scale version and scoring time when known.
func (v *ResultView) subtitle() string {
	var parts []string
	if v.Scale != nil && v.Scale.Name != "" {
		name := v.Scale.Name
		if v.Scale.Version != "" {
			name += " v" + v.Scale.Version
		}
		parts = append(parts, name)
	}
	if !v.Result.ScoredAt.IsZero() {
		parts = append(parts, "scored "+v.Result.ScoredAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return strings.Join(parts, ", ")
}

func verdictText(v models.ValidityVerdict, colored bool) string {
	if !colored {
		return string(v)
	}
	switch v {
	case models.VerdictAcceptable:
		return color.GreenString(string(v))
	case models.VerdictCaution:
		return color.YellowString(string(v))
	default:
		return color.RedString(string(v))
	}
}

func validityPanel(v models.Validity) *Panel {
	flag := func(b bool) string {
		if b {
			return "raised"
		}
		return "ok"
	}
	return &Panel{Title: "Validity", Fields: []Field{
		{"Verdict", string(v.Verdict)},
		{"Defensiveness", flag(v.Defensiveness)},
		{"Inconsistency", fmt.Sprintf("%s (%d pairs)", flag(v.Inconsistency), v.InconsistentPairs)},
		{"Random responding", fmt.Sprintf("%s (repeat ratio %.2f)", flag(v.RandomResponding), v.RepeatRatio)},
	}}
}

func interpretationPanel(in models.Interpretation) *Panel {
	p := &Panel{Title: "Interpretation", Text: in.Overall}
	if len(in.Strengths) > 0 {
		p.Panels = append(p.Panels, Panel{Title: "Strengths", Items: in.Strengths})
	}
	if len(in.Concerns) > 0 {
		p.Panels = append(p.Panels, Panel{Title: "Concerns", Items: in.Concerns})
	}
	if in.ValidityCaveat != "" {
		p.Panels = append(p.Panels, Panel{Title: "Validity caveat", Text: in.ValidityCaveat})
	}
	return p
}

// ScaleSummary is the listing row of one scale definition.
type ScaleSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Version    string `json:"version"`
	Metric     string `json:"metric"`
	Domains    int    `json:"domains"`
	Items      int    `json:"items"`
	AgeMonths  string `json:"age_months"`
	Digest     string `json:"digest"`
	Primary    string `json:"primary_index"`
	Direction  string `json:"direction"`
	Composites int    `json:"composites"`
}

// SummarizeScale builds the listing row of s.
func SummarizeScale(s *scale.Scale) ScaleSummary {
	sum := ScaleSummary{
		ID:         s.ID,
		Name:       s.Name,
		Version:    s.Version,
		Metric:     string(s.Metric.Kind),
		Domains:    len(s.Domains),
		Items:      s.ItemCount(),
		Digest:     s.Digest(),
		Composites: len(s.Composites),
		Direction:  "higher is worse",
	}
	if s.HigherIsBetter {
		sum.Direction = "higher is better"
	}
	if n := len(s.AgeBands); n > 0 {
		sum.AgeMonths = fmt.Sprintf("%d-%d", s.AgeBands[0].MinMonths, s.AgeBands[n-1].MaxMonths)
	}
	if c, ok := s.PrimaryComposite(); ok {
		sum.Primary = c.Code
	}
	return sum
}

// ScalesTable renders the scale listing.
func ScalesTable(scales []*scale.Scale) *Table {
	rows := make([][]string, 0, len(scales))
	data := make([]ScaleSummary, 0, len(scales))
	for _, s := range scales {
		sum := SummarizeScale(s)
		data = append(data, sum)
		rows = append(rows, []string{sum.ID, sum.Name, sum.Version, sum.Metric,
			strconv.Itoa(sum.Domains), strconv.Itoa(sum.Items), sum.AgeMonths, sum.Primary})
	}
	return NewTable("Scales",
		[]string{"ID", "Name", "Version", "Metric", "Domains", "Items", "Age (months)", "Primary"},
		rows, data)
}

// BatchView renders the outcome of a batch score.
type BatchView struct {
	Report *scoringsvc.BatchReport
}

type batchData struct {
	Results  []*models.ScoreResult `json:"results"`
	Failures []batchFailure        `json:"failures,omitempty"`
	Summary  scoringsvc.Summary    `json:"summary"`
}

type batchFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (v *BatchView) RenderData() any {
	d := batchData{Results: v.Report.Results, Summary: v.Report.Summary}
	for _, f := range v.Report.Failed {
		d.Failures = append(d.Failures, batchFailure{ID: f.ID, Error: f.Err.Error()})
	}
	return d
}

func (v *BatchView) RenderText(w io.Writer, colored bool) error {
	return v.report(colored).RenderText(w, colored)
}

func (v *BatchView) RenderMarkdown(w io.Writer) error {
	return v.report(false).RenderMarkdown(w)
}

func (v *BatchView) report(colored bool) *Report {
	rows := make([][]string, 0, len(v.Report.Results))
	for _, r := range v.Report.Results {
		primary := "-"
		if c, ok := r.Composites[r.PrimaryIndex]; ok {
			primary = score(c.Value)
		}
		rows = append(rows, []string{r.InstanceID, r.ScaleID, primary, label(r.Overall, colored),
			verdictText(r.Validity.Verdict, colored)})
	}

	sum := v.Report.Summary
	fields := []Field{
		{"Scored", strconv.Itoa(sum.Scored)},
		{"Failed", strconv.Itoa(sum.Failed)},
		{"Primary mean", pct(sum.PrimaryMean)},
		{"Primary median", score(sum.PrimaryMedian)},
	}
	verdicts := make([]string, 0, len(sum.Verdicts))
	for verdict, n := range sum.Verdicts {
		verdicts = append(verdicts, fmt.Sprintf("%s=%d", verdict, n))
	}
	sort.Strings(verdicts)
	if len(verdicts) > 0 {
		fields = append(fields, Field{"Verdicts", strings.Join(verdicts, ", ")})
	}

	report := &Report{
		Title: "Batch scoring",
		Blocks: []Renderable{
			NewTable("Results", []string{"Instance", "Scale", "Primary", "Overall", "Validity"}, rows, nil),
			&Panel{Title: "Summary", Fields: fields},
		},
	}
	if len(v.Report.Failed) > 0 {
		failures := make([]string, len(v.Report.Failed))
		for i, f := range v.Report.Failed {
			failures[i] = f.Error()
		}
		report.Blocks = append(report.Blocks, &Panel{Title: "Failures", Items: failures})
	}
	return report
}
