package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"JSON", FormatJSON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"toon", FormatTOON},
		{"TOON", FormatTOON},
		{"", FormatText},
		{"pdf", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewFormatterWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	f, err := NewFormatter(FormatJSON, path, true)
	if err != nil {
		t.Fatalf("NewFormatter() error: %v", err)
	}
	if f.Colored() {
		t.Error("file output should never be colored")
	}
	if err := f.Output(map[string]int{"scored": 3}); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"scored": 3`) {
		t.Errorf("file content = %q", data)
	}
}

func TestNewFormatterInvalidPath(t *testing.T) {
	if _, err := NewFormatter(FormatText, "/nonexistent/dir/out.txt", false); err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestFormatterDispatch(t *testing.T) {
	report := &Report{
		Title:    "Assessment a1",
		Blocks:   []Renderable{domainTable()},
		Data:     map[string]string{"instance_id": "a1"},
	}

	tests := []struct {
		format Format
		want   string
	}{
		{FormatText, "Assessment a1\n============="},
		{FormatMarkdown, "# Assessment a1"},
		{FormatJSON, `"instance_id": "a1"`},
		{FormatTOON, "instance_id: a1"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			f := NewWriterFormatter(tt.format, &buf, false)
			if err := f.Output(report); err != nil {
				t.Fatalf("Output() error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, buf.String())
			}
		})
	}
}

func TestFormatterOutputRawMarkdown(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFormatter(FormatMarkdown, &buf, false)
	if err := f.Output([]string{"behavior"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "```json\n") || !strings.HasSuffix(buf.String(), "```\n") {
		t.Errorf("raw markdown output = %q", buf.String())
	}
}

func TestMarshalTOONUsesJSONNames(t *testing.T) {
	type payload struct {
		ScaleID string `json:"scale_id"`
	}
	out, err := MarshalTOON(payload{ScaleID: "anxiety"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "scale_id: anxiety") {
		t.Errorf("MarshalTOON() = %q", out)
	}
}

func TestSeverityColorKeepsText(t *testing.T) {
	for sev := 0; sev <= 3; sev++ {
		if got := SeverityColor(sev, "at_risk"); !strings.Contains(got, "at_risk") {
			t.Errorf("SeverityColor(%d) = %q", sev, got)
		}
	}
}

func TestJSONOutputIsValid(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFormatter(FormatJSON, &buf, false)
	if err := f.Output(domainTable()); err != nil {
		t.Fatal(err)
	}
	var rows []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}
}
