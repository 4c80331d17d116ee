package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFormatters(t *testing.T) {
	data := KeyValues{{"session_id", "cmss_x"}, {"expires_in", 1800}, {"device", ""}}

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatTable, []string{"FIELD", "session_id  cmss_x", "expires_in  1800", "device      -"}},
		{FormatJSON, []string{`"session_id": "cmss_x"`, `"expires_in": 1800`}},
		{FormatYAML, []string{"session_id: cmss_x", "expires_in: 1800"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFormatter(tt.format).Format(&buf, data); err != nil {
				t.Fatal(err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestTableFormatter_Map(t *testing.T) {
	var buf bytes.Buffer
	f := &TableFormatter{NoHeaders: true}
	if err := f.Format(&buf, map[string]any{"b": 2, "a": nil}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "a") || !strings.HasSuffix(lines[0], "-") || !strings.HasPrefix(lines[1], "b") {
		t.Errorf("lines = %q", lines)
	}
}

func TestTableFormatter_FallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "[\n  1,\n  2\n]") {
		t.Errorf("output = %q", buf.String())
	}
}
