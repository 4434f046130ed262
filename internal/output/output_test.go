package output

import (
	"bytes"
	"strings"
	"testing"
)

type counts struct {
	Catalog int `json:"catalog" yaml:"catalog"`
	Pending int `json:"pending" yaml:"pending"`
}

func (c counts) Table() ([]string, [][]string) {
	return []string{"Table", "Count"}, [][]string{{"catalog", "12"}, {"pending", "3"}}
}

func TestTo(t *testing.T) {
	data := counts{Catalog: 12, Pending: 3}

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatJSON, []string{`"catalog": 12`, `"pending": 3`}},
		{FormatYAML, []string{"catalog: 12", "pending: 3"}},
		{FormatTable, []string{"Table", "Count", "catalog", "12", "pending"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := To(&buf, tt.format, data); err != nil {
				t.Fatalf("To() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestTo_TableFallsBackToYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := To(&buf, FormatTable, map[string]int{"tagged": 4}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "tagged: 4") {
		t.Errorf("expected yaml fallback, got %s", buf.String())
	}
}

func TestSetFormat(t *testing.T) {
	defer SetFormat("")

	if err := SetFormat("json"); err != nil {
		t.Fatal(err)
	}
	if GetFormat() != FormatJSON || !IsStructured() {
		t.Errorf("format = %s", GetFormat())
	}
	if err := SetFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := SetFormat(""); err != nil || GetFormat() != DefaultFormat {
		t.Errorf("empty format should reset to default, got %s", GetFormat())
	}
}

func TestRenderTable_Empty(t *testing.T) {
	if RenderTable(nil, nil) != "" {
		t.Error("expected empty render for no headers")
	}
}
