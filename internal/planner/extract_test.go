package planner

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractObjects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "bare object",
			in:   `{"a":1}`,
			want: []string{`{"a":1}`},
		},
		{
			name: "object inside prose",
			in:   "Here's the plan you asked for:\n```json\n{\"a\":1}\n```\nDone.",
			want: []string{`{"a":1}`},
		},
		{
			name: "braces inside double-quoted strings do not count",
			in:   `{"note":"set {limit} to }10{"}`,
			want: []string{`{"note":"set {limit} to }10{"}`},
		},
		{
			name: "braces inside single-quoted strings do not count",
			in:   `{'note':'a } b'}`,
			want: []string{`{'note':'a } b'}`},
		},
		{
			name: "escaped quote does not close the string",
			in:   `{"a":"say \"hi}\" now"}`,
			want: []string{`{"a":"say \"hi}\" now"}`},
		},
		{
			name: "multiple candidates in order",
			in:   `first {"a":1} then {"b":2}`,
			want: []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name: "nested objects fold into the outer candidate",
			in:   `{"steps":[{"tool":"x","args":{"n":1}}]}`,
			want: []string{`{"steps":[{"tool":"x","args":{"n":1}}]}`},
		},
		{
			name: "stray closing brace ignored",
			in:   `} nothing {"a":1}`,
			want: []string{`{"a":1}`},
		},
		{
			name: "unbalanced candidate yields nothing",
			in:   `{"a": {"b": 1}`,
			want: nil,
		},
		{
			name: "no objects",
			in:   "just words, no json at all",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractObjects(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d candidates %v, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("candidate %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStripTrailingCommas(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"object trailing comma", `{"a":1,}`, `{"a":1}`},
		{"array trailing comma", `[1,2,]`, `[1,2]`},
		{"comma before newline and closer", "{\"a\":1,\n}", "{\"a\":1\n}"},
		{"legit separating comma kept", `{"a":1,"b":2}`, `{"a":1,"b":2}`},
		{"comma inside string untouched", `{"a":"x,}"}`, `{"a":"x,}"}`},
		{"nested trailing commas", `{"a":[1,],"b":{"c":2,},}`, `{"a":[1],"b":{"c":2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTrailingCommas(tt.in); got != tt.want {
				t.Errorf("StripTrailingCommas(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("output of strip parses when input was lenient JSON", func(t *testing.T) {
		in := `{"route":"data_presenter","steps":[{"tool":"top_products","args":{"limit":10,},},],}`
		var v any
		if err := json.Unmarshal([]byte(StripTrailingCommas(in)), &v); err != nil {
			t.Errorf("stripped JSON does not parse: %v", err)
		}
	})
}

func FuzzExtractObjects(f *testing.F) {
	f.Add(`{"a":1}`)
	f.Add(`text {"a":"b}"} more {'c':1,}`)
	f.Add(`{"a":"\\"}{"b":2}`)
	f.Add("}{}{")
	f.Add(`{"nested":{"deep":[{},{}]}}`)

	f.Fuzz(func(t *testing.T, input string) {
		candidates := ExtractObjects(input)
		for _, c := range candidates {
			// Every candidate is a contiguous slice of the input delimited
			// by braces.
			if !strings.Contains(input, c) {
				t.Errorf("candidate %q is not a substring of input", c)
			}
			if len(c) < 2 || c[0] != '{' || c[len(c)-1] != '}' {
				t.Errorf("candidate %q is not brace-delimited", c)
			}
			// Stripping never panics and keeps the length bounded.
			if stripped := StripTrailingCommas(c); len(stripped) > len(c) {
				t.Errorf("strip grew the candidate")
			}
		}
	})
}
