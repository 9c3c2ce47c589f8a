package generator

import (
	"errors"
	"testing"
)

func TestRepairBackslashes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no backslashes", `{"a": "plain"}`, `{"a": "plain"}`},
		{"latex command doubled", `{"q": "find \Delta x"}`, `{"q": "find \\Delta x"}`},
		{"valid escape untouched", `{"q": "line\nbreak"}`, `{"q": "line\nbreak"}`},
		{"already doubled untouched", `{"q": "\\mathrm{mol}"}`, `{"q": "\\mathrm{mol}"}`},
		{"mixed", `{"q": "\frac{1}{2} and \n"}`, `{"q": "\\frac{1}{2} and \n"}`},
		{"trailing backslash", `ends with \`, `ends with \\`},
		{"unicode escape untouched", `{"q": "°C"}`, `{"q": "°C"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairBackslashes(tt.input)
			if got != tt.want {
				t.Errorf("RepairBackslashes(%q) = %q, want %q", tt.input, got, tt.want)
			}
			// Valid output must survive a second pass unchanged.
			if again := RepairBackslashes(got); again != got {
				t.Errorf("not idempotent: second pass turned %q into %q", got, again)
			}
		})
	}
}

func TestParseObjectLadder(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantErr bool
	}{
		{"clean json", `{"name": "Paper 1"}`, "name", false},
		{"fenced json", "```json\n{\"name\": \"Paper 1\"}\n```", "name", false},
		{"bare fence", "```\n{\"name\": \"Paper 1\"}\n```", "name", false},
		{"prose wrapped", `Here is the format you asked for: {"name": "Paper 1"} Hope that helps!`, "name", false},
		{"latex backslashes", `{"question_text": "Evaluate \int_0^1 x \, dx"}`, "question_text", false},
		{"prose wrapped with latex", `Sure! {"q": "\Delta H = -57\ \mathrm{kJ}"} done`, "q", false},
		{"empty string", "", "", true},
		{"pure prose", "I cannot produce a question for this topic.", "", true},
		{"array not object", `[1, 2, 3]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := ParseObject(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseObject(%q) = %v, want error", tt.raw, obj)
				}
				var pf *ParseFailure
				if !errors.As(err, &pf) {
					t.Fatalf("error %v is not a *ParseFailure", err)
				}
				if pf.Raw != tt.raw {
					t.Errorf("ParseFailure.Raw = %q, want %q", pf.Raw, tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseObject(%q) error: %v", tt.raw, err)
			}
			if _, ok := obj[tt.wantKey]; !ok {
				t.Errorf("parsed object %v missing key %q", obj, tt.wantKey)
			}
		})
	}
}

func TestDecodeObjectTypeMismatch(t *testing.T) {
	var dest struct {
		Count int `json:"count"`
	}
	err := DecodeObject(`{"count": "twenty"}`, &dest)
	if err == nil {
		t.Fatal("expected error for type mismatch")
	}
	var pf *ParseFailure
	if !errors.As(err, &pf) {
		t.Fatalf("error %v is not a *ParseFailure", err)
	}
}

func TestDecodeObjectRepairedLatex(t *testing.T) {
	var dest struct {
		QuestionText string `json:"question_text"`
	}
	raw := `{"question_text": "Simplify \frac{a^2}{a}"}`
	if err := DecodeObject(raw, &dest); err != nil {
		t.Fatalf("DecodeObject: %v", err)
	}
	if dest.QuestionText != `Simplify \frac{a^2}{a}` {
		t.Errorf("QuestionText = %q", dest.QuestionText)
	}
}
