package quizsolver

import (
	"encoding/json"
	"testing"
)

func TestRepairJSONTruncated(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"1":"A","2":"B`, `{"1":"A","2":"B"}`},
		{`{"1":"A","2":"B"`, `{"1":"A","2":"B"}`},
		{`{"1":"A",`, `{"1":"A"}`},
		{`{"1":"A","2":"B"}`, `{"1":"A","2":"B"}`},
	}
	for _, c := range cases {
		got, ok := RepairJSON(c.in)
		if !ok {
			t.Fatalf("RepairJSON(%q) not applicable", c.in)
		}
		if got != c.want {
			t.Errorf("RepairJSON(%q) = %q, want %q", c.in, got, c.want)
		}
		var m map[string]string
		if err := json.Unmarshal([]byte(got), &m); err != nil {
			t.Errorf("repaired output %q is not valid JSON: %v", got, err)
		}
	}
}

func TestRepairJSONNotAnObject(t *testing.T) {
	if _, ok := RepairJSON(`["A","B"]`); ok {
		t.Error("expected repair to refuse non-object input")
	}
	if _, ok := RepairJSON("answer is A"); ok {
		t.Error("expected repair to refuse prose input")
	}
}

func TestStripCodeFences(t *testing.T) {
	in := "```json\n{\"1\":\"A\"}\n```"
	if got := StripCodeFences(in); got != `{"1":"A"}` {
		t.Errorf("StripCodeFences = %q", got)
	}
	if got := StripCodeFences(`{"1":"A"}`); got != `{"1":"A"}` {
		t.Errorf("unfenced input changed: %q", got)
	}
}
