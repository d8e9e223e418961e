package generator

import "testing"

func TestExtractJSONFenced(t *testing.T) {
	text := "Here is the plan:\n```json\n{\"a\": 1}\n```\nDone."
	got, err := ExtractJSON(text)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"a": 1}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONFenceWithoutLanguage(t *testing.T) {
	got, err := ExtractJSON("```\n{\"b\": 2}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"b": 2}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONBalancedScan(t *testing.T) {
	text := `The plan is {"steps": [{"id": "s1"}], "note": "has } inside string"} trailing prose`
	got, err := ExtractJSON(text)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"steps": [{"id": "s1"}], "note": "has } inside string"}` {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONEscapedQuote(t *testing.T) {
	text := `{"msg": "quote \" and brace } stay inside"}`
	got, err := ExtractJSON(text)
	if err != nil {
		t.Fatal(err)
	}
	if got != text {
		t.Errorf("got %q", got)
	}
}

func TestExtractJSONNone(t *testing.T) {
	for _, text := range []string{"", "no json here", "only an [array]", "{unclosed"} {
		if _, err := ExtractJSON(text); err == nil {
			t.Errorf("ExtractJSON(%q) succeeded", text)
		}
	}
}
