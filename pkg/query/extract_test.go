package query

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{name: "well formed", body: `{"data":{"messages":[{"content":"X"}]}}`, want: "X", wantOK: true},
		{name: "first message wins", body: `{"data":{"messages":[{"content":"first"},{"content":"second"}]}}`, want: "first", wantOK: true},
		{name: "empty messages", body: `{"data":{"messages":[]}}`, want: "", wantOK: true},
		{name: "missing data", body: `{"status":"ok"}`, want: "", wantOK: true},
		{name: "messages not array", body: `{"data":{"messages":{"0":{"content":"X"}}}}`, want: "", wantOK: true},
		{name: "first element not object", body: `{"data":{"messages":["X"]}}`, want: "", wantOK: true},
		{name: "content not string", body: `{"data":{"messages":[{"content":42}]}}`, want: "", wantOK: true},
		{name: "content null", body: `{"data":{"messages":[{"content":null}]}}`, want: "", wantOK: true},
		{name: "top level array", body: `[{"data":{}}]`, want: "", wantOK: true},
		{name: "escaped content", body: `{"data":{"messages":[{"content":"line\n\"quoted\""}]}}`, want: "line\n\"quoted\"", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}

			got, ok := Extract(doc)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractAbsentDocument(t *testing.T) {
	got, ok := Extract(nil)
	if ok {
		t.Fatal("expected ok=false for absent document")
	}
	if got != "" {
		t.Fatalf("Extract(nil) = %q, want empty", got)
	}
}

func TestDocumentRaw(t *testing.T) {
	var nilDoc *Document
	if got := nilDoc.Raw(); got != "" {
		t.Fatalf("nil Raw() = %q, want empty", got)
	}

	doc, err := Decode([]byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if got := doc.Raw(); got != `{"a":1}` {
		t.Fatalf("Raw() = %q", got)
	}
}
