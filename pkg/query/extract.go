package query

import "github.com/tidwall/gjson"

// Document is a decoded service response.
type Document struct {
	root gjson.Result
}

// Raw returns the JSON text the document was decoded from.
func (d *Document) Raw() string {
	if d == nil {
		return ""
	}

	return d.root.Raw
}

// Extract returns the reply text at data.messages[0].content.
//
// A nil document is absent and reports ok=false. Any other shape mismatch
// degrades to an empty string with ok=true.
func Extract(doc *Document) (string, bool) {
	if doc == nil {
		return "", false
	}

	data := doc.root.Get("data")
	if !data.IsObject() {
		return "", true
	}

	messages := data.Get("messages")
	if !messages.IsArray() {
		return "", true
	}

	first := messages.Get("0")
	if !first.IsObject() {
		return "", true
	}

	content := first.Get("content")
	if content.Type != gjson.String {
		return "", true
	}

	return content.Str, true
}
