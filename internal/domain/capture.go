package domain

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// bodyPrefix is prepended to every captured body.
const bodyPrefix = "Body: "

// CapturedRequest is the recorded form of one inbound webhook call. It is a
// value type: stores and subscribers each hold their own copy.
type CapturedRequest struct {
	Method  string `json:"method"`
	Headers string `json:"headers"`
	Body    string `json:"body"`
}

// NewCapturedRequest builds the record for an inbound call. The method is kept
// as data; no validation is applied to any field.
func NewCapturedRequest(method string, header http.Header, body string) CapturedRequest {
	return CapturedRequest{
		Method:  method,
		Headers: FormatHeaders(header),
		Body:    bodyPrefix + body,
	}
}

// FormatHeaders renders a header map as a single deterministic string of the
// form {"name": "value", ...}. Names are lower-cased and sorted; a name with
// several values is repeated once per value, preserving value order.
func FormatHeaders(header http.Header) string {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	first := true
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, v := range header[name] {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(strconv.Quote(lower))
			b.WriteString(": ")
			b.WriteString(strconv.Quote(v))
		}
	}
	b.WriteByte('}')
	return b.String()
}
