// Package response turns playground results into HTTP responses.
package response

import (
	"net/http"
	"strconv"
	"unicode/utf8"
)

const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeWasm = "application/wasm"
)

// Payload is a fully decided response: nothing about it changes once built.
type Payload struct {
	Status      int
	ContentType string
	Body        []byte
}

// Encoder builds payloads and writes them with the CORS headers the
// playground page needs.
type Encoder struct {
	maxOutput int
	origin    string
}

func NewEncoder(maxOutput int, origin string) *Encoder {
	return &Encoder{maxOutput: maxOutput, origin: origin}
}

// Text builds a text payload, truncated to the output limit.
func (e *Encoder) Text(status int, body string) Payload {
	return Payload{
		Status:      status,
		ContentType: ContentTypeText,
		Body:        []byte(Truncate(body, e.maxOutput)),
	}
}

// Wasm builds a 200 module payload. Module bytes are never truncated.
func (e *Encoder) Wasm(data []byte) Payload {
	return Payload{
		Status:      http.StatusOK,
		ContentType: ContentTypeWasm,
		Body:        data,
	}
}

// Write sends p. Content-Length is always explicit.
func (e *Encoder) Write(w http.ResponseWriter, p Payload) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", e.origin)
	h.Set("Content-Type", p.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(p.Body)))
	if p.ContentType == ContentTypeWasm {
		h.Set("Access-Control-Expose-Headers", "Content-Length")
	}
	w.WriteHeader(p.Status)
	_, _ = w.Write(p.Body)
}

// Preflight answers a CORS preflight request.
func (e *Encoder) Preflight(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", e.origin)
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

// Truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
