package api

import (
	"net/http"

	"tonyukuk-playground/internal/playground"
	"tonyukuk-playground/internal/response"
)

const healthBody = "calisiyor"

type Handlers struct {
	service *playground.Service
	encoder *response.Encoder
}

func NewHandlers(service *playground.Service) *Handlers {
	return &Handlers{
		service: service,
		encoder: service.Encoder(),
	}
}

func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	h.encoder.Write(w, h.service.Run(r.Context(), input(r)))
}

func (h *Handlers) HandleCompileWasm(w http.ResponseWriter, r *http.Request) {
	h.encoder.Write(w, h.service.CompileWasm(r.Context(), input(r)))
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.encoder.Write(w, h.encoder.Text(http.StatusOK, healthBody))
}

func (h *Handlers) HandlePreflight(w http.ResponseWriter, _ *http.Request) {
	h.encoder.Preflight(w)
}

func (h *Handlers) HandleNotFound(w http.ResponseWriter, _ *http.Request) {
	h.encoder.Write(w, h.encoder.Text(http.StatusNotFound, http.StatusText(http.StatusNotFound)))
}

func (h *Handlers) HandleMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	h.encoder.Write(w, h.encoder.Text(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed)))
}

// input hands the body over unread; the declared length is what the
// validator checks first.
func input(r *http.Request) playground.Input {
	return playground.Input{
		RequestID:  RequestIDFromContext(r.Context()),
		Declared:   r.ContentLength,
		Body:       r.Body,
		RemoteAddr: r.RemoteAddr,
	}
}
