package httpserver

import (
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/moshih/nitro-oprf/crypto"
)

// QuoteSource produces raw attestation quotes for a report-data input.
type QuoteSource interface {
	RawQuote(reportData [crypto.ReportDataSize]byte) ([]byte, error)
}

// QuoteHandler serves raw quotes over HTTP for hosts where only this
// process holds the quoting device. Consumed by attest.RemoteTDXProvider.
type QuoteHandler struct {
	Source QuoteSource
	Log    *slog.Logger
}

// NewQuoteHandler creates a handler backed by source.
func NewQuoteHandler(source QuoteSource, log *slog.Logger) *QuoteHandler {
	return &QuoteHandler{Source: source, Log: log}
}

// RegisterRoutes mounts the quote endpoint.
func (h *QuoteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/attest/{reportData}", h.handleAttest)
}

// handleAttest decodes the hex report data from the URL and responds with
// the raw quote blob.
func (h *QuoteHandler) handleAttest(w http.ResponseWriter, r *http.Request) {
	decoded, err := hex.DecodeString(chi.URLParam(r, "reportData"))
	if err != nil || len(decoded) > crypto.ReportDataSize {
		http.Error(w, "report data must be up to 64 hex-encoded bytes", http.StatusBadRequest)
		return
	}

	var reportData [crypto.ReportDataSize]byte
	copy(reportData[:], decoded)

	quote, err := h.Source.RawQuote(reportData)
	if err != nil {
		h.Log.Error("generating quote", "err", err)
		http.Error(w, "quote generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(quote)
}
