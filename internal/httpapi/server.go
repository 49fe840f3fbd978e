// Package httpapi exposes the operator surface: health, metrics, and a
// synchronous transfer-verification endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/soraai/credits-bot/internal/chain"
	"github.com/soraai/credits-bot/internal/payment"
)

// Metrics
var (
	notifyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_requests_total",
		Help: "Synchronous verification requests",
	}, []string{"status"})

	notifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notify_request_duration_seconds",
		Help:    "Verification request latency",
		Buckets: prometheus.DefBuckets,
	})
)

// NotifyRequest is one synchronous verification claim: these senders paid
// these base-unit amounts in this transaction.
type NotifyRequest struct {
	TxHash       string   `json:"tx_hash" validate:"required"`
	FromAccounts []string `json:"from_account" validate:"required,min=1"`
	Amounts      []string `json:"amounts" validate:"required"`
}

// ClaimResult reports the verification outcome for one (sender, amount) pair
type ClaimResult struct {
	From     string `json:"from"`
	Amount   string `json:"amount"`
	Verified bool   `json:"verified"`
}

// NotifyResponse is the verification report
type NotifyResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Results []ClaimResult `json:"results,omitempty"`
}

// Server handles the HTTP operator surface
type Server struct {
	reader     payment.ChainReader
	decoder    *chain.Decoder
	collection common.Address
	validate   *validator.Validate
	log        *slog.Logger

	server *http.Server
}

// NewServer creates a new HTTP server
func NewServer(reader payment.ChainReader, decoder *chain.Decoder, collection common.Address, log *slog.Logger) *Server {
	return &Server{
		reader:     reader,
		decoder:    decoder,
		collection: collection,
		validate:   validator.New(),
		log:        log,
	}
}

// Start starts the HTTP server and shuts it down when the context ends
func (s *Server) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/notify", s.handleNotify)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting http server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleNotify verifies claimed transfers against the transaction's actual
// Transfer events. A read-only mirror of the async monitor: it never touches
// the ledger.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	timer := prometheus.NewTimer(notifyLatency)
	defer timer.ObserveDuration()

	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, NotifyResponse{Message: "invalid JSON"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respond(w, http.StatusBadRequest, NotifyResponse{Message: err.Error()})
		return
	}
	if len(req.FromAccounts) != len(req.Amounts) {
		s.respond(w, http.StatusBadRequest, NotifyResponse{Message: "from_account and amounts length mismatch"})
		return
	}

	receipt, err := s.reader.TransactionReceipt(r.Context(), common.HexToHash(req.TxHash))
	if err == chain.ErrReceiptNotFound {
		s.respond(w, http.StatusNotFound, NotifyResponse{Message: "transaction receipt not found"})
		return
	}
	if err != nil {
		s.log.Error("fetch receipt", "error", err, "tx_hash", req.TxHash)
		s.respond(w, http.StatusBadGateway, NotifyResponse{Message: "node unavailable"})
		return
	}

	events := s.decoder.TransferEvents(receipt)
	if len(events) == 0 {
		s.respond(w, http.StatusBadRequest, NotifyResponse{Message: "no Transfer events found in the transaction"})
		return
	}

	allVerified := true
	results := make([]ClaimResult, 0, len(req.FromAccounts))
	for i, from := range req.FromAccounts {
		amount, err := decimal.NewFromString(req.Amounts[i])
		verified := err == nil && s.claimMatches(events, from, amount)
		if !verified {
			allVerified = false
		}
		results = append(results, ClaimResult{
			From:     from,
			Amount:   req.Amounts[i],
			Verified: verified,
		})
	}

	status := http.StatusOK
	message := "all specified transfers verified successfully"
	if !allVerified {
		status = http.StatusBadRequest
		message = "one or more transfers could not be verified"
	}
	s.respond(w, status, NotifyResponse{
		Success: allVerified,
		Message: message,
		Results: results,
	})
}

// claimMatches reports whether any Transfer event pays the collection wallet
// the claimed base-unit amount from the claimed sender
func (s *Server) claimMatches(events []chain.TransferEvent, from string, amount decimal.Decimal) bool {
	for _, ev := range events {
		if ev.To != s.collection {
			continue
		}
		if !strings.EqualFold(ev.From.Hex(), from) {
			continue
		}
		if decimal.NewFromBigInt(ev.Value, 0).Equal(amount) {
			return true
		}
	}
	return false
}

func (s *Server) respond(w http.ResponseWriter, status int, resp NotifyResponse) {
	notifyRequestsTotal.WithLabelValues(fmt.Sprintf("%d", status)).Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("encode response", "error", err)
	}
}
