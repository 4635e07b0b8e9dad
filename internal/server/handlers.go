package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/vanshika/mint/internal/database"
	"github.com/vanshika/mint/internal/domain"
	"github.com/vanshika/mint/internal/generator"
	"github.com/vanshika/mint/internal/service"
)

// maxBodyBytes bounds create request bodies.
const maxBodyBytes = 1 << 20

// GeneratorControl is the subset of the background generator exposed over HTTP.
type GeneratorControl interface {
	Start() bool
	Stop() bool
	Status() generator.Status
}

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger    *slog.Logger
	service   *service.TransactionService
	generator GeneratorControl
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, svc *service.TransactionService, gen GeneratorControl) *APIHandlers {
	return &APIHandlers{
		logger:    logger,
		service:   svc,
		generator: gen,
	}
}

func (h *APIHandlers) register(r *mux.Router, protect func(http.Handler) http.Handler) {
	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodPost, "/create_transactions", h.createTransaction},
		{http.MethodGet, "/get_transactions/{transaction_id}", h.getTransaction},
		{http.MethodGet, "/search_transaction_by_amount", h.searchByAmount},
		{http.MethodGet, "/search_transaction_by_date_range", h.searchByDateRange},
		{http.MethodGet, "/transactions/search_by_type", h.searchByType},
		{http.MethodGet, "/transactions/summary", h.summary},
		{http.MethodGet, "/transactions/total_amount", h.totalAmount},
		{http.MethodPost, "/cron/start", h.startGenerator},
		{http.MethodPost, "/cron/stop", h.stopGenerator},
		{http.MethodGet, "/cron/status", h.generatorStatus},
	}
	for _, route := range routes {
		r.Handle(route.path, protect(route.handler)).Methods(route.method)
	}
}

type createTransactionRequest struct {
	Amount            decimal.Decimal    `json:"amount"`
	SenderID          string             `json:"sender_id"`
	DestinationID     string             `json:"destination_id"`
	Type              string             `json:"type"`
	Currency          string             `json:"currency"`
	Country           string             `json:"country"`
	Reference         string             `json:"reference,omitempty"`
	PromotionCodeUsed bool               `json:"promotion_code_used,omitempty"`
	OriginDevice      *domain.DeviceData `json:"origin_device_data,omitempty"`
	DestinationDevice *domain.DeviceData `json:"destination_device_data,omitempty"`
	Tags              []domain.Tag       `json:"tags,omitempty"`
}

func (req createTransactionRequest) toServiceInput() service.TransactionInput {
	return service.TransactionInput{
		Amount:            req.Amount,
		SenderID:          req.SenderID,
		DestinationID:     req.DestinationID,
		Type:              req.Type,
		Currency:          req.Currency,
		Country:           req.Country,
		Reference:         req.Reference,
		PromotionCodeUsed: req.PromotionCodeUsed,
		OriginDevice:      req.OriginDevice,
		DestinationDevice: req.DestinationDevice,
		Tags:              req.Tags,
	}
}

func (h *APIHandlers) createTransaction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var (
		payload createTransactionRequest
		err     error
	)
	if isJSON(r) {
		err = decodeJSON(r, &payload)
	} else {
		payload, err = decodeForm(r)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.service.Create(r.Context(), payload.toServiceInput())
	if err != nil {
		h.fail(w, r, err, "create transaction")
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

func (h *APIHandlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["transaction_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "transaction_id must be an integer")
		return
	}

	tx, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "get transaction")
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (h *APIHandlers) searchByAmount(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("amount"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number")
		return
	}

	txs, err := h.service.SearchByAmount(r.Context(), amount)
	if err != nil {
		h.fail(w, r, err, "search transactions by amount")
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

func (h *APIHandlers) searchByDateRange(w http.ResponseWriter, r *http.Request) {
	rng, err := service.ParseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		h.fail(w, r, err, "parse date range")
		return
	}

	txs, err := h.service.SearchByDateRange(r.Context(), rng)
	if err != nil {
		h.fail(w, r, err, "search transactions by date range")
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

func (h *APIHandlers) searchByType(w http.ResponseWriter, r *http.Request) {
	txType := r.URL.Query().Get("type")
	if strings.TrimSpace(txType) == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	txs, err := h.service.SearchByType(r.Context(), txType)
	if err != nil {
		h.fail(w, r, err, "search transactions by type")
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

func (h *APIHandlers) summary(w http.ResponseWriter, r *http.Request) {
	rng, err := service.ParseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		h.fail(w, r, err, "parse date range")
		return
	}

	summaries, err := h.service.Summary(r.Context(), rng)
	if err != nil {
		h.fail(w, r, err, "summarise transactions")
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (h *APIHandlers) totalAmount(w http.ResponseWriter, r *http.Request) {
	rng, err := service.ParseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		h.fail(w, r, err, "parse date range")
		return
	}

	total, err := h.service.TotalAmount(r.Context(), rng)
	if err != nil {
		h.fail(w, r, err, "total transaction amount")
		return
	}
	respondJSON(w, http.StatusOK, total)
}

type generatorResponse struct {
	Message string           `json:"message"`
	Status  generator.Status `json:"status"`
}

func (h *APIHandlers) startGenerator(w http.ResponseWriter, r *http.Request) {
	msg := "generator already running"
	if h.generator.Start() {
		msg = "generator started"
	}
	respondJSON(w, http.StatusOK, generatorResponse{Message: msg, Status: h.generator.Status()})
}

func (h *APIHandlers) stopGenerator(w http.ResponseWriter, r *http.Request) {
	msg := "generator not running"
	if h.generator.Stop() {
		msg = "generator stopped"
	}
	respondJSON(w, http.StatusOK, generatorResponse{Message: msg, Status: h.generator.Status()})
}

func (h *APIHandlers) generatorStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.generator.Status())
}

// fail maps service errors onto HTTP statuses. Storage errors are logged and
// replaced by a generic message.
func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error, action string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, service.ErrDuplicateTransaction):
		writeError(w, http.StatusConflict, "transaction id already exists")
	case errors.Is(err, database.ErrAcquireTimeout):
		h.logger.Warn("failed to "+action, "error", err, "requestId", RequestIDFrom(r.Context()))
		writeError(w, http.StatusServiceUnavailable, "database busy, retry later")
	default:
		h.logger.Error("failed to "+action, "error", err, "requestId", RequestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeForm reads the url-encoded or multipart form variant of a create request.
func decodeForm(r *http.Request) (createTransactionRequest, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return createTransactionRequest{}, errors.New("invalid form body")
	}

	req := createTransactionRequest{
		SenderID:      r.PostFormValue("sender_id"),
		DestinationID: r.PostFormValue("destination_id"),
		Type:          r.PostFormValue("type"),
		Currency:      r.PostFormValue("currency"),
		Country:       r.PostFormValue("country"),
		Reference:     r.PostFormValue("reference"),
	}

	raw := strings.TrimSpace(r.PostFormValue("amount"))
	if raw == "" {
		return createTransactionRequest{}, errors.New("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return createTransactionRequest{}, errors.New("amount must be a decimal number")
	}
	req.Amount = amount

	if v := strings.TrimSpace(r.PostFormValue("promotion_code_used")); v != "" {
		used, err := strconv.ParseBool(v)
		if err != nil {
			return createTransactionRequest{}, errors.New("promotion_code_used must be a boolean")
		}
		req.PromotionCodeUsed = used
	}
	return req, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}
