package handler

//go:generate mockgen -source=order.go -destination=mocks/order_mock.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rookgm/paywatch/internal/logger"
	"github.com/rookgm/paywatch/internal/middleware"
	"github.com/rookgm/paywatch/internal/models"
	"go.uber.org/zap"
)

type OrderService interface {
	// CreateOrder creates pending order for catalogue product
	CreateOrder(ctx context.Context, userID int64, username, productKey string) (*models.Order, error)
	// SelectAsset prices order in asset and assigns receiving address
	SelectAsset(ctx context.Context, userID int64, code string, asset models.Asset) (*models.Order, error)
	// GetOrder returns order of user
	GetOrder(ctx context.Context, userID int64, code string) (*models.Order, error)
}

// OrderHandler represents HTTP handler for order-related requests
type OrderHandler struct {
	svc OrderService
}

// NewOrderHandler creates new OrderHandler instance
func NewOrderHandler(svc OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type createOrderRequest struct {
	Pack string `json:"pack"`
}

type selectAssetRequest struct {
	Asset string `json:"asset"`
}

// OrderResp is order view returned to the front end
type OrderResp struct {
	Code           string `json:"code"`
	PackLabel      string `json:"pack_label"`
	FiatPrice      string `json:"fiat_price"`
	Status         string `json:"status"`
	Asset          string `json:"asset,omitempty"`
	RequiredAmount string `json:"required_amount,omitempty"`
	Address        string `json:"address,omitempty"`
	TxID           string `json:"txid,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// SelectAssetResp is payment instruction for buyer
type SelectAssetResp struct {
	Code           string `json:"code"`
	Asset          string `json:"asset"`
	RequiredAmount string `json:"required_amount"`
	Address        string `json:"address"`
}

// CreateOrder creates order for pack
// 201 — заказ создан;
// 400 — неверный формат запроса;
// 401 — пользователь не аутентифицирован;
// 422 — неизвестный пакет;
// 500 — внутренняя ошибка сервера.
func (oh *OrderHandler) CreateOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := middleware.AuthPayload(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pack == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		order, err := oh.svc.CreateOrder(r.Context(), payload.UserID, payload.Username, req.Pack)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, newOrderResp(order))
	}
}

// SelectAsset sets settlement asset of order
// 200 — адрес и сумма к оплате;
// 400 — неверный формат запроса;
// 401 — пользователь не аутентифицирован;
// 403 — заказ другого пользователя;
// 404 — заказ не найден;
// 409 — заказ уже оплачен;
// 422 — актив не поддерживается;
// 503 — курсы недоступны.
func (oh *OrderHandler) SelectAsset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := middleware.AuthPayload(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req selectAssetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		asset, err := models.ParseAsset(req.Asset)
		if err != nil {
			http.Error(w, "asset not supported", http.StatusUnprocessableEntity)
			return
		}

		order, err := oh.svc.SelectAsset(r.Context(), payload.UserID, chi.URLParam(r, "code"), asset)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SelectAssetResp{
			Code:           order.Code,
			Asset:          order.Asset.String(),
			RequiredAmount: order.RequiredAmount.StringFixed(8),
			Address:        *order.ReceiveAddress,
		})
	}
}

// GetOrder returns order view
// 200 — успешная обработка запроса;
// 401 — пользователь не аутентифицирован;
// 403 — заказ другого пользователя;
// 404 — заказ не найден.
func (oh *OrderHandler) GetOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := middleware.AuthPayload(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		order, err := oh.svc.GetOrder(r.Context(), payload.UserID, chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newOrderResp(order))
	}
}

func newOrderResp(order *models.Order) OrderResp {
	resp := OrderResp{
		Code:      order.Code,
		PackLabel: order.ProductLabel,
		FiatPrice: order.FiatPrice.StringFixed(2),
		Status:    order.Status,
		CreatedAt: order.CreatedAt.Format(time.RFC3339),
	}
	if order.HasAsset() {
		resp.Asset = order.Asset.String()
		resp.RequiredAmount = order.RequiredAmount.StringFixed(8)
		resp.Address = *order.ReceiveAddress
	}
	if order.TxID != nil {
		resp.TxID = *order.TxID
	}
	return resp
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidProduct):
		http.Error(w, "unknown pack", http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrAssetNotSupported):
		http.Error(w, "asset not supported", http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrDataNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	case errors.Is(err, models.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, models.ErrOrderNotPending):
		http.Error(w, "order is not pending", http.StatusConflict)
	case errors.Is(err, models.ErrRatesUnavailable):
		http.Error(w, "rates unavailable", http.StatusServiceUnavailable)
	default:
		logger.Log.Error("order request", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("encode response", zap.Error(err))
	}
}
