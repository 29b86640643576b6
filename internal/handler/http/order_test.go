package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/rookgm/paywatch/internal/handler/http/mocks"
	"github.com/rookgm/paywatch/internal/middleware"
	"github.com/rookgm/paywatch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderCode = "DRA-20240501-K7Q2"

var createdAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newRequest(t *testing.T, method, target, body, code string, token *models.TokenPayload) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := req.Context()
	if token != nil {
		ctx = middleware.WithAuthPayload(ctx, token)
	}
	if code != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("code", code)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func newOrder() *models.Order {
	return &models.Order{
		ID:           1,
		Code:         orderCode,
		UserID:       7,
		Username:     "buyer",
		ProductLabel: "10 plaques",
		FiatPrice:    decimal.NewFromInt(650),
		Status:       models.OrderStatusPending,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func pricedOrder() *models.Order {
	o := newOrder()
	asset := models.AssetBTC
	amount := decimal.RequireFromString("0.01083333")
	address := "bc1qexampleaddress"
	o.Asset = &asset
	o.RequiredAmount = &amount
	o.ReceiveAddress = &address
	return o
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		token          *models.TokenPayload
		body           string
		setup          func(t *testing.T) *mocks.MockOrderService
		wantStatusCode int
		wantBody       *OrderResp
	}{
		{
			// 201 — заказ создан;
			name:  "valid_request_return_201",
			token: &models.TokenPayload{UserID: 7, Username: "buyer"},
			body:  `{"pack":"pack10"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().CreateOrder(gomock.Any(), int64(7), "buyer", "pack10").Return(newOrder(), nil).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusCreated,
			wantBody: &OrderResp{
				Code:      orderCode,
				PackLabel: "10 plaques",
				FiatPrice: "650.00",
				Status:    models.OrderStatusPending,
				CreatedAt: createdAt.Format(time.RFC3339),
			},
		},
		{
			// 400 — неверный формат запроса;
			name:  "bad_request_return_400",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"pack":`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				return svcMock
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			// 401 — пользователь не аутентифицирован;
			name: "unauthorized_request_return_401",
			body: `{"pack":"pack10"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				return svcMock
			},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			// 422 — неизвестный пакет;
			name:  "unknown_pack_return_422",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"pack":"pack999"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), "pack999").Return(nil, models.ErrInvalidProduct).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			// 500 — внутренняя ошибка сервера.
			name:  "internal_error_return_500",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"pack":"pack1"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().CreateOrder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("db down")).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, http.MethodPost, "/api/orders", tt.body, "", tt.token)
			w := httptest.NewRecorder()

			h := NewOrderHandler(tt.setup(t)).CreateOrder()
			h(w, req)

			res := w.Result()
			defer res.Body.Close()
			assert.Equal(t, tt.wantStatusCode, res.StatusCode)

			if tt.wantBody != nil {
				resBody, err := io.ReadAll(res.Body)
				require.NoError(t, err)

				var got OrderResp
				require.NoError(t, json.Unmarshal(resBody, &got))
				if diff := cmp.Diff(*tt.wantBody, got); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestOrderHandler_SelectAsset(t *testing.T) {
	tests := []struct {
		name           string
		token          *models.TokenPayload
		body           string
		setup          func(t *testing.T) *mocks.MockOrderService
		wantStatusCode int
		wantBody       *SelectAssetResp
	}{
		{
			// 200 — адрес и сумма к оплате;
			name:  "valid_request_return_200",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"asset":"btc"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), int64(7), orderCode, models.AssetBTC).Return(pricedOrder(), nil).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusOK,
			wantBody: &SelectAssetResp{
				Code:           orderCode,
				Asset:          "BTC",
				RequiredAmount: "0.01083333",
				Address:        "bc1qexampleaddress",
			},
		},
		{
			// 400 — неверный формат запроса;
			name:  "bad_request_return_400",
			token: &models.TokenPayload{UserID: 7},
			body:  `asset=BTC`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				return svcMock
			},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			// 401 — пользователь не аутентифицирован;
			name: "unauthorized_request_return_401",
			body: `{"asset":"BTC"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				return svcMock
			},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			// 403 — заказ другого пользователя;
			name:  "foreign_order_return_403",
			token: &models.TokenPayload{UserID: 8},
			body:  `{"asset":"BTC"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), int64(8), orderCode, models.AssetBTC).Return(nil, models.ErrForbidden).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusForbidden,
		},
		{
			// 404 — заказ не найден;
			name:  "unknown_order_return_404",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"asset":"BTC"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, models.ErrDataNotFound).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusNotFound,
		},
		{
			// 409 — заказ уже оплачен;
			name:  "paid_order_return_409",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"asset":"ETH"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), gomock.Any(), gomock.Any(), models.AssetETH).Return(nil, models.ErrOrderNotPending).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			// 422 — актив не поддерживается;
			name:  "unknown_asset_return_422",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"asset":"DOGE"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				return svcMock
			},
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			// 422 — актив не поддерживается (адрес не настроен);
			name:  "disabled_asset_return_422",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"asset":"USDT"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), gomock.Any(), gomock.Any(), models.AssetUSDT).Return(nil, models.ErrAssetNotSupported).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			// 503 — курсы недоступны.
			name:  "rates_unavailable_return_503",
			token: &models.TokenPayload{UserID: 7},
			body:  `{"asset":"BTC"}`,
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().SelectAsset(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, models.ErrRatesUnavailable).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, http.MethodPost, "/api/orders/"+orderCode+"/asset", tt.body, orderCode, tt.token)
			w := httptest.NewRecorder()

			h := NewOrderHandler(tt.setup(t)).SelectAsset()
			h(w, req)

			res := w.Result()
			defer res.Body.Close()
			assert.Equal(t, tt.wantStatusCode, res.StatusCode)

			if tt.wantBody != nil {
				var got SelectAssetResp
				require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
				if diff := cmp.Diff(*tt.wantBody, got); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestOrderHandler_GetOrder(t *testing.T) {
	paid := pricedOrder()
	paid.Status = models.OrderStatusPaid
	txID := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	paid.TxID = &txID

	tests := []struct {
		name           string
		token          *models.TokenPayload
		setup          func(t *testing.T) *mocks.MockOrderService
		wantStatusCode int
		wantBody       *OrderResp
	}{
		{
			// 200 — успешная обработка запроса;
			name:  "paid_order_return_200",
			token: &models.TokenPayload{UserID: 7},
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().GetOrder(gomock.Any(), int64(7), orderCode).Return(paid, nil).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusOK,
			wantBody: &OrderResp{
				Code:           orderCode,
				PackLabel:      "10 plaques",
				FiatPrice:      "650.00",
				Status:         models.OrderStatusPaid,
				Asset:          "BTC",
				RequiredAmount: "0.01083333",
				Address:        "bc1qexampleaddress",
				TxID:           txID,
				CreatedAt:      createdAt.Format(time.RFC3339),
			},
		},
		{
			// 401 — пользователь не аутентифицирован;
			name: "unauthorized_request_return_401",
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().GetOrder(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				return svcMock
			},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			// 403 — заказ другого пользователя;
			name:  "foreign_order_return_403",
			token: &models.TokenPayload{UserID: 8},
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().GetOrder(gomock.Any(), int64(8), orderCode).Return(nil, models.ErrForbidden).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusForbidden,
		},
		{
			// 404 — заказ не найден.
			name:  "unknown_order_return_404",
			token: &models.TokenPayload{UserID: 7},
			setup: func(t *testing.T) *mocks.MockOrderService {
				ctrl := gomock.NewController(t)
				svcMock := mocks.NewMockOrderService(ctrl)
				svcMock.EXPECT().GetOrder(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, models.ErrDataNotFound).Times(1)
				return svcMock
			},
			wantStatusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, http.MethodGet, "/api/orders/"+orderCode, "", orderCode, tt.token)
			w := httptest.NewRecorder()

			h := NewOrderHandler(tt.setup(t)).GetOrder()
			h(w, req)

			res := w.Result()
			defer res.Body.Close()
			assert.Equal(t, tt.wantStatusCode, res.StatusCode)

			if tt.wantBody != nil {
				var got OrderResp
				require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
				if diff := cmp.Diff(*tt.wantBody, got); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name           string
		ping           pingFunc
		wantStatusCode int
	}{
		{name: "storage_up_return_200", ping: func(context.Context) error { return nil }, wantStatusCode: http.StatusOK},
		{name: "storage_down_return_503", ping: func(context.Context) error { return errors.New("refused") }, wantStatusCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Health(tt.ping)(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			res := w.Result()
			defer res.Body.Close()
			assert.Equal(t, tt.wantStatusCode, res.StatusCode)
		})
	}
}
