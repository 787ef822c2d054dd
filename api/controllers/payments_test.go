package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/donations-backend/api/middleware"
	"github.com/angelmondragon/donations-backend/internal/payments"
	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
	"github.com/angelmondragon/donations-backend/pkg/pagination"
)

type stubPaymentsService struct {
	createFn    func(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error)
	verifyFn    func(ctx context.Context, orderID string, actor *payments.Actor) (*payments.OrderView, error)
	getFn       func(ctx context.Context, orderID string, actor *payments.Actor) (*payments.OrderView, error)
	listMineFn  func(ctx context.Context, actor *payments.Actor, params pagination.Params) (*payments.OrderList, error)
	adminListFn func(ctx context.Context, input payments.AdminListInput) (*payments.OrderList, error)
	deleteFn    func(ctx context.Context, orderID string) error
	statsFn     func(ctx context.Context, filter payments.StatsFilter) (*payments.StatsResult, error)
}

func (s stubPaymentsService) Create(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, input)
	}
	return &payments.CreateOrderResult{}, nil
}

func (s stubPaymentsService) Verify(ctx context.Context, orderID string, actor *payments.Actor) (*payments.OrderView, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, orderID, actor)
	}
	return &payments.OrderView{OrderID: orderID}, nil
}

func (s stubPaymentsService) Get(ctx context.Context, orderID string, actor *payments.Actor) (*payments.OrderView, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actor)
	}
	return &payments.OrderView{OrderID: orderID}, nil
}

func (s stubPaymentsService) ApplyWebhook(ctx context.Context, orderID string, obs payments.Observation) (*payments.OrderView, error) {
	return &payments.OrderView{OrderID: orderID}, nil
}

func (s stubPaymentsService) ListMine(ctx context.Context, actor *payments.Actor, params pagination.Params) (*payments.OrderList, error) {
	if s.listMineFn != nil {
		return s.listMineFn(ctx, actor, params)
	}
	return &payments.OrderList{}, nil
}

func (s stubPaymentsService) AdminList(ctx context.Context, input payments.AdminListInput) (*payments.OrderList, error) {
	if s.adminListFn != nil {
		return s.adminListFn(ctx, input)
	}
	return &payments.OrderList{}, nil
}

func (s stubPaymentsService) AdminDelete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

func (s stubPaymentsService) Stats(ctx context.Context, filter payments.StatsFilter) (*payments.StatsResult, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx, filter)
	}
	return &payments.StatsResult{}, nil
}

func (s stubPaymentsService) SweepPending(ctx context.Context, cutoff time.Time, limit int) (payments.SweepResult, error) {
	return payments.SweepResult{}, nil
}

func memberRequest(method, target, body string, userID uuid.UUID, role enums.MemberRole) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithActor(req.Context(), middleware.Actor{UserID: userID, Role: role}))
}

func withOrderID(req *http.Request, orderID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload.Error.Code
}

const validCustomer = `"customer":{"name":"Asha Rao","email":"asha@example.com","phone":"9876543210"}`

func TestCreateRegistrationPaymentUsesActorAndFee(t *testing.T) {
	userID := uuid.New()
	var got payments.CreateOrderInput
	svc := stubPaymentsService{
		createFn: func(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error) {
			got = input
			return &payments.CreateOrderResult{
				Order:        payments.OrderView{OrderID: "REG_1", Status: enums.OrderStatusPending},
				SessionToken: "session_123",
			}, nil
		},
	}

	req := memberRequest(http.MethodPost, "/api/v1/payments/registration", `{`+validCustomer+`}`, userID, enums.MemberRoleMember)
	resp := httptest.NewRecorder()
	CreateRegistrationPayment(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, enums.PaymentFlowRegistration, got.Flow)
	require.NotNil(t, got.Actor)
	require.Equal(t, userID, got.Actor.UserID)
	require.True(t, got.Amount.IsZero())
	require.Equal(t, "asha@example.com", got.Customer.Email)

	var result payments.CreateOrderResult
	decodeData(t, resp, &result)
	require.Equal(t, "session_123", result.SessionToken)
	require.Equal(t, "REG_1", result.Order.OrderID)
}

func TestCreateMemberDonationRequiresAuthentication(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/donations", strings.NewReader(`{"amount":"500",`+validCustomer+`}`))
	resp := httptest.NewRecorder()
	CreateMemberDonation(stubPaymentsService{}, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateMemberDonationPassesAmountAndPurpose(t *testing.T) {
	var got payments.CreateOrderInput
	svc := stubPaymentsService{
		createFn: func(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error) {
			got = input
			return &payments.CreateOrderResult{}, nil
		},
	}

	req := memberRequest(http.MethodPost, "/api/v1/payments/donations", `{"amount":"500.50","purpose":"library",`+validCustomer+`}`, uuid.New(), enums.MemberRoleMember)
	resp := httptest.NewRecorder()
	CreateMemberDonation(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, enums.PaymentFlowMemberDonation, got.Flow)
	require.True(t, got.Amount.Equal(decimal.RequireFromString("500.50")))
	require.Equal(t, "library", got.Purpose)
}

func TestCreateVisitorDonationValidatesBody(t *testing.T) {
	called := false
	svc := stubPaymentsService{
		createFn: func(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error) {
			called = true
			return &payments.CreateOrderResult{}, nil
		},
	}

	body := `{"amount":"100","pan":"NOTAPAN","customer":{"name":"","email":"bad","phone":"1"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/public/v1/payments", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateVisitorDonation(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.False(t, called)
	require.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, resp))
}

func TestCreateVisitorDonationIsAnonymous(t *testing.T) {
	var got payments.CreateOrderInput
	svc := stubPaymentsService{
		createFn: func(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error) {
			got = input
			return &payments.CreateOrderResult{}, nil
		},
	}

	body := `{"amount":"1000","pan":"ABCDE1234F","address":"12 MG Road, Pune",` + validCustomer + `}`
	req := httptest.NewRequest(http.MethodPost, "/api/public/v1/payments", strings.NewReader(body))
	resp := httptest.NewRecorder()
	CreateVisitorDonation(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Nil(t, got.Actor)
	require.Equal(t, enums.PaymentFlowVisitorDonation, got.Flow)
	require.Equal(t, "ABCDE1234F", got.DonorPAN)
	require.Equal(t, "12 MG Road, Pune", got.DonorAddress)
}

func TestCreateGatewayFailureIsServiceUnavailable(t *testing.T) {
	svc := stubPaymentsService{
		createFn: func(ctx context.Context, input payments.CreateOrderInput) (*payments.CreateOrderResult, error) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "payment gateway unavailable, please retry").
				WithDetails(map[string]any{"orderId": "VDN_ANON_x", "status": "pending"})
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/public/v1/payments", strings.NewReader(`{"amount":"100",`+validCustomer+`}`))
	resp := httptest.NewRecorder()
	CreateVisitorDonation(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, string(pkgerrors.CodeDependency), decodeErrorCode(t, resp))
}

func TestVerifyPaymentPassesActor(t *testing.T) {
	userID := uuid.New()
	svc := stubPaymentsService{
		verifyFn: func(ctx context.Context, orderID string, actor *payments.Actor) (*payments.OrderView, error) {
			require.Equal(t, "MDN_abc", orderID)
			require.Equal(t, userID, actor.UserID)
			receipt := "MDRCP-ABC-XYZ"
			return &payments.OrderView{OrderID: orderID, Status: enums.OrderStatusSuccess, ReceiptNo: &receipt}, nil
		},
	}

	req := withOrderID(memberRequest(http.MethodPost, "/api/v1/payments/MDN_abc/verify", "", userID, enums.MemberRoleMember), "MDN_abc")
	resp := httptest.NewRecorder()
	VerifyPayment(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var view payments.OrderView
	decodeData(t, resp, &view)
	require.Equal(t, enums.OrderStatusSuccess, view.Status)
	require.Equal(t, "MDRCP-ABC-XYZ", *view.ReceiptNo)
}

func TestPublicVerifyPaymentReadsBody(t *testing.T) {
	svc := stubPaymentsService{
		verifyFn: func(ctx context.Context, orderID string, actor *payments.Actor) (*payments.OrderView, error) {
			require.Nil(t, actor)
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment order not found")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/public/v1/payments/verify", strings.NewReader(`{"order_id":"VDN_ANON_missing"}`))
	resp := httptest.NewRecorder()
	PublicVerifyPayment(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetPaymentForbiddenForOtherMember(t *testing.T) {
	svc := stubPaymentsService{
		getFn: func(ctx context.Context, orderID string, actor *payments.Actor) (*payments.OrderView, error) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment order belongs to another member")
		},
	}

	req := withOrderID(memberRequest(http.MethodGet, "/api/v1/payments/REG_x", "", uuid.New(), enums.MemberRoleMember), "REG_x")
	resp := httptest.NewRecorder()
	GetPayment(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusForbidden, resp.Code)
}

func TestListMyPaymentsParsesPagination(t *testing.T) {
	svc := stubPaymentsService{
		listMineFn: func(ctx context.Context, actor *payments.Actor, params pagination.Params) (*payments.OrderList, error) {
			require.Equal(t, 5, params.Limit)
			require.Equal(t, "abc", params.Cursor)
			return &payments.OrderList{Orders: []payments.OrderView{{OrderID: "REG_1"}}, NextCursor: "next"}, nil
		},
	}

	req := memberRequest(http.MethodGet, "/api/v1/payments?limit=5&cursor=abc", "", uuid.New(), enums.MemberRoleMember)
	resp := httptest.NewRecorder()
	ListMyPayments(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var list payments.OrderList
	decodeData(t, resp, &list)
	require.Len(t, list.Orders, 1)
	require.Equal(t, "next", list.NextCursor)
}

func TestListMyPaymentsRejectsBadLimit(t *testing.T) {
	req := memberRequest(http.MethodGet, "/api/v1/payments?limit=1000", "", uuid.New(), enums.MemberRoleMember)
	resp := httptest.NewRecorder()
	ListMyPayments(stubPaymentsService{}, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminListPaymentsParsesFilters(t *testing.T) {
	svc := stubPaymentsService{
		adminListFn: func(ctx context.Context, input payments.AdminListInput) (*payments.OrderList, error) {
			require.Equal(t, enums.PaymentFlowVisitorDonation, *input.Flow)
			require.Equal(t, enums.OrderStatusSuccess, *input.Status)
			require.Equal(t, 2025, input.From.Year())
			require.Nil(t, input.To)
			require.Equal(t, pagination.DefaultLimit, input.Params.Limit)
			require.Equal(t, "asha@example.org", input.Query)
			return &payments.OrderList{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payments?flow=visitor_donation&status=success&from=2025-01-01&q=+asha%40example.org+", nil)
	resp := httptest.NewRecorder()
	AdminListPayments(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminListPaymentsRejectsUnknownFlow(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payments?flow=tips", nil)
	resp := httptest.NewRecorder()
	AdminListPayments(stubPaymentsService{}, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminDeletePayment(t *testing.T) {
	var deleted string
	svc := stubPaymentsService{
		deleteFn: func(ctx context.Context, orderID string) error {
			deleted = orderID
			return nil
		},
	}

	req := withOrderID(httptest.NewRequest(http.MethodDelete, "/api/admin/v1/payments/REG_1", nil), "REG_1")
	resp := httptest.NewRecorder()
	AdminDeletePayment(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, "REG_1", deleted)
}

func TestAdminPaymentStatsPassesWindow(t *testing.T) {
	svc := stubPaymentsService{
		statsFn: func(ctx context.Context, filter payments.StatsFilter) (*payments.StatsResult, error) {
			require.NotNil(t, filter.From)
			require.NotNil(t, filter.To)
			return &payments.StatsResult{SuccessTotal: decimal.RequireFromString("1500")}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/payments/stats?from=2025-01-01&to=2025-02-01", nil)
	resp := httptest.NewRecorder()
	AdminPaymentStats(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var stats payments.StatsResult
	decodeData(t, resp, &stats)
	require.True(t, stats.SuccessTotal.Equal(decimal.RequireFromString("1500")))
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{}

	resp := httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"database": stubPinger{}, "redis": stubPinger{}}, nil).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	HealthReady(cfg, map[string]Pinger{"database": stubPinger{}, "redis": stubPinger{err: errors.New("down")}}, nil).
		ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
