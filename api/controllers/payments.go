package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donations-backend/api/middleware"
	"github.com/angelmondragon/donations-backend/api/responses"
	"github.com/angelmondragon/donations-backend/api/validators"
	"github.com/angelmondragon/donations-backend/internal/payments"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
	"github.com/angelmondragon/donations-backend/pkg/logger"
	"github.com/angelmondragon/donations-backend/pkg/pagination"
)

type customerRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"required,phone"`
}

func (c customerRequest) input() payments.CustomerInput {
	return payments.CustomerInput{Name: validators.SanitizeString(c.Name, 100), Email: c.Email, Phone: c.Phone}
}

// Amount is optional for registration; the configured fee applies.
type registrationRequest struct {
	Amount   *decimal.Decimal `json:"amount,omitempty" validate:"omitempty,money"`
	Customer customerRequest  `json:"customer" validate:"required"`
	Note     string           `json:"note,omitempty" validate:"max=500"`
}

type memberDonationRequest struct {
	Amount   decimal.Decimal `json:"amount" validate:"money"`
	Customer customerRequest `json:"customer" validate:"required"`
	Purpose  string          `json:"purpose,omitempty" validate:"max=200"`
	Note     string          `json:"note,omitempty" validate:"max=500"`
}

type visitorDonationRequest struct {
	Amount   decimal.Decimal `json:"amount" validate:"money"`
	Customer customerRequest `json:"customer" validate:"required"`
	Purpose  string          `json:"purpose,omitempty" validate:"max=200"`
	Note     string          `json:"note,omitempty" validate:"max=500"`
	Address  string          `json:"address,omitempty" validate:"max=500"`
	PAN      string          `json:"pan,omitempty" validate:"omitempty,pan"`
}

type verifyRequest struct {
	OrderID string `json:"order_id" validate:"required,max=64"`
}

// CreateRegistrationPayment opens the membership fee order for the caller.
func CreateRegistrationPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload registrationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount := decimal.Zero
		if payload.Amount != nil {
			amount = *payload.Amount
		}

		result, err := svc.Create(r.Context(), payments.CreateOrderInput{
			Flow:     enums.PaymentFlowRegistration,
			Actor:    actor,
			Amount:   amount,
			Customer: payload.Customer.input(),
			Note:     validators.SanitizeString(payload.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CreateMemberDonation opens a donation order attributed to the caller.
func CreateMemberDonation(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload memberDonationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), payments.CreateOrderInput{
			Flow:     enums.PaymentFlowMemberDonation,
			Actor:    actor,
			Amount:   payload.Amount,
			Customer: payload.Customer.input(),
			Purpose:  validators.SanitizeString(payload.Purpose, 200),
			Note:     validators.SanitizeString(payload.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CreateVisitorDonation opens an anonymous donation order. The route is
// public and rate limited.
func CreateVisitorDonation(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload visitorDonationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), payments.CreateOrderInput{
			Flow:         enums.PaymentFlowVisitorDonation,
			Amount:       payload.Amount,
			Customer:     payload.Customer.input(),
			Purpose:      validators.SanitizeString(payload.Purpose, 200),
			Note:         validators.SanitizeString(payload.Note, 500),
			DonorAddress: validators.SanitizeString(payload.Address, 500),
			DonorPAN:     payload.PAN,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListMyPayments returns the caller's orders, newest first.
func ListMyPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListMine(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetPayment returns one order. Members see their own orders, staff see all.
func GetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// VerifyPayment asks the gateway for the order's status and reconciles it.
// A gateway outage still answers 200 with the stored status.
func VerifyPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Verify(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// PublicVerifyPayment verifies a visitor order named in the request body.
func PublicVerifyPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var payload verifyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Verify(r.Context(), strings.TrimSpace(payload.OrderID), nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// PublicGetPayment returns a visitor order without authentication.
func PublicGetPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), orderID, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func actorFromRequest(r *http.Request) (*payments.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok || !actor.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return &payments.Actor{UserID: actor.UserID, Role: actor.Role}, nil
}

func orderIDParam(r *http.Request) (string, error) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return orderID, nil
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
