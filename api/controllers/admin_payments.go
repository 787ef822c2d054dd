package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/donations-backend/api/responses"
	"github.com/angelmondragon/donations-backend/api/validators"
	"github.com/angelmondragon/donations-backend/internal/payments"
	"github.com/angelmondragon/donations-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/donations-backend/pkg/errors"
	"github.com/angelmondragon/donations-backend/pkg/logger"
)

// AdminListPayments lists orders across members, filtered by flow, status
// and creation window.
func AdminListPayments(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		input, err := adminListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.AdminList(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminDeletePayment is the only way an order record is removed.
func AdminDeletePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
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

		if err := svc.AdminDelete(r.Context(), orderID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// AdminPaymentStats reports counts and collected totals per flow.
func AdminPaymentStats(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.Stats(r.Context(), payments.StatsFilter{From: from, To: to})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

const maxSearchLen = 100

func adminListInput(r *http.Request) (payments.AdminListInput, error) {
	var input payments.AdminListInput
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("flow")); raw != "" {
		flow, err := enums.ParsePaymentFlow(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid flow").WithDetails(map[string]any{"field": "flow"})
		}
		input.Flow = &flow
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"})
		}
		input.Status = &status
	}

	input.Query = validators.SanitizeString(query.Get("q"), maxSearchLen)

	var err error
	if input.From, err = validators.ParseQueryTime(r, "from"); err != nil {
		return input, err
	}
	if input.To, err = validators.ParseQueryTime(r, "to"); err != nil {
		return input, err
	}
	if input.Params, err = paginationParams(r); err != nil {
		return input, err
	}
	return input, nil
}
