package v1

import (
	"errors"
	"net/http"

	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"
	"cod-fulfillment/pkg/utils"

	"github.com/google/uuid"
)

// writeUsecaseError maps domain errors to HTTP statuses. Anything unknown is
// logged and reported as a 500 without internals.
func writeUsecaseError(w http.ResponseWriter, r *http.Request, err error) {
	var ineligible *domain.IneligibleError
	switch {
	case errors.As(err, &ineligible):
		utils.WriteErrorCode(w, http.StatusUnprocessableEntity, string(ineligible.Reason), ineligible.Error())

	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrCODOrderNotFound),
		errors.Is(err, domain.ErrFeeRuleNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrCollectionNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, domain.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "Forbidden")

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrDiscrepancyReasonRequired),
		errors.Is(err, domain.ErrIDVerificationRequired):
		utils.WriteError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, domain.ErrNoFeeRule):
		utils.WriteErrorCode(w, http.StatusUnprocessableEntity, string(domain.ReasonUnsupportedRegion), err.Error())

	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDepositReferenceConflict),
		errors.Is(err, domain.ErrCollectionAlreadyRecorded),
		errors.Is(err, domain.ErrAttemptAlreadyReleased),
		errors.Is(err, domain.ErrVerificationCeilingReached),
		errors.Is(err, domain.ErrStaleVersion):
		utils.WriteError(w, http.StatusConflict, err.Error())

	default:
		logger.WithContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func currentUser(r *http.Request) *domain.User {
	user, _ := r.Context().Value(domain.UserContextKey).(*domain.User)
	return user
}

// pathID reads a UUID path value, answering 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := r.PathValue(name)
	if _, err := uuid.Parse(id); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid "+name)
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
