package v1

import (
	"net/http"
	"strconv"

	"cod-fulfillment/internal/domain"
	"cod-fulfillment/internal/usecase"
	"cod-fulfillment/pkg/utils"
)

type FeeRuleHandler struct {
	feeUC *usecase.FeeRuleUsecase
}

func NewFeeRuleHandler(uc *usecase.FeeRuleUsecase) *FeeRuleHandler {
	return &FeeRuleHandler{feeUC: uc}
}

// GET /api/v1/admin/cod/fee-rules?active=true&province=
func (h *FeeRuleHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := domain.FeeRuleFilter{Province: r.URL.Query().Get("province")}
	if v := r.URL.Query().Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "active must be a boolean")
			return
		}
		filter.ActiveOnly = active
	}

	rules, err := h.feeUC.List(r.Context(), filter)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, domain.Response{Success: true, Data: rules})
}

// GET /api/v1/admin/cod/fee-rules/{id}
func (h *FeeRuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rule, err := h.feeUC.Get(r.Context(), id)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, rule)
}

// POST /api/v1/admin/cod/fee-rules
func (h *FeeRuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req usecase.FeeRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rule, err := h.feeUC.Create(r.Context(), req)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, rule)
}

// PUT /api/v1/admin/cod/fee-rules/{id}
func (h *FeeRuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req usecase.FeeRuleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rule, err := h.feeUC.Update(r.Context(), id, req)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, rule)
}

// DELETE /api/v1/admin/cod/fee-rules/{id} deactivates the rule.
func (h *FeeRuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.feeUC.Deactivate(r.Context(), id); err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Fee rule deactivated"})
}
