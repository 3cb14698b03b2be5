package v1

import (
	"net/http"

	"cod-fulfillment/internal/domain"
	"cod-fulfillment/internal/usecase"
	"cod-fulfillment/pkg/utils"
)

// AdminCODHandler is the back-office interface: verification calls,
// rescheduling and cash reconciliation.
type AdminCODHandler struct {
	codUC *usecase.CODUsecase
}

func NewAdminCODHandler(uc *usecase.CODUsecase) *AdminCODHandler {
	return &AdminCODHandler{codUC: uc}
}

// GET /api/v1/admin/cod/orders
func (h *AdminCODHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.CODOrderFilter{
		Page:   utils.ParseInt(q.Get("page"), 1),
		Limit:  utils.ParseInt(q.Get("limit"), 20),
		Status: domain.CODStatus(q.Get("status")),
	}

	orders, page, err := h.codUC.ListCODOrders(r.Context(), filter)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.CODOrder{}
	}
	utils.WriteJSON(w, http.StatusOK, domain.Response{Success: true, Data: orders, Meta: page})
}

// GET /api/v1/admin/cod/orders/{orderId}/verifications
func (h *AdminCODHandler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	list, err := h.codUC.ListVerifications(r.Context(), orderID)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, domain.Response{Success: true, Data: list})
}

// GET /api/v1/admin/cod/orders/{orderId}/history
func (h *AdminCODHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	list, err := h.codUC.ListHistory(r.Context(), orderID)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, domain.Response{Success: true, Data: list})
}

// POST /api/v1/admin/cod/orders/{orderId}/verifications
func (h *AdminCODHandler) RecordVerification(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	var req usecase.RecordVerificationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.codUC.RecordVerification(r.Context(), currentUser(r), orderID, req)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, res)
}

// POST /api/v1/admin/cod/orders/{orderId}/reschedule
func (h *AdminCODHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	var req usecase.RescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	attempt, err := h.codUC.Reschedule(r.Context(), currentUser(r), orderID, req)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, attempt)
}

// PATCH /api/v1/admin/cod/collections/{id}/discrepancy
func (h *AdminCODHandler) ResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.codUC.ResolveDiscrepancy(r.Context(), currentUser(r), id, req.Reason)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

// PATCH /api/v1/admin/cod/collections/{id}/pending-deposit
func (h *AdminCODHandler) MarkPendingDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.codUC.MarkPendingDeposit(r.Context(), currentUser(r), id)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}

// PATCH /api/v1/admin/cod/collections/{id}/deposit
func (h *AdminCODHandler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		BankDepositReference string `json:"bankDepositReference"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.codUC.RecordDeposit(r.Context(), currentUser(r), id, req.BankDepositReference)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, c)
}
