package v1

import (
	"net/http"
	"strings"

	"cod-fulfillment/internal/usecase"
	"cod-fulfillment/pkg/utils"

	"github.com/google/uuid"
)

// CODHandler serves checkout and the customer's view of a COD order.
type CODHandler struct {
	codUC *usecase.CODUsecase
}

func NewCODHandler(uc *usecase.CODUsecase) *CODHandler {
	return &CODHandler{codUC: uc}
}

// GET /api/v1/cod/quote
func (h *CODHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subtotal, err := utils.ParseDecimal(q.Get("subtotal"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "subtotal must be a number")
		return
	}

	res, err := h.codUC.Quote(r.Context(), usecase.QuoteRequest{
		Province:      q.Get("province"),
		District:      q.Get("district"),
		Subtotal:      subtotal,
		PaymentMethod: q.Get("paymentMethod"),
	})
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

// POST /api/v1/cod/orders
func (h *CODHandler) CreateCODOrder(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreateCODOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := uuid.Parse(strings.TrimSpace(req.OrderID)); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "orderId must be a UUID")
		return
	}

	res, created, err := h.codUC.CreateCODOrder(r.Context(), currentUser(r), req)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.WriteJSON(w, status, res)
}

// GET /api/v1/cod/orders/{orderId}
func (h *CODHandler) GetCODOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}

	detail, err := h.codUC.GetCODOrder(r.Context(), currentUser(r), orderID)
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, detail)
}
