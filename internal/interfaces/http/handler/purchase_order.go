package handler

import (
	"context"
	"net/http"
	"time"
	"unicode/utf8"

	apppurchasing "github.com/bakery/backoffice/internal/application/purchasing"
	"github.com/bakery/backoffice/internal/interfaces/http/dto"
	"github.com/bakery/backoffice/internal/interfaces/http/middleware"
	"github.com/bakery/backoffice/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader lets clients name a retried delivery, return or edit
const IdempotencyKeyHeader = "Idempotency-Key"

// maxIdempotencyKeyLength is the limit the request bodies put on sequence
const maxIdempotencyKeyLength = 100

// idempotencyKey reads the Idempotency-Key header. A key longer than the body
// sequence may be is rejected with the same validation error.
func (h *BaseHandler) idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(IdempotencyKeyHeader)
	if utf8.RuneCountInString(key) > maxIdempotencyKeyLength {
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse("Request validation failed", getRequestID(c),
			[]dto.ValidationDetail{{Field: IdempotencyKeyHeader, Message: "Must be at most 100 characters"}}))
		return "", false
	}
	return key, true
}

// PurchaseOrderHandler handles purchase order API endpoints
type PurchaseOrderHandler struct {
	BaseHandler
	orders    *apppurchasing.OrderService
	workflow  *apppurchasing.WorkflowService
	reception *apppurchasing.ReceptionService
	returns   *apppurchasing.ReturnService
	queries   *apppurchasing.QueryService
}

// NewPurchaseOrderHandler creates a new PurchaseOrderHandler
func NewPurchaseOrderHandler(
	orders *apppurchasing.OrderService,
	workflow *apppurchasing.WorkflowService,
	reception *apppurchasing.ReceptionService,
	returns *apppurchasing.ReturnService,
	queries *apppurchasing.QueryService,
) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{
		orders:    orders,
		workflow:  workflow,
		reception: reception,
		returns:   returns,
		queries:   queries,
	}
}

// Routes returns the purchase order route group
func (h *PurchaseOrderHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("purchase-orders", "/purchase-orders").
		POST("", h.Create).
		GET("", h.List).
		GET("/summary", h.GetStatusSummary).
		GET("/number/:po_number", h.GetByNumber).
		GET("/:id", h.GetByID).
		PUT("/:id", h.UpdateDraft).
		POST("/:id/send", h.Send).
		POST("/:id/confirm", h.Confirm).
		POST("/:id/cancel", h.Cancel).
		POST("/:id/close", h.Close).
		POST("/:id/receive", h.ReceiveItem).
		POST("/:id/returns", h.ReturnItem).
		GET("/:id/returns", h.ListReturns).
		GET("/:id/history", h.GetHistory).
		GET("/:id/transitions", h.GetValidTransitions)
}

// listOrdersQuery is the raw query string of List. IDs and dates are
// parsed by hand so a malformed value reports the offending parameter.
type listOrdersQuery struct {
	Status     string `form:"status"`
	SupplierID string `form:"supplier_id"`
	From       string `form:"from"`
	To         string `form:"to"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy    string `form:"order_by" binding:"omitempty,oneof=created_at updated_at po_number status supplier_id total_amount expected_date"`
	OrderDir   string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// Create godoc
// @ID           createPurchaseOrder
// @Summary      Create a draft purchase order
// @Tags         purchase-orders
// @Accept       json
// @Produce      json
// @Param        request body apppurchasing.CreateOrderRequest true "Order header and lines"
// @Success      201 {object} dto.Response{data=apppurchasing.OrderResponse}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response "Supplier not found"
// @Failure      409 {object} dto.Response "PO numbering exhausted"
// @Security     BearerAuth
// @Router       /purchase-orders [post]
func (h *PurchaseOrderHandler) Create(c *gin.Context) {
	var req apppurchasing.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	req.PerformedBy = getActorID(c)

	order, err := h.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, order)
}

// List godoc
// @ID           listPurchaseOrders
// @Summary      List purchase orders
// @Tags         purchase-orders
// @Produce      json
// @Param        status query string false "Order status" Enums(draft, sent, confirmed, partially_received, received, closed, cancelled)
// @Param        supplier_id query string false "Supplier ID" format(uuid)
// @Param        from query string false "Created on or after" format(date)
// @Param        to query string false "Created on or before" format(date)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Sort field" default(created_at)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc) default(desc)
// @Success      200 {object} dto.Response{data=[]apppurchasing.OrderListItemResponse}
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-orders [get]
func (h *PurchaseOrderHandler) List(c *gin.Context) {
	var q listOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := apppurchasing.OrderListFilter{
		Status:   q.Status,
		Page:     q.Page,
		PageSize: q.PageSize,
		OrderBy:  q.OrderBy,
		OrderDir: q.OrderDir,
	}
	if q.SupplierID != "" {
		id, err := uuid.Parse(q.SupplierID)
		if err != nil {
			h.BadRequest(c, "Invalid supplier_id format")
			return
		}
		filter.SupplierID = &id
	}
	var ok bool
	if filter.From, ok = h.parseDate(c, "from", q.From); !ok {
		return
	}
	if filter.To, ok = h.parseDate(c, "to", q.To); !ok {
		return
	}
	if filter.To != nil {
		// inclusive upper bound
		end := filter.To.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}

	page, err := h.queries.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

func (h *PurchaseOrderHandler) parseDate(c *gin.Context, name, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, value); err != nil {
			h.BadRequest(c, "Invalid "+name+" date, expected YYYY-MM-DD")
			return nil, false
		}
	}
	return &t, true
}

// GetByID godoc
// @ID           getPurchaseOrderById
// @Summary      Get purchase order by ID
// @Tags         purchase-orders
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=apppurchasing.OrderResponse}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-orders/{id} [get]
func (h *PurchaseOrderHandler) GetByID(c *gin.Context) {
	id, ok := h.parseOrderID(c)
	if !ok {
		return
	}

	order, err := h.queries.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// GetByNumber godoc
// @ID           getPurchaseOrderByNumber
// @Summary      Get purchase order by PO number
// @Tags         purchase-orders
// @Produce      json
// @Param        po_number path string true "PO number" example(PO-202610-0001)
// @Success      200 {object} dto.Response{data=apppurchasing.OrderResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-orders/number/{po_number} [get]
func (h *PurchaseOrderHandler) GetByNumber(c *gin.Context) {
	order, err := h.queries.GetOrderByNumber(c.Request.Context(), c.Param("po_number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// UpdateDraft godoc
// @ID           updatePurchaseOrderDraft
// @Summary      Replace the header and lines of a draft
// @Tags         purchase-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Param        Idempotency-Key header string false "Replay-safe edit key"
// @Param        request body apppurchasing.UpdateDraftRequest true "New header and lines"
// @Success      200 {object} dto.Response{data=apppurchasing.OrderResponse}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response "Order is no longer a draft"
// @Security     BearerAuth
// @Router       /purchase-orders/{id} [put]
func (h *PurchaseOrderHandler) UpdateDraft(c *gin.Context) {
	id, ok := h.parseOrderID(c)
	if !ok {
		return
	}

	var req apppurchasing.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}
	if key != "" {
		req.Sequence = key
	}
	req.PerformedBy = getActorID(c)

	order, err := h.orders.UpdateDraft(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// Send godoc
// @ID           sendPurchaseOrder
// @Summary      Send a draft to its supplier
// @Tags         purchase-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Param        request body apppurchasing.TransitionRequest false "Optional reason"
// @Success      200 {object} dto.Response{data=apppurchasing.OrderResponse}
// @Failure      404 {object} dto.Response
// @Failure      422 {object} dto.Response "Invalid transition"
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/send [post]
func (h *PurchaseOrderHandler) Send(c *gin.Context) {
	h.transition(c, h.workflow.SendToSupplier)
}

// Confirm godoc
// @ID           confirmPurchaseOrder
// @Summary      Record the supplier's confirmation
// @Tags         purchase-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Param        request body apppurchasing.TransitionRequest false "Optional reason"
// @Success      200 {object} dto.Response{data=apppurchasing.OrderResponse}
// @Failure      404 {object} dto.Response
// @Failure      422 {object} dto.Response "Invalid transition"
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/confirm [post]
func (h *PurchaseOrderHandler) Confirm(c *gin.Context) {
	h.transition(c, h.workflow.ConfirmOrder)
}

// Cancel godoc
// @ID           cancelPurchaseOrder
// @Summary      Cancel an order that has received nothing
// @Tags         purchase-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Param        request body apppurchasing.TransitionRequest false "Cancellation reason"
// @Success      200 {object} dto.Response{data=apppurchasing.OrderResponse}
// @Failure      404 {object} dto.Response
// @Failure      422 {object} dto.Response "Invalid transition or terminal order"
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/cancel [post]
func (h *PurchaseOrderHandler) Cancel(c *gin.Context) {
	h.transition(c, h.workflow.CancelOrder)
}

// Close godoc
// @ID           closePurchaseOrder
// @Summary      Close a fully received order
// @Tags         purchase-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Param        request body apppurchasing.TransitionRequest false "Optional reason"
// @Success      200 {object} dto.Response{data=apppurchasing.OrderResponse}
// @Failure      404 {object} dto.Response
// @Failure      422 {object} dto.Response "Invalid transition or terminal order"
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/close [post]
func (h *PurchaseOrderHandler) Close(c *gin.Context) {
	h.transition(c, h.workflow.CloseOrder)
}

type transitionFunc func(ctx context.Context, id uuid.UUID, req apppurchasing.TransitionRequest) (*apppurchasing.OrderResponse, error)

func (h *PurchaseOrderHandler) transition(c *gin.Context, fn transitionFunc) {
	id, ok := h.parseOrderID(c)
	if !ok {
		return
	}

	var req apppurchasing.TransitionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}
	req.PerformedBy = getActorID(c)

	order, err := fn(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, order)
}

// ReceiveItem godoc
// @ID           receivePurchaseOrderItem
// @Summary      Record a delivery against an order line
// @Description  Stock is incremented in the same transaction. Replaying a delivery with the same key returns the current state.
// @Tags         purchase-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Param        Idempotency-Key header string false "Delivery identifier"
// @Param        request body apppurchasing.ReceiveItemRequest true "Delivered line and quantity"
// @Success      200 {object} dto.Response{data=apppurchasing.ReceiveResultResponse}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response "Concurrent update, retry"
// @Failure      422 {object} dto.Response "Over-receipt or order cannot receive"
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/receive [post]
func (h *PurchaseOrderHandler) ReceiveItem(c *gin.Context) {
	id, ok := h.parseOrderID(c)
	if !ok {
		return
	}

	var req apppurchasing.ReceiveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}
	if key != "" {
		req.Sequence = key
	}
	req.PerformedBy = getActorID(c)

	result, err := h.reception.ReceivePOItem(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ReturnItem godoc
// @ID           returnPurchaseOrderItem
// @Summary      Return received goods to the supplier
// @Description  Stock is decremented in the same transaction. The return ID, or a key derived from Idempotency-Key, makes the call replay-safe.
// @Tags         purchase-orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Param        Idempotency-Key header string false "Return identifier"
// @Param        request body apppurchasing.ReturnItemRequest true "Returned line, quantity and reason"
// @Success      201 {object} dto.Response{data=apppurchasing.ReturnResultResponse}
// @Success      200 {object} dto.Response{data=apppurchasing.ReturnResultResponse} "Replayed"
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response "Over-return or insufficient stock"
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/returns [post]
func (h *PurchaseOrderHandler) ReturnItem(c *gin.Context) {
	id, ok := h.parseOrderID(c)
	if !ok {
		return
	}

	var req apppurchasing.ReturnItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	key, ok := h.idempotencyKey(c)
	if !ok {
		return
	}
	if key != "" && req.ReturnID == nil {
		returnID := uuid.NewSHA1(id, []byte(key))
		req.ReturnID = &returnID
	}
	req.PerformedBy = getActorID(c)

	result, err := h.returns.ProcessReturn(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// ListReturns godoc
// @ID           listPurchaseOrderReturns
// @Summary      List the returns of an order
// @Tags         purchase-orders
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]apppurchasing.ReturnResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/returns [get]
func (h *PurchaseOrderHandler) ListReturns(c *gin.Context) {
	id, ok := h.parseOrderID(c)
	if !ok {
		return
	}

	returns, err := h.queries.ListReturns(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, returns)
}

// GetHistory godoc
// @ID           getPurchaseOrderHistory
// @Summary      Get the audit trail of an order
// @Tags         purchase-orders
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]apppurchasing.HistoryEntryResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/history [get]
func (h *PurchaseOrderHandler) GetHistory(c *gin.Context) {
	id, ok := h.parseOrderID(c)
	if !ok {
		return
	}

	entries, err := h.queries.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// GetValidTransitions godoc
// @ID           getPurchaseOrderTransitions
// @Summary      List the statuses an order can move to
// @Tags         purchase-orders
// @Produce      json
// @Param        id path string true "Purchase Order ID" format(uuid)
// @Success      200 {object} dto.Response{data=apppurchasing.TransitionsResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /purchase-orders/{id}/transitions [get]
func (h *PurchaseOrderHandler) GetValidTransitions(c *gin.Context) {
	id, ok := h.parseOrderID(c)
	if !ok {
		return
	}

	transitions, err := h.workflow.ValidTransitions(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, transitions)
}

// GetStatusSummary godoc
// @ID           getPurchaseOrderStatusSummary
// @Summary      Count orders per status
// @Tags         purchase-orders
// @Produce      json
// @Success      200 {object} dto.Response{data=apppurchasing.StatusSummaryResponse}
// @Security     BearerAuth
// @Router       /purchase-orders/summary [get]
func (h *PurchaseOrderHandler) GetStatusSummary(c *gin.Context) {
	summary, err := h.queries.GetStatusSummary(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}
