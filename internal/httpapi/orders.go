package httpapi

import (
	"net/http"
	"strconv"

	"github.com/safar/fishmart/internal/apperr"
	"github.com/safar/fishmart/internal/events"
	"github.com/safar/fishmart/internal/models"
	"github.com/safar/fishmart/internal/store"
)

type placeOrderRequest struct {
	CartItems []store.CartItem `json:"cart_items"`
}

func placeResult(err error) string {
	switch {
	case err == nil:
		return "placed"
	case apperr.KindOf(err) == apperr.Internal:
		return "error"
	default:
		return "refused"
	}
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, "Error placing order")
		return
	}

	order, err := s.store.PlaceOrder(r.Context(), id.UserID, req.CartItems)
	s.metrics.OrdersPlaced.WithLabelValues(placeResult(err)).Inc()
	if err != nil {
		s.respondError(w, r, err, "Error placing order")
		return
	}

	s.invalidateProducts(r)
	env, err := events.OrderPlaced(order)
	s.publish(r, env, err)

	respondJSON(w, http.StatusCreated, envelope{
		"message":     "Order placed successfully",
		"orderId":     order.ID,
		"totalAmount": order.TotalAmount.StringFixed(2),
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, r, apperr.Invalid("Invalid limit"), "Error fetching orders")
			return
		}
		limit = n
	}

	page, err := s.store.ListOrdersCursor(r.Context(), id.UserID, id.Role, q.Get("cursor"), limit)
	if err != nil {
		s.respondError(w, r, err, "Error fetching orders")
		return
	}

	respondJSON(w, http.StatusOK, envelope{
		"message":     "Orders fetched successfully",
		"orders":      page.Items,
		"next_cursor": page.NextCursor,
		"has_more":    page.HasMore,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	orderID, err := idParam(r, "order")
	if err != nil {
		s.respondError(w, r, err, "Error fetching order")
		return
	}

	order, err := s.store.GetOrder(r.Context(), id.UserID, id.Role, orderID)
	if err != nil {
		s.respondError(w, r, err, "Error fetching order")
		return
	}

	respondJSON(w, http.StatusOK, envelope{"order": order})
}

func (s *Server) handleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	orderID, err := idParam(r, "order")
	if err != nil {
		s.respondError(w, r, err, "Error confirming order")
		return
	}

	order, err := s.store.ConfirmOrder(r.Context(), id.UserID, id.Role, orderID)
	if err != nil {
		s.respondError(w, r, err, "Error confirming order")
		return
	}
	s.decided(r, order)

	respondJSON(w, http.StatusOK, envelope{
		"message":      "Order confirmed successfully",
		"order_id":     order.ID,
		"confirmed_by": id.UserID,
	})
}

func (s *Server) handleRejectOrder(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	orderID, err := idParam(r, "order")
	if err != nil {
		s.respondError(w, r, err, "Error rejecting order")
		return
	}

	order, err := s.store.RejectOrder(r.Context(), id.UserID, id.Role, orderID)
	if err != nil {
		s.respondError(w, r, err, "Error rejecting order")
		return
	}
	s.invalidateProducts(r)
	s.decided(r, order)

	respondJSON(w, http.StatusOK, envelope{
		"message":     "Order rejected successfully",
		"order_id":    order.ID,
		"rejected_by": id.UserID,
	})
}

func (s *Server) decided(r *http.Request, order *models.Order) {
	s.metrics.OrdersDecided.WithLabelValues(order.Status).Inc()
	env, err := events.OrderDecided(order)
	s.publish(r, env, err)
}
