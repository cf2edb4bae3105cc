package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hivemarket/honeyshop/internal/audit"
	"github.com/hivemarket/honeyshop/internal/domain/auth"
	"github.com/hivemarket/honeyshop/internal/domain/cart"
	"github.com/hivemarket/honeyshop/internal/domain/customer"
	"github.com/hivemarket/honeyshop/internal/domain/discount"
	"github.com/hivemarket/honeyshop/internal/domain/order"
	"github.com/hivemarket/honeyshop/internal/domain/product"
	"github.com/hivemarket/honeyshop/internal/notify"
)

const testPepper = "test-pepper"
const testAPIKey = "operator-key"

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		for _, p := range m.products {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

type memCartStore struct {
	lines map[string][]cart.Line
}

func (m *memCartStore) Add(_ context.Context, customerID, productID string, qty int) error {
	for i, l := range m.lines[customerID] {
		if l.ProductID == productID {
			m.lines[customerID][i].Quantity += qty
			return nil
		}
	}
	m.lines[customerID] = append(m.lines[customerID], cart.Line{
		CustomerID: customerID, ProductID: productID, Quantity: qty,
	})
	return nil
}

func (m *memCartStore) Increment(_ context.Context, customerID, productID string) error {
	for i, l := range m.lines[customerID] {
		if l.ProductID == productID {
			m.lines[customerID][i].Quantity++
		}
	}
	return nil
}

func (m *memCartStore) Decrement(_ context.Context, customerID, productID string) error {
	for i, l := range m.lines[customerID] {
		if l.ProductID != productID {
			continue
		}
		if l.Quantity <= 1 {
			m.lines[customerID] = append(m.lines[customerID][:i], m.lines[customerID][i+1:]...)
		} else {
			m.lines[customerID][i].Quantity--
		}
		return nil
	}
	return nil
}

func (m *memCartStore) Remove(_ context.Context, customerID, productID string) error {
	for i, l := range m.lines[customerID] {
		if l.ProductID == productID {
			m.lines[customerID] = append(m.lines[customerID][:i], m.lines[customerID][i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memCartStore) List(_ context.Context, customerID string) ([]cart.Line, error) {
	return m.lines[customerID], nil
}

func (m *memCartStore) Clear(_ context.Context, customerID string) error {
	delete(m.lines, customerID)
	return nil
}

type mockCustomerRepo struct{}

func (mockCustomerRepo) Ensure(_ context.Context, _ string) error { return nil }
func (mockCustomerRepo) UpdateContact(_ context.Context, _ string, _ customer.Contact) error {
	return nil
}
func (mockCustomerRepo) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	return &customer.Customer{ID: id}, nil
}

type memCodeRepo struct {
	byCustomer map[string]*discount.Code
}

func (m *memCodeRepo) Get(_ context.Context, customerID string) (*discount.Code, error) {
	c, ok := m.byCustomer[customerID]
	if !ok {
		return nil, discount.ErrNoCode
	}
	cp := *c
	return &cp, nil
}

func (m *memCodeRepo) Insert(_ context.Context, customerID, code string) error {
	if _, ok := m.byCustomer[customerID]; ok {
		return discount.ErrAlreadyIssued
	}
	m.byCustomer[customerID] = &discount.Code{CustomerID: customerID, Code: code}
	return nil
}

func (m *memCodeRepo) MarkUsed(_ context.Context, customerID string) error {
	if c, ok := m.byCustomer[customerID]; ok {
		c.Used = true
	}
	return nil
}

type memOrderRepo struct {
	mu    sync.Mutex
	byID  map[string]*order.Order
	carts *memCartStore
	codes *memCodeRepo
}

func (m *memOrderRepo) CreateCheckout(ctx context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o.DiscountCode != "" {
		if c, ok := m.codes.byCustomer[o.CustomerID]; !ok || c.Used {
			return order.ErrCodeConsumed
		}
		_ = m.codes.MarkUsed(ctx, o.CustomerID)
	}
	cp := *o
	m.byID[o.ID] = &cp
	_ = m.carts.Clear(ctx, o.CustomerID)
	return nil
}

func (m *memOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) SubmitReceipt(_ context.Context, id, receiptRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok || o.Status != order.StatusPendingPayment {
		return false, nil
	}
	o.ReceiptReference = receiptRef
	o.Status = order.StatusReceiptSubmitted
	return true, nil
}

func (m *memOrderRepo) ConfirmPayment(_ context.Context, id string, from []order.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if o.Status == s {
			o.Status = order.StatusPaymentConfirmed
			o.AdminConfirmed = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memOrderRepo) AssignTracking(_ context.Context, id, trackingCode string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok || o.Status != order.StatusPaymentConfirmed {
		return false, nil
	}
	o.TrackingCode = trackingCode
	o.Status = order.StatusShipped
	o.Shipped = true
	return true, nil
}

func (m *memOrderRepo) MarkDelivered(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok || o.Status != order.StatusShipped {
		return false, nil
	}
	o.Status = order.StatusDelivered
	o.Delivered = true
	return true, nil
}

func (m *memOrderRepo) SetRating(_ context.Context, id string, rating int, feedback string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok || o.Status != order.StatusDelivered {
		return false, nil
	}
	o.Rating = &rating
	o.Feedback = feedback
	o.Status = order.StatusRated
	return true, nil
}

type mockKeyRepo struct {
	hash string
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if hash != m.hash {
		return nil, auth.ErrNotFound
	}
	return &auth.APIKeyInfo{ID: "operator", KeyHash: m.hash, Name: "test"}, nil
}

// --- Helpers ---

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	products := &mockProductRepo{products: []product.Product{
		{ID: "p1", Name: "Wildflower Honey 800g", Price: decimal.NewFromInt(95)},
		{ID: "p2", Name: "Thyme Honey 800g", Price: decimal.NewFromInt(95)},
	}}
	carts := &memCartStore{lines: make(map[string][]cart.Line)}
	codes := &memCodeRepo{byCustomer: make(map[string]*discount.Code)}
	customers := mockCustomerRepo{}
	orders := &memOrderRepo{byID: make(map[string]*order.Order), carts: carts, codes: codes}

	ledger := discount.NewLedger(codes, customers)
	cartService := cart.NewService(carts, products, customers)
	orderService := order.NewService(
		order.Config{Policy: discount.DefaultPolicy(), ConfirmRequiresReceipt: true},
		products, carts, customers, ledger, orders,
		notify.NewLogNotifier(zap.NewNop()), audit.Nop{}, zap.NewNop(),
	)

	h, err := NewHandler(products, cartService, ledger, orderService)
	require.NoError(t, err)

	keyRepo := &mockKeyRepo{hash: HashAPIKey(testAPIKey, []byte(testPepper))}
	mux := http.NewServeMux()
	h.Register(mux, OperatorAuth(keyRepo, []byte(testPepper)))
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func placeOrder(t *testing.T, mux *http.ServeMux, customerID string) string {
	t.Helper()

	rec := doJSON(t, mux, http.MethodPost, "/api/customers/"+customerID+"/cart/items",
		addCartItemRequest{ProductID: "p1", Quantity: 2}, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/customers/"+customerID+"/checkout", checkoutRequest{}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	return decodeBody[checkoutResponse](t, rec).Order.ID
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	products := decodeBody[[]productResponse](t, rec)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0].ID)
}

func TestCartEndpoints(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/customers/u1/cart/items",
		addCartItemRequest{ProductID: "p1", Quantity: 2}, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/customers/u1/cart", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	c := decodeBody[cartResponse](t, rec)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(190).Equal(c.Total))

	rec = doJSON(t, mux, http.MethodPost, "/api/customers/u1/cart/items/p1/decrement", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, mux, http.MethodPost, "/api/customers/u1/cart/items/p1/decrement", nil, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/customers/u1/cart", nil, "")
	c = decodeBody[cartResponse](t, rec)
	assert.Empty(t, c.Items)
}

func TestAddCartItem_UnknownProduct(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/customers/u1/cart/items",
		addCartItemRequest{ProductID: "ghost", Quantity: 1}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetDiscountCode_Idempotent(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/customers/u1/discount-code", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody[discountCodeResponse](t, rec)
	assert.Len(t, first.Code, 8)
	assert.False(t, first.Used)

	rec = doJSON(t, mux, http.MethodGet, "/api/customers/u1/discount-code", nil, "")
	second := decodeBody[discountCodeResponse](t, rec)
	assert.Equal(t, first.Code, second.Code)
}

func TestCheckout_EmptyCart(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/customers/u1/checkout", checkoutRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_WithDiscountCode(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/customers/u1/discount-code", nil, "")
	code := decodeBody[discountCodeResponse](t, rec).Code

	rec = doJSON(t, mux, http.MethodPost, "/api/customers/u1/cart/items",
		addCartItemRequest{ProductID: "p1", Quantity: 2}, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/customers/u1/checkout",
		checkoutRequest{DiscountCode: code}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	res := decodeBody[checkoutResponse](t, rec)
	assert.True(t, res.DiscountApplied)
	assert.True(t, decimal.NewFromInt(171).Equal(res.Order.FinalPrice))

	rec = doJSON(t, mux, http.MethodGet, "/api/customers/u1/discount-code", nil, "")
	assert.True(t, decodeBody[discountCodeResponse](t, rec).Used)
}

func TestOrderLifecycle(t *testing.T) {
	mux := newTestMux(t)
	id := placeOrder(t, mux, "u1")

	rec := doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/receipt",
		submitReceiptRequest{ReceiptReference: "receipt-1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "receipt_submitted", decodeBody[orderResponse](t, rec).Status)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/confirm", nil, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payment_confirmed", decodeBody[orderResponse](t, rec).Status)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/tracking",
		assignTrackingRequest{TrackingCode: "TRACK-1"}, testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shipped", decodeBody[orderResponse](t, rec).Status)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/delivery", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delivered", decodeBody[orderResponse](t, rec).Status)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/rating",
		rateOrderRequest{Rating: 5, Feedback: "great honey"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[orderResponse](t, rec)
	assert.Equal(t, "rated", got.Status)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 5, *got.Rating)
}

func TestOperatorAuth(t *testing.T) {
	mux := newTestMux(t)
	id := placeOrder(t, mux, "u1")

	rec := doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/confirm", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/confirm", nil, "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfirm_WrongState(t *testing.T) {
	mux := newTestMux(t)
	id := placeOrder(t, mux, "u1")

	// Strict policy: confirmation before a receipt is a conflict.
	rec := doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/confirm", nil, testAPIKey)
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decodeBody[errorResponse](t, rec)
	assert.Contains(t, body.Message, "pending_payment")
	assert.Contains(t, body.Message, "payment_confirmed")
}

func TestGetOrder_NotFound(t *testing.T) {
	mux := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/orders/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRate_OutOfRange(t *testing.T) {
	mux := newTestMux(t)
	id := placeOrder(t, mux, "u1")

	rec := doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/rating",
		rateOrderRequest{Rating: 6}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitReceipt_EmptyReference(t *testing.T) {
	mux := newTestMux(t)
	id := placeOrder(t, mux, "u1")

	rec := doJSON(t, mux, http.MethodPost, "/api/orders/"+id+"/receipt",
		submitReceiptRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidJSONBody(t *testing.T) {
	mux := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/api/customers/u1/cart/items",
		bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
