package service

import (
	"context"
	"errors"
	"sync"

	"payment-service/internal/domain"
	"payment-service/internal/gateway"
)

var errBoom = errors.New("boom")

// memPurchaseRepo is an in-memory PurchaseRepository with the same
// conditional-update semantics as the Postgres implementation. The mutex
// makes each transition atomic, so the concurrency tests exercise real
// exactly-one-winner behavior.
type memPurchaseRepo struct {
	mu     sync.Mutex
	byGwID map[string]*domain.PurchaseOrder
	byID   map[string]*domain.PurchaseOrder

	failMarkCompleted bool
	failFinishRefund  bool
	failCancelRefund  bool
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{
		byGwID: make(map[string]*domain.PurchaseOrder),
		byID:   make(map[string]*domain.PurchaseOrder),
	}
}

func (r *memPurchaseRepo) Create(ctx context.Context, p domain.PurchaseOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.byGwID[p.GatewayOrderID] = &cp
	r.byID[p.ID] = &cp
	return nil
}

func (r *memPurchaseRepo) GetByGatewayOrderID(ctx context.Context, gwID string) (domain.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byGwID[gwID]
	if !ok {
		return domain.PurchaseOrder{}, domain.ErrOrderNotFound
	}
	return *p, nil
}

func (r *memPurchaseRepo) GetByID(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return domain.PurchaseOrder{}, domain.ErrOrderNotFound
	}
	return *p, nil
}

func (r *memPurchaseRepo) transition(p *domain.PurchaseOrder, from []domain.PurchaseStatus, to domain.PurchaseStatus) bool {
	for _, s := range from {
		if p.Status == s {
			p.Status = to
			return true
		}
	}
	return false
}

func (r *memPurchaseRepo) MarkCompleted(ctx context.Context, gwID, paymentID, signature string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMarkCompleted {
		return false, errBoom
	}
	p, ok := r.byGwID[gwID]
	if !ok {
		return false, nil
	}
	won := r.transition(p, []domain.PurchaseStatus{domain.StatusPending, domain.StatusFailed}, domain.StatusCompleted)
	if won {
		p.GatewayPaymentID = nullString(paymentID)
		p.Signature = nullString(signature)
	}
	return won, nil
}

func (r *memPurchaseRepo) MarkFailed(ctx context.Context, gwID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byGwID[gwID]
	if !ok {
		return false, nil
	}
	return r.transition(p, []domain.PurchaseStatus{domain.StatusPending}, domain.StatusFailed), nil
}

func (r *memPurchaseRepo) BeginRefund(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	return r.transition(p, []domain.PurchaseStatus{domain.StatusCompleted}, domain.StatusRefundPending), nil
}

func (r *memPurchaseRepo) FinishRefund(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFinishRefund {
		return false, errBoom
	}
	p, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	return r.transition(p, []domain.PurchaseStatus{domain.StatusRefundPending}, domain.StatusRefunded), nil
}

func (r *memPurchaseRepo) CancelRefund(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCancelRefund {
		return false, errBoom
	}
	p, ok := r.byID[id]
	if !ok {
		return false, nil
	}
	return r.transition(p, []domain.PurchaseStatus{domain.StatusRefundPending}, domain.StatusCompleted), nil
}

func (r *memPurchaseRepo) BindBuyer(ctx context.Context, id, buyerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byID[id]; ok {
		p.BuyerID = nullString(buyerID)
	}
	return nil
}

// memGrantRepo enforces at most one active grant per (buyer, item).
type memGrantRepo struct {
	mu      sync.Mutex
	grants  []*domain.AccessGrant
	created int
}

func (r *memGrantRepo) Create(ctx context.Context, buyerID string, itemID int64, purchaseID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.BuyerID == buyerID && g.ItemID == itemID && g.Active {
			return false, nil
		}
	}
	r.grants = append(r.grants, &domain.AccessGrant{
		BuyerID: buyerID, ItemID: itemID, PurchaseID: purchaseID, Active: true,
	})
	r.created++
	return true, nil
}

func (r *memGrantRepo) DeactivateByPurchase(ctx context.Context, purchaseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.PurchaseID == purchaseID {
			g.Active = false
		}
	}
	return nil
}

func (r *memGrantRepo) FindActive(ctx context.Context, buyerID string, itemID int64) (domain.AccessGrant, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.grants {
		if g.BuyerID == buyerID && g.ItemID == itemID && g.Active {
			return *g, true, nil
		}
	}
	return domain.AccessGrant{}, false, nil
}

func (r *memGrantRepo) activeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, g := range r.grants {
		if g.Active {
			n++
		}
	}
	return n
}

type memUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byEmail: make(map[string]domain.User)}
}

func (r *memUserRepo) CreateOrFetch(ctx context.Context, u domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byEmail[u.Email]; ok {
		return existing, nil
	}
	r.byEmail[u.Email] = u
	return u, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

type memCatalog struct {
	mu    sync.Mutex
	items map[int64]domain.MagazineItem
	sales map[int64]int
}

func newMemCatalog(items ...domain.MagazineItem) *memCatalog {
	c := &memCatalog{items: make(map[int64]domain.MagazineItem), sales: make(map[int64]int)}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

func (c *memCatalog) GetItem(ctx context.Context, itemID int64) (domain.MagazineItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[itemID]
	if !ok {
		return domain.MagazineItem{}, domain.ErrItemNotFound
	}
	return it, nil
}

func (c *memCatalog) IncrementSales(ctx context.Context, itemID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sales[itemID]++
	return nil
}

func (c *memCatalog) salesOf(itemID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sales[itemID]
}

// mockGateway implements gateway.Client with func fields.
type mockGateway struct {
	CreateOrderFunc func(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*gateway.Order, error)
	FetchOrderFunc  func(ctx context.Context, orderID string) (*gateway.Order, error)
	RefundFunc      func(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*gateway.Refund, error)
	checkoutSecret  string
	webhookSecret   string
}

func (m *mockGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*gateway.Order, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, amount, currency, receipt, notes)
	}
	return &gateway.Order{ID: "order_" + receipt, Amount: amount, Currency: currency, Notes: notes}, nil
}

func (m *mockGateway) FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error) {
	if m.FetchOrderFunc != nil {
		return m.FetchOrderFunc(ctx, orderID)
	}
	return &gateway.Order{ID: orderID, Notes: map[string]string{}}, nil
}

func (m *mockGateway) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*gateway.Refund, error) {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, paymentID, amount, notes)
	}
	return &gateway.Refund{ID: "rfnd_1", PaymentID: paymentID, Amount: amount, Status: "processed"}, nil
}

func (m *mockGateway) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	return gateway.SignCheckout(m.checkoutSecret, orderID, paymentID) == signature
}

func (m *mockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return gateway.SignWebhook(m.webhookSecret, body) == signature
}

type memProducer struct {
	mu     sync.Mutex
	events []string // topic names, in publish order
}

func (p *memProducer) Publish(ctx context.Context, topic, key string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, topic)
	return nil
}

func (p *memProducer) Close() {}

func (p *memProducer) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.events {
		if t == topic {
			n++
		}
	}
	return n
}

type memEmailSender struct {
	mu   sync.Mutex
	sent []string // recipient addresses
}

func (s *memEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, to)
	return nil
}
