package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/squareup-service/internal/domain"
)

// PaymentRepository is an in-memory ports.PaymentRepository keyed by network payment id
type PaymentRepository struct {
	Payments map[string]*domain.Payment
	nextID   int64
	mu       sync.Mutex
}

// NewPaymentRepository creates a repository seeded with payments
func NewPaymentRepository(payments ...*domain.Payment) *PaymentRepository {
	r := &PaymentRepository{Payments: map[string]*domain.Payment{}}
	for _, p := range payments {
		r.nextID++
		if p.ID == 0 {
			p.ID = r.nextID
		}
		r.Payments[p.NetworkPaymentID] = p
	}
	return r
}

func (r *PaymentRepository) Create(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	payment.ID = r.nextID
	copied := *payment
	r.Payments[payment.NetworkPaymentID] = &copied
	return nil
}

func (r *PaymentRepository) GetByID(_ context.Context, id int64) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.Payments {
		if p.ID == id {
			copied := *p
			return &copied, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *PaymentRepository) GetByNetworkID(_ context.Context, networkPaymentID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Payments[networkPaymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *PaymentRepository) ListByOrder(_ context.Context, orderID int64) ([]*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Payment
	for _, p := range r.Payments {
		if p.OrderID == orderID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *PaymentRepository) Update(_ context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Payments[payment.NetworkPaymentID]; !ok {
		return domain.ErrPaymentNotFound
	}
	copied := *payment
	r.Payments[payment.NetworkPaymentID] = &copied
	return nil
}

func (r *PaymentRepository) UpdateStatus(_ context.Context, networkPaymentID string, status domain.PaymentStatus, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Payments[networkPaymentID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.Status = status
	p.UpdatedAt = updatedAt
	return nil
}

func (r *PaymentRepository) AddRefundedAmount(_ context.Context, networkPaymentID string, amount int64, currency string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Payments[networkPaymentID]
	if !ok {
		return 0, domain.ErrPaymentNotFound
	}
	p.RefundedAmount += amount
	p.RefundedCurrency = currency
	return p.RefundedAmount, nil
}

func (r *PaymentRepository) SetCustomerID(_ context.Context, networkPaymentID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.Payments[networkPaymentID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.CustomerID = customerID
	return nil
}

// Snapshot implements Snapshotter
func (r *PaymentRepository) Snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[string]domain.Payment, len(r.Payments))
	for id, p := range r.Payments {
		saved[id] = *p
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.Payments = make(map[string]*domain.Payment, len(saved))
		for id, p := range saved {
			copied := p
			r.Payments[id] = &copied
		}
	}
}

// Get returns the stored payment for assertions, nil if absent
func (r *PaymentRepository) Get(networkPaymentID string) *domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Payments[networkPaymentID]
}

// WebhookEventRepository is an in-memory ports.WebhookEventRepository enforcing unique event ids
type WebhookEventRepository struct {
	Events   map[string]*domain.WebhookEvent
	order    []string
	StoreErr error
	mu       sync.Mutex
}

// NewWebhookEventRepository creates an empty repository
func NewWebhookEventRepository() *WebhookEventRepository {
	return &WebhookEventRepository{Events: map[string]*domain.WebhookEvent{}}
}

func (r *WebhookEventRepository) IsProcessed(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.Events[eventID]
	return ok && e.Processed, nil
}

func (r *WebhookEventRepository) Get(_ context.Context, eventID string) (*domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.Events[eventID]
	if !ok {
		return nil, domain.ErrWebhookEventNotFound
	}
	copied := *e
	return &copied, nil
}

func (r *WebhookEventRepository) Store(_ context.Context, event *domain.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StoreErr != nil {
		return false, r.StoreErr
	}
	if _, ok := r.Events[event.EventID]; ok {
		return false, nil
	}
	copied := *event
	copied.ID = int64(len(r.order) + 1)
	r.Events[event.EventID] = &copied
	r.order = append(r.order, event.EventID)
	return true, nil
}

func (r *WebhookEventRepository) Lock(_ context.Context, eventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.Events[eventID]
	if !ok {
		return false, domain.ErrWebhookEventNotFound
	}
	return e.Processed, nil
}

func (r *WebhookEventRepository) MarkProcessed(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.Events[eventID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	e.Processed = true
	e.ProcessedAt = &now
	return nil
}

func (r *WebhookEventRepository) List(_ context.Context, limit, offset int32) ([]*domain.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WebhookEvent
	for i := len(r.order) - 1 - int(offset); i >= 0 && len(out) < int(limit); i-- {
		copied := *r.Events[r.order[i]]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *WebhookEventRepository) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.order)), nil
}

// Snapshot implements Snapshotter
func (r *WebhookEventRepository) Snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[string]domain.WebhookEvent, len(r.Events))
	for id, e := range r.Events {
		saved[id] = *e
	}
	order := append([]string(nil), r.order...)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.Events = make(map[string]*domain.WebhookEvent, len(saved))
		for id, e := range saved {
			copied := e
			r.Events[id] = &copied
		}
		r.order = order
	}
}

// Event returns the stored event for assertions, nil if absent
func (r *WebhookEventRepository) Event(eventID string) *domain.WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Events[eventID]
}

// HistoryEntry is a captured order history append
type HistoryEntry struct {
	Comment  string
	OrderID  int64
	StatusID int
	Notify   bool
}

// OrderHistory is an in-memory ports.OrderHistory
type OrderHistory struct {
	Statuses map[int64]int
	Entries  []HistoryEntry
	mu       sync.Mutex
}

// NewOrderHistory creates an order history with the given current statuses
func NewOrderHistory(statuses map[int64]int) *OrderHistory {
	if statuses == nil {
		statuses = map[int64]int{}
	}
	return &OrderHistory{Statuses: statuses}
}

func (o *OrderHistory) CurrentStatus(_ context.Context, orderID int64) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Statuses[orderID], nil
}

func (o *OrderHistory) AddHistory(_ context.Context, orderID int64, statusID int, comment string, notify bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Entries = append(o.Entries, HistoryEntry{OrderID: orderID, StatusID: statusID, Comment: comment, Notify: notify})
	o.Statuses[orderID] = statusID
	return nil
}

// Snapshot implements Snapshotter
func (o *OrderHistory) Snapshot() func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	statuses := make(map[int64]int, len(o.Statuses))
	for id, status := range o.Statuses {
		statuses[id] = status
	}
	entries := append([]HistoryEntry(nil), o.Entries...)
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.Statuses = statuses
		o.Entries = entries
	}
}

// SubscriptionRepository is an in-memory ports.SubscriptionRepository
type SubscriptionRepository struct {
	Subscriptions map[int64]*domain.Subscription
	History       []HistoryEntry
	Logs          []SubscriptionLog
	mu            sync.Mutex
}

// SubscriptionLog is a captured subscription log entry
type SubscriptionLog struct {
	Code        string
	Description string
	Success     bool
}

// NewSubscriptionRepository creates a repository seeded with subscriptions
func NewSubscriptionRepository(subs ...*domain.Subscription) *SubscriptionRepository {
	r := &SubscriptionRepository{Subscriptions: map[int64]*domain.Subscription{}}
	for _, s := range subs {
		r.Subscriptions[s.ID] = s
	}
	return r
}

func (r *SubscriptionRepository) Get(_ context.Context, id int64) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Subscriptions[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *SubscriptionRepository) ListDue(_ context.Context, now time.Time) ([]*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Subscription
	for _, s := range r.Subscriptions {
		if s.Status == domain.SubscriptionStatusActive && !s.DateNext.After(now) {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *SubscriptionRepository) AddHistory(_ context.Context, id int64, statusID int, comment string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.History = append(r.History, HistoryEntry{OrderID: id, StatusID: statusID, Comment: comment})
	if s, ok := r.Subscriptions[id]; ok {
		s.Status = domain.SubscriptionStatus(statusID)
	}
	return nil
}

func (r *SubscriptionRepository) AddLog(_ context.Context, _ int64, code, description string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Logs = append(r.Logs, SubscriptionLog{Code: code, Description: description, Success: success})
	return nil
}

func (r *SubscriptionRepository) SetTrialRemaining(_ context.Context, id int64, remaining int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.Subscriptions[id]; ok {
		s.Trial.Remaining = remaining
	}
	return nil
}

func (r *SubscriptionRepository) SetRemaining(_ context.Context, id int64, remaining int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.Subscriptions[id]; ok {
		s.Regular.Remaining = remaining
	}
	return nil
}

func (r *SubscriptionRepository) SetDateNext(_ context.Context, id int64, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.Subscriptions[id]; ok {
		s.DateNext = next
	}
	return nil
}
