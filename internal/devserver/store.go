package devserver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/order-console/internal/model"
)

var (
	errOrderNotFound = errors.New("order not found")
	errBadCredential = errors.New("invalid email or password")
)

type line struct {
	id        string
	productID string
	product   model.Product
	quantity  int
}

type orderRecord struct {
	order     model.Order
	lines     []line
	createdAt time.Time
}

type account struct {
	user     model.User
	password string
}

// MemoryStore holds the dev server's orders and admin accounts.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]*orderRecord
	accounts map[string]account
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]*orderRecord),
		accounts: make(map[string]account),
		now:      time.Now,
	}
}

// AddAccount registers an admin who can log in.
func (s *MemoryStore) AddAccount(u model.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.accounts[u.Email] = account{user: u, password: password}
}

func (s *MemoryStore) authenticate(email, password string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[email]
	if !ok || acc.password != password {
		return model.User{}, errBadCredential
	}
	return acc.user, nil
}

func (s *MemoryStore) userByID(id string) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return model.User{}, false
}

// OrderSeed describes one order to create.
type OrderSeed struct {
	ID        string
	FirstName string
	LastName  string
	City      string
	UserID    string
	Method    model.PaymentMethod
	Status    model.OrderStatus
	Payment   model.PaymentStatus
	Products  []model.Product
	Quantity  []int
	CreatedAt time.Time
}

// AddOrder creates an order and returns its id.
func (s *MemoryStore) AddOrder(seed OrderSeed) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seed.ID == "" {
		seed.ID = uuid.NewString()
	}
	if seed.CreatedAt.IsZero() {
		seed.CreatedAt = s.now()
	}
	if seed.Status == "" {
		seed.Status = model.OrderStatusPending
	}
	if seed.Payment == "" {
		seed.Payment = model.PaymentStatusUnpaid
	}

	rec := &orderRecord{
		order: model.Order{
			ID:          seed.ID,
			FirstName:   seed.FirstName,
			LastName:    seed.LastName,
			PhoneNumber: "9800000000",
			AddressLine: "Ward 4",
			City:        seed.City,
			Street:      "Main Road",
			Zipcode:     "44600",
			State:       "Bagmati",
			OrderStatus: seed.Status,
			UserID:      seed.UserID,
			Payment: &model.Payment{
				ID:            "pay-" + seed.ID,
				PaymentMethod: seed.Method,
				PaymentStatus: seed.Payment,
			},
			UpdatedAt: seed.CreatedAt,
		},
		createdAt: seed.CreatedAt,
	}
	var total float64
	for i, p := range seed.Products {
		qty := 1
		if i < len(seed.Quantity) {
			qty = seed.Quantity[i]
		}
		rec.lines = append(rec.lines, line{
			id:        fmt.Sprintf("%s-l%d", seed.ID, i+1),
			productID: fmt.Sprintf("prod-%d", i+1),
			product:   p,
			quantity:  qty,
		})
		total += float64(qty) * p.Price
	}
	rec.order.TotalPrice = total
	s.orders[seed.ID] = rec
	return seed.ID
}

// Summaries returns every order as listed by GET /order/all, newest first.
func (s *MemoryStore) Summaries() []model.OrderSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.OrderSummary, 0, len(s.orders))
	for _, rec := range s.orders {
		sum := model.OrderSummary{
			ID:          rec.order.ID,
			TotalPrice:  rec.order.TotalPrice,
			OrderStatus: rec.order.OrderStatus,
			CreatedAt:   rec.createdAt,
			Payment:     *rec.order.Payment,
		}
		for _, l := range rec.lines {
			sum.OrderDetails = append(sum.OrderDetails, model.LineQuantity{Quantity: l.quantity})
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Detail returns the detail lines of one order as served by GET /order/{id}.
func (s *MemoryStore) Detail(id string) ([]model.OrderDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.orders[id]
	if !ok {
		return nil, errOrderNotFound
	}
	order := rec.order
	pay := *order.Payment
	order.Payment = &pay

	out := make([]model.OrderDetail, 0, len(rec.lines))
	for _, l := range rec.lines {
		out = append(out, model.OrderDetail{
			ID:        l.id,
			Quantity:  l.quantity,
			CreatedAt: rec.createdAt,
			OrderID:   id,
			ProductID: l.productID,
			PaymentID: pay.ID,
			Order:     order,
			Product:   l.product,
		})
	}
	return out, nil
}

// SetOrderStatus changes the fulfilment status of an order.
func (s *MemoryStore) SetOrderStatus(id string, status model.OrderStatus) error {
	if err := model.ValidateValue(model.FieldOrderStatus, string(status)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.orders[id]
	if !ok {
		return errOrderNotFound
	}
	rec.order.OrderStatus = status
	rec.order.UpdatedAt = s.now()
	return nil
}

// SetPaymentStatus changes the payment status of an order.
func (s *MemoryStore) SetPaymentStatus(id string, status model.PaymentStatus) error {
	if err := model.ValidateValue(model.FieldPaymentStatus, string(status)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.orders[id]
	if !ok {
		return errOrderNotFound
	}
	rec.order.Payment.PaymentStatus = status
	rec.order.UpdatedAt = s.now()
	return nil
}

// Seed fills the store with a small catalogue of orders and one admin.
func (s *MemoryStore) Seed(adminEmail, adminPassword string) {
	s.AddAccount(model.User{ID: "admin-1", Username: "admin", Email: adminEmail, Role: "admin"}, adminPassword)

	tea := model.Product{Name: "Ilam Tea", Price: 450, Category: &model.Category{ID: "cat-1", CategoryName: "Beverages"}}
	rice := model.Product{Name: "Basmati Rice 5kg", Price: 1200, Category: &model.Category{ID: "cat-2", CategoryName: "Groceries"}}
	mug := model.Product{Name: "Clay Mug", Price: 300, Category: &model.Category{ID: "cat-3", CategoryName: "Kitchen"}}

	base := s.now().Add(-72 * time.Hour)
	s.AddOrder(OrderSeed{ID: "ord-1001", FirstName: "Sita", LastName: "Shrestha", City: "Kathmandu", UserID: "cust-1",
		Method: model.PaymentMethodKhalti, Payment: model.PaymentStatusPaid, Status: model.OrderStatusDelivered,
		Products: []model.Product{tea, mug}, Quantity: []int{2, 1}, CreatedAt: base})
	s.AddOrder(OrderSeed{ID: "ord-1002", FirstName: "Ram", LastName: "Thapa", City: "Pokhara", UserID: "cust-2",
		Method: model.PaymentMethodCOD, Products: []model.Product{rice}, Quantity: []int{1},
		CreatedAt: base.Add(24 * time.Hour)})
	s.AddOrder(OrderSeed{ID: "ord-1003", FirstName: "Gita", LastName: "Rai", City: "Lalitpur", UserID: "cust-3",
		Method: model.PaymentMethodEsewa, Status: model.OrderStatusPreparation,
		Products: []model.Product{tea, rice}, Quantity: []int{3, 2}, CreatedAt: base.Add(48 * time.Hour)})
	s.AddOrder(OrderSeed{ID: "ord-1004", FirstName: "Hari", LastName: "Gurung", City: "Bhaktapur", UserID: "cust-1",
		Method: model.PaymentMethodCOD, Status: model.OrderStatusCancelled,
		Products: []model.Product{mug}, Quantity: []int{4}, CreatedAt: base.Add(60 * time.Hour)})
}
