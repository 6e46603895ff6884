package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Products is an in-memory product catalog with stock accounting.
type Products struct {
	mu    sync.Mutex
	items map[primitive.ObjectID]*models.Product
}

func NewProducts() *Products {
	return &Products{items: map[primitive.ObjectID]*models.Product{}}
}

// Put stores p, assigning an id when it has none.
func (s *Products) Put(p models.Product) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.items[p.ID] = &p
	return p.ID
}

// Stock returns the current stock of id, or -1 when unknown.
func (s *Products) Stock(id primitive.ObjectID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.items[id]; ok {
		return p.Stock
	}
	return -1
}

func (s *Products) List(_ context.Context, category string) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Product{}
	for _, p := range s.items {
		if category == "" || p.Category == category {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Products) FindByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (s *Products) Create(_ context.Context, p *models.Product) error {
	p.ID = primitive.NewObjectID()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.Put(*p)
	return nil
}

func (s *Products) TakeStock(_ context.Context, id primitive.ObjectID, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.items[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (s *Products) ReturnStock(_ context.Context, id primitive.ObjectID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.items[id]; ok {
		p.Stock += qty
	}
	return nil
}

// Carts keeps one cart per user.
type Carts struct {
	mu    sync.Mutex
	carts map[primitive.ObjectID]*models.Cart
}

func NewCarts() *Carts {
	return &Carts{carts: map[primitive.ObjectID]*models.Cart{}}
}

func (s *Carts) Get(_ context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := &models.Cart{UserID: userID, Items: []models.CartItem{}}
	if existing, ok := s.carts[userID]; ok {
		cart = existing
	}
	c := *cart
	c.Items = append([]models.CartItem{}, cart.Items...)
	c.Recalculate()
	return &c, nil
}

func (s *Carts) AddItem(_ context.Context, userID primitive.ObjectID, item models.CartItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cart(userID)
	for i := range cart.Items {
		if cart.Items[i].ProductID == item.ProductID {
			cart.Items[i].Quantity += item.Quantity
			return nil
		}
	}
	cart.Items = append(cart.Items, item)
	return nil
}

func (s *Carts) SetQuantity(_ context.Context, userID, productID primitive.ObjectID, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cart(userID)
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Quantity = qty
			return true, nil
		}
	}
	return false, nil
}

func (s *Carts) RemoveItem(_ context.Context, userID, productID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cart(userID)
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *Carts) Clear(_ context.Context, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart(userID).Items = []models.CartItem{}
	return nil
}

func (s *Carts) cart(userID primitive.ObjectID) *models.Cart {
	cart, ok := s.carts[userID]
	if !ok {
		cart = &models.Cart{ID: primitive.NewObjectID(), UserID: userID, Items: []models.CartItem{}}
		s.carts[userID] = cart
	}
	return cart
}
