package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Fees is an in-memory fee ledger and shipping rule.
type Fees struct {
	mu           sync.Mutex
	Fare         float64
	ShippingRule models.Shipping
	Err          error
}

func (f *Fees) BaseDriverFare(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Fare, nil
}

func (f *Fees) Shipping(context.Context) (*models.Shipping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.ShippingRule
	return &s, nil
}

func (f *Fees) UpdateConvenience(_ context.Context, baseFare, perKm float64, adminID primitive.ObjectID) (*models.Convenience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fare = baseFare
	return &models.Convenience{BaseDriverFare: baseFare, PerKmRate: perKm, LastUpdatedBy: &adminID}, nil
}

func (f *Fees) UpdateShipping(_ context.Context, charge, freeAbove float64) (*models.Shipping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ShippingRule = models.Shipping{ShippingCharge: charge, FreeShippingAbove: freeAbove}
	s := f.ShippingRule
	return &s, nil
}

// Events records every published status change.
type Events struct {
	mu     sync.Mutex
	events []delivery.StatusChanged
	Err    error
}

func (e *Events) Publish(_ context.Context, ev delivery.StatusChanged) error {
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *Events) All() []delivery.StatusChanged {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]delivery.StatusChanged(nil), e.events...)
}

// Last returns the most recent event, or the zero value.
func (e *Events) Last() delivery.StatusChanged {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return delivery.StatusChanged{}
	}
	return e.events[len(e.events)-1]
}

// FixedCodes hands out the given codes in order, then repeats the last one.
type FixedCodes struct {
	mu    sync.Mutex
	codes []string
}

func NewFixedCodes(codes ...string) *FixedCodes {
	return &FixedCodes{codes: codes}
}

func (f *FixedCodes) NewCode() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		return "", fmt.Errorf("no codes left")
	}
	code := f.codes[0]
	if len(f.codes) > 1 {
		f.codes = f.codes[1:]
	}
	return code, nil
}

// Sequence issues ORD-prefixed ids from an in-process counter.
type Sequence struct {
	n atomic.Int64
}

func (s *Sequence) NextOrderID(context.Context) (string, error) {
	return fmt.Sprintf("ORD%06d", s.n.Add(1)), nil
}

// Admins is an in-memory admin account store.
type Admins struct {
	mu     sync.Mutex
	admins map[string]models.Admin
}

func NewAdmins() *Admins {
	return &Admins{admins: map[string]models.Admin{}}
}

func (a *Admins) Put(admin models.Admin) primitive.ObjectID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if admin.ID.IsZero() {
		admin.ID = primitive.NewObjectID()
	}
	a.admins[admin.Email] = admin
	return admin.ID
}

func (a *Admins) FindByEmail(_ context.Context, email string) (*models.Admin, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	admin, ok := a.admins[email]
	if !ok {
		return nil, nil
	}
	return &admin, nil
}

// Users is an in-memory customer account store.
type Users struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func NewUsers() *Users {
	return &Users{users: map[primitive.ObjectID]*models.User{}}
}

func (u *Users) Create(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.users {
		if existing.Email == user.Email {
			return utils.NewConflictError(utils.CodeDuplicate, "User with this email already exists")
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	c := *user
	u.users[user.ID] = &c
	return nil
}

func (u *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.users {
		if existing.Email == email {
			c := *existing
			return &c, nil
		}
	}
	return nil, nil
}

func (u *Users) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	existing, ok := u.users[id]
	if !ok {
		return nil, nil
	}
	c := *existing
	return &c, nil
}

func (u *Users) UpdateProfile(_ context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	existing, ok := u.users[id]
	if !ok {
		return nil, nil
	}
	if upd.Name != nil {
		existing.Name = *upd.Name
	}
	if upd.PhoneNumber != nil {
		existing.PhoneNumber = *upd.PhoneNumber
	}
	if upd.Location != nil {
		existing.Location = *upd.Location
	}
	if upd.Image != nil {
		existing.Image = *upd.Image
	}
	c := *existing
	return &c, nil
}

func (u *Users) SetDeviceToken(_ context.Context, id primitive.ObjectID, token string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.users[id]; ok {
		existing.FCMToken = token
	}
	return nil
}
