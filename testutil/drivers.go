package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Drivers is an in-memory driver registry.
type Drivers struct {
	mu      sync.Mutex
	drivers map[primitive.ObjectID]*models.Driver

	// ReleaseErr, when set, fails every Release call.
	ReleaseErr error
	// CreditErr, when set, fails every Credit call.
	CreditErr error
}

func NewDrivers() *Drivers {
	return &Drivers{drivers: map[primitive.ObjectID]*models.Driver{}}
}

// Put stores a copy of d and returns its id.
func (s *Drivers) Put(d models.Driver) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	s.drivers[d.ID] = cloneDriver(&d)
	return d.ID
}

// Get returns a copy of the stored driver.
func (s *Drivers) Get(id primitive.ObjectID) *models.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil
	}
	return cloneDriver(d)
}

// ReadyDriver stores a verified, active, available driver.
func (s *Drivers) ReadyDriver(name string) primitive.ObjectID {
	return s.Put(models.Driver{
		Name:        name,
		Email:       strings.ToLower(name) + "@example.com",
		Phone:       "+1555" + name,
		Role:        models.DriverRole,
		IsAvailable: true,
		IsVerified:  true,
		IsActive:    true,
	})
}

func (s *Drivers) FindByID(_ context.Context, id primitive.ObjectID) (*models.Driver, error) {
	return s.Get(id), nil
}

func (s *Drivers) Reserve(_ context.Context, id primitive.ObjectID, orderID string) (*models.Driver, error) {
	return s.swap(id, func(d *models.Driver) bool {
		if !d.IsAvailable || !d.IsVerified || !d.IsActive {
			return false
		}
		d.IsAvailable = false
		d.ReservedFor = orderID
		return true
	}), nil
}

func (s *Drivers) Release(_ context.Context, id primitive.ObjectID, orderID string) (*models.Driver, error) {
	if s.ReleaseErr != nil {
		return nil, s.ReleaseErr
	}
	return s.swap(id, func(d *models.Driver) bool {
		if d.IsAvailable || d.ReservedFor != orderID {
			return false
		}
		d.IsAvailable = true
		d.ReservedFor = ""
		return true
	}), nil
}

func (s *Drivers) SetOffline(_ context.Context, id primitive.ObjectID) (*models.Driver, error) {
	return s.swap(id, func(d *models.Driver) bool {
		if !d.IsAvailable {
			return false
		}
		d.IsAvailable = false
		return true
	}), nil
}

func (s *Drivers) Credit(_ context.Context, id primitive.ObjectID, orderID string, amount float64) (bool, error) {
	if s.CreditErr != nil {
		return false, s.CreditErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return false, fmt.Errorf("driver %s not found", id.Hex())
	}
	for _, settled := range d.SettledOrders {
		if settled == orderID {
			return false, nil
		}
	}
	d.WalletBalance += amount
	d.SettledOrders = append(d.SettledOrders, orderID)
	return true, nil
}

func (s *Drivers) Verify(_ context.Context, id primitive.ObjectID) (*models.Driver, error) {
	return s.swap(id, func(d *models.Driver) bool {
		if d.IsVerified {
			return false
		}
		d.IsVerified = true
		return true
	}), nil
}

func (s *Drivers) Create(_ context.Context, d *models.Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.drivers {
		if existing.Email == d.Email || existing.Phone == d.Phone {
			return utils.NewConflictError(utils.CodeDuplicate, "Driver with this email or phone already exists")
		}
	}
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	s.drivers[d.ID] = cloneDriver(d)
	return nil
}

func (s *Drivers) FindByLogin(_ context.Context, email, phone string) (*models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.drivers {
		if (email != "" && d.Email == email) || (phone != "" && d.Phone == phone) {
			return cloneDriver(d), nil
		}
	}
	return nil, nil
}

func (s *Drivers) UpdateLocation(_ context.Context, id primitive.ObjectID, loc models.Location) (*models.Driver, error) {
	return s.swap(id, func(d *models.Driver) bool {
		l := loc
		d.CurrentLocation = &l
		return true
	}), nil
}

func (s *Drivers) UpdateProfile(_ context.Context, id primitive.ObjectID, upd models.DriverProfileUpdate) (*models.Driver, error) {
	s.mu.Lock()
	if upd.Phone != nil {
		for other, d := range s.drivers {
			if other != id && d.Phone == *upd.Phone {
				s.mu.Unlock()
				return nil, utils.NewConflictError(utils.CodeDuplicate, "Driver with this phone already exists")
			}
		}
	}
	s.mu.Unlock()

	return s.swap(id, func(d *models.Driver) bool {
		if upd.Name != nil {
			d.Name = *upd.Name
		}
		if upd.Phone != nil {
			d.Phone = *upd.Phone
		}
		if upd.VehicleNumber != nil {
			d.VehicleNumber = *upd.VehicleNumber
		}
		if upd.LicenseNumber != nil {
			d.LicenseNumber = *upd.LicenseNumber
		}
		return true
	}), nil
}

func (s *Drivers) SetDeviceToken(_ context.Context, id primitive.ObjectID, token string) error {
	s.swap(id, func(d *models.Driver) bool {
		d.FCMToken = token
		return true
	})
	return nil
}

func (s *Drivers) List(_ context.Context, f models.DriverFilter) ([]models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Driver{}
	for _, d := range s.drivers {
		if f.Available != nil && d.IsAvailable != *f.Available {
			continue
		}
		if f.Verified != nil && d.IsVerified != *f.Verified {
			continue
		}
		out = append(out, *cloneDriver(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Drivers) swap(id primitive.ObjectID, mutate func(*models.Driver) bool) *models.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok || !mutate(d) {
		return nil
	}
	d.UpdatedAt = time.Now()
	return cloneDriver(d)
}

func cloneDriver(d *models.Driver) *models.Driver {
	c := *d
	c.SettledOrders = append([]string(nil), d.SettledOrders...)
	if d.CurrentLocation != nil {
		l := *d.CurrentLocation
		c.CurrentLocation = &l
	}
	return &c
}
