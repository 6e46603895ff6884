//go:build integration

package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/database"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// RepositoryIntegrationTestSuite runs the repositories against a real MongoDB
// so the conditional updates are checked by the server, not by a fake.
type RepositoryIntegrationTestSuite struct {
	suite.Suite
	container *mongodb.MongoDBContainer
	client    *mongo.Client
	db        *mongo.Database

	orders        *database.OrderRepository
	drivers       *database.DriverRepository
	fees          *database.FeeRepository
	notifications *database.NotificationRepository
	carts         *database.CartRepository
	products      *database.ProductRepository
	sequence      *database.Sequence
}

func TestRepositoryIntegration(t *testing.T) {
	suite.Run(t, new(RepositoryIntegrationTestSuite))
}

func (s *RepositoryIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	s.Require().NoError(err)
	s.container = container

	uri, err := container.ConnectionString(ctx)
	s.Require().NoError(err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	s.Require().NoError(err)
	s.client = client
}

func (s *RepositoryIntegrationTestSuite) SetupTest() {
	ctx := context.Background()
	s.db = s.client.Database("dropkart_test_" + primitive.NewObjectID().Hex())
	s.Require().NoError(database.EnsureIndexes(ctx, s.db))

	s.orders = database.NewOrderRepository(s.db)
	s.drivers = database.NewDriverRepository(s.db)
	s.fees = database.NewFeeRepository(s.db)
	s.notifications = database.NewNotificationRepository(s.db)
	s.carts = database.NewCartRepository(s.db)
	s.products = database.NewProductRepository(s.db)
	s.sequence = database.NewSequence(s.db)
}

func (s *RepositoryIntegrationTestSuite) TearDownTest() {
	s.Require().NoError(s.db.Drop(context.Background()))
}

func (s *RepositoryIntegrationTestSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Disconnect(context.Background())
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *RepositoryIntegrationTestSuite) readyDriver() *models.Driver {
	id := primitive.NewObjectID()
	d := &models.Driver{
		ID:          id,
		Name:        "Ravi",
		Email:       id.Hex() + "@example.com",
		Phone:       id.Hex(),
		Role:        models.DriverRole,
		IsAvailable: true,
		IsVerified:  true,
		IsActive:    true,
	}
	s.Require().NoError(s.drivers.Create(context.Background(), d))
	return d
}

func (s *RepositoryIntegrationTestSuite) pendingOrder() *models.Order {
	ctx := context.Background()
	orderID, err := s.sequence.NextOrderID(ctx)
	s.Require().NoError(err)

	o := &models.Order{
		OrderID:    orderID,
		UserID:     primitive.NewObjectID(),
		Status:     models.OrderStatusPending,
		TotalPrice: 120,
	}
	s.Require().NoError(s.orders.Insert(ctx, o))
	return o
}

func (s *RepositoryIntegrationTestSuite) TestSequence_IssuesPaddedIncreasingIDs() {
	ctx := context.Background()

	first, err := s.sequence.NextOrderID(ctx)
	s.Require().NoError(err)
	second, err := s.sequence.NextOrderID(ctx)
	s.Require().NoError(err)

	s.Equal("ORD000001", first)
	s.Equal("ORD000002", second)
}

func (s *RepositoryIntegrationTestSuite) TestUpdateIf_MissesWhenStatusMoved() {
	ctx := context.Background()
	o := s.pendingOrder()
	driver := primitive.NewObjectID()
	now := time.Now().UTC().Truncate(time.Millisecond)

	updated, err := s.orders.UpdateIf(ctx,
		delivery.OrderCondition{OrderID: o.OrderID, Status: models.OrderStatusPending},
		delivery.OrderPatch{Status: models.OrderStatusAssigned, Milestone: models.MilestoneAssigned, At: now, DriverID: &driver})
	s.Require().NoError(err)
	s.Require().NotNil(updated)
	s.Equal(models.OrderStatusAssigned, updated.Status)
	s.True(updated.IsAssignedTo(driver))

	again, err := s.orders.UpdateIf(ctx,
		delivery.OrderCondition{OrderID: o.OrderID, Status: models.OrderStatusPending},
		delivery.OrderPatch{Status: models.OrderStatusCancelled, At: now})
	s.Require().NoError(err)
	s.Nil(again)
}

func (s *RepositoryIntegrationTestSuite) TestInsert_DuplicateOrderID() {
	o := s.pendingOrder()

	err := s.orders.Insert(context.Background(), &models.Order{OrderID: o.OrderID, Status: models.OrderStatusPending})
	s.ErrorIs(err, &utils.ApiError{Code: utils.CodeDuplicate})
}

func (s *RepositoryIntegrationTestSuite) TestReserve_OnlyOneConcurrentWinner() {
	ctx := context.Background()
	d := s.readyDriver()

	const n = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.drivers.Reserve(ctx, d.ID, "ORD000001")
			if err == nil && got != nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	s.Len(wins, 1)
}

func (s *RepositoryIntegrationTestSuite) TestRelease_OnlyFreesTheOwningOrder() {
	ctx := context.Background()
	d := s.readyDriver()

	held, err := s.drivers.Reserve(ctx, d.ID, "ORD000001")
	s.Require().NoError(err)
	s.Require().NotNil(held)
	s.Equal("ORD000001", held.ReservedFor)

	got, err := s.drivers.Release(ctx, d.ID, "")
	s.Require().NoError(err)
	s.Nil(got)
	got, err = s.drivers.Release(ctx, d.ID, "ORD000002")
	s.Require().NoError(err)
	s.Nil(got)

	got, err = s.drivers.Release(ctx, d.ID, "ORD000001")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.True(got.IsAvailable)
	s.Empty(got.ReservedFor)

	off, err := s.drivers.SetOffline(ctx, d.ID)
	s.Require().NoError(err)
	s.Require().NotNil(off)
	s.False(off.IsAvailable)

	on, err := s.drivers.Release(ctx, d.ID, "")
	s.Require().NoError(err)
	s.Require().NotNil(on)
	s.True(on.IsAvailable)
}

func (s *RepositoryIntegrationTestSuite) TestCredit_IsIdempotentPerOrder() {
	ctx := context.Background()
	d := s.readyDriver()

	ok, err := s.drivers.Credit(ctx, d.ID, "ORD000009", 10)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.drivers.Credit(ctx, d.ID, "ORD000009", 10)
	s.Require().NoError(err)
	s.False(ok)

	got, err := s.drivers.FindByID(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(10.0, got.WalletBalance)

	_, err = s.drivers.Credit(ctx, primitive.NewObjectID(), "ORD000009", 10)
	s.Error(err)
}

func (s *RepositoryIntegrationTestSuite) TestListUnsettled_AndMarkSettled() {
	ctx := context.Background()
	o := s.pendingOrder()
	driver := primitive.NewObjectID()
	now := time.Now().UTC()

	_, err := s.orders.UpdateIf(ctx,
		delivery.OrderCondition{OrderID: o.OrderID, Status: models.OrderStatusPending},
		delivery.OrderPatch{Status: models.OrderStatusDelivered, At: now, DriverID: &driver, Payout: &models.Payout{Amount: 10}})
	s.Require().NoError(err)

	pending, err := s.orders.ListUnsettled(ctx, 2, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(o.OrderID, pending[0].OrderID)

	s.Require().NoError(s.orders.MarkSettled(ctx, o.OrderID, now))

	pending, err = s.orders.ListUnsettled(ctx, 2, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *RepositoryIntegrationTestSuite) TestListUnsettled_SkipsParkedPayouts() {
	ctx := context.Background()
	o := s.pendingOrder()
	driver := primitive.NewObjectID()
	now := time.Now().UTC()

	_, err := s.orders.UpdateIf(ctx,
		delivery.OrderCondition{OrderID: o.OrderID, Status: models.OrderStatusPending},
		delivery.OrderPatch{Status: models.OrderStatusDelivered, At: now, DriverID: &driver, Payout: &models.Payout{Amount: 10}})
	s.Require().NoError(err)

	s.Require().NoError(s.orders.RecordSettleFailure(ctx, o.OrderID, "driver missing", now))
	pending, err := s.orders.ListUnsettled(ctx, 2, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(1, pending[0].Payout.SettleAttempts)
	s.Equal("driver missing", pending[0].Payout.LastError)

	s.Require().NoError(s.orders.RecordSettleFailure(ctx, o.OrderID, "driver missing", now))
	pending, err = s.orders.ListUnsettled(ctx, 2, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *RepositoryIntegrationTestSuite) TestBaseDriverFare_DefaultsThenUpdates() {
	ctx := context.Background()

	fare, err := s.fees.BaseDriverFare(ctx)
	s.Require().NoError(err)
	s.Equal(models.DefaultBaseDriverFare, fare)

	_, err = s.fees.UpdateConvenience(ctx, 25, 2, primitive.NewObjectID())
	s.Require().NoError(err)

	fare, err = s.fees.BaseDriverFare(ctx)
	s.Require().NoError(err)
	s.Equal(25.0, fare)
}

func (s *RepositoryIntegrationTestSuite) TestNotifications_InsertIsIdempotentAndLeaseIsExclusive() {
	ctx := context.Background()
	recipient := primitive.NewObjectID()
	n := &models.Notification{
		EventKey:      "ev-1:customer",
		RecipientID:   recipient,
		RecipientKind: models.RecipientCustomer,
		Title:         "Order Assigned",
		Message:       "A driver has been assigned",
		Type:          models.NotificationOrder,
	}
	s.Require().NoError(s.notifications.Insert(ctx, n))
	dup := *n
	dup.ID = primitive.NilObjectID
	s.Require().NoError(s.notifications.Insert(ctx, &dup))

	list, total, err := s.notifications.ListForRecipient(ctx, models.RecipientCustomer, recipient, 1, 20)
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Len(list, 1)

	now := time.Now().UTC()
	leased, err := s.notifications.Lease(ctx, now, time.Minute, 5)
	s.Require().NoError(err)
	s.Require().NotNil(leased)
	s.Equal(1, leased.PushAttempts)

	none, err := s.notifications.Lease(ctx, now, time.Minute, 5)
	s.Require().NoError(err)
	s.Nil(none)

	s.Require().NoError(s.notifications.MarkPushed(ctx, leased.ID, now))
	none, err = s.notifications.Lease(ctx, now.Add(2*time.Minute), time.Minute, 5)
	s.Require().NoError(err)
	s.Nil(none)
}

func (s *RepositoryIntegrationTestSuite) TestCart_AddMergesLines() {
	ctx := context.Background()
	user := primitive.NewObjectID()
	product := primitive.NewObjectID()

	s.Require().NoError(s.carts.AddItem(ctx, user, models.CartItem{ProductID: product, Quantity: 1, Price: 40}))
	s.Require().NoError(s.carts.AddItem(ctx, user, models.CartItem{ProductID: product, Quantity: 2, Price: 40}))

	cart, err := s.carts.Get(ctx, user)
	s.Require().NoError(err)
	s.Require().Len(cart.Items, 1)
	s.Equal(3, cart.TotalItems)
	s.Equal(120.0, cart.TotalPrice)

	removed, err := s.carts.RemoveItem(ctx, user, product)
	s.Require().NoError(err)
	s.True(removed)
}

func (s *RepositoryIntegrationTestSuite) TestTakeStock_RefusesOversell() {
	ctx := context.Background()
	p := &models.Product{Name: "Milk", CurrentPrice: 30, Stock: 2}
	s.Require().NoError(s.products.Create(ctx, p))

	ok, err := s.products.TakeStock(ctx, p.ID, 3)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.products.TakeStock(ctx, p.ID, 2)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RepositoryIntegrationTestSuite) TestConnectDB_PingsServer() {
	uri, err := s.container.ConnectionString(context.Background())
	s.Require().NoError(err)

	db, err := database.ConnectDB(context.Background(), uri, "dropkart_ping", zap.NewNop())
	s.Require().NoError(err)
	s.NoError(database.NewPinger(db).Ping(context.Background()))
	_ = db.Client().Disconnect(context.Background())
}
