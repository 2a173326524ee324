package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
	"github.com/lingbai-i/mall-order-go/internal/order/event"
)

func TestHandleTimeoutOrders(t *testing.T) {
	f := newFixture(t)
	stale1 := f.seedOrder(domain.StatusPending, func(o *domain.Order) {
		o.OrderNo = "ORD-STALE-1"
		o.CreatedAt = time.Now().Add(-2 * time.Hour)
	})
	stale2 := f.seedOrder(domain.StatusPending, func(o *domain.Order) {
		o.OrderNo = "ORD-STALE-2"
		o.CreatedAt = time.Now().Add(-90 * time.Minute)
	})
	fresh := f.seedOrder(domain.StatusPending, func(o *domain.Order) {
		o.OrderNo = "ORD-FRESH"
		o.CreatedAt = time.Now()
	})

	n, err := f.svc.HandleTimeoutOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, domain.StatusCancelled, f.repo.orders[stale1.ID].Status)
	assert.Equal(t, "payment timeout", f.repo.orders[stale1.ID].CancelReason)
	assert.Equal(t, domain.StatusCancelled, f.repo.orders[stale2.ID].Status)
	assert.Equal(t, domain.StatusPending, f.repo.orders[fresh.ID].Status)

	assert.Len(t, f.products.restored, 2)
	assert.ElementsMatch(t, []event.Type{event.TypeOrderTimeout, event.TypeOrderTimeout}, f.pub.typesSeen())
}

func TestHandleTimeoutOrdersRerunIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(domain.StatusPending, func(o *domain.Order) {
		o.CreatedAt = time.Now().Add(-2 * time.Hour)
	})

	n, err := f.svc.HandleTimeoutOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.HandleTimeoutOrders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, f.pub.events, 1)
}

func TestHandleTimeoutOrdersContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	raced := f.seedOrder(domain.StatusPending, func(o *domain.Order) {
		o.OrderNo = "ORD-RACED"
		o.CreatedAt = time.Now().Add(-2 * time.Hour)
	})
	stale := f.seedOrder(domain.StatusPending, func(o *domain.Order) {
		o.OrderNo = "ORD-STALE"
		o.CreatedAt = time.Now().Add(-2 * time.Hour)
	})

	// a payment callback wins the write race on the first order
	f.repo.transitionErrFor = map[int64]error{raced.ID: domain.ErrConflict}

	n, err := f.svc.HandleTimeoutOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.StatusPending, f.repo.orders[raced.ID].Status)
	assert.Equal(t, domain.StatusCancelled, f.repo.orders[stale.ID].Status)
	assert.Len(t, f.pub.events, 1, "no event for the order that lost the race")
}

func TestAutoConfirmOrders(t *testing.T) {
	f := newFixture(t)
	overdueShip := time.Now().Add(-8 * 24 * time.Hour)
	recentShip := time.Now().Add(-time.Hour)

	overdue := f.seedOrder(domain.StatusShipped, func(o *domain.Order) {
		o.OrderNo = "ORD-OVERDUE"
		o.ShipTime = &overdueShip
	})
	recent := f.seedOrder(domain.StatusShipped, func(o *domain.Order) {
		o.OrderNo = "ORD-RECENT"
		o.ShipTime = &recentShip
	})

	n, err := f.svc.AutoConfirmOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, domain.StatusCompleted, f.repo.orders[overdue.ID].Status)
	assert.Equal(t, domain.StatusShipped, f.repo.orders[recent.ID].Status)
	assert.Equal(t, []event.Type{event.TypeOrderCompleted}, f.pub.typesSeen())
}
