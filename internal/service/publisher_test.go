package service

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/queue"
)

// silentBroker accepts TCP connections and never answers the AMQP
// handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func stalledPublisher(t *testing.T) *AMQPPublisher {
	return &AMQPPublisher{
		url: silentBroker(t),
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestAMQPPublisher_RedialHonoursDeadline(t *testing.T) {
	pub := stalledPublisher(t)
	ev := queue.NewBookingEvent(queue.EventBookingCreated, 1, 2, 3, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := pub.Publish(ctx, ev)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	// the failed redial backs off, later callers fail at once
	start = time.Now()
	err = pub.Publish(context.Background(), ev)
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(context.Background(), ev), ErrPublisherClosed)
}

func TestLedger_StalledBrokerDoesNotBlockBooking(t *testing.T) {
	ledger, store, _ := newTestLedger(t)
	ledger.events = stalledPublisher(t)
	ledger.publish = 300 * time.Millisecond
	slot := addSlot(store, 1, 5)

	var wg sync.WaitGroup
	start := time.Now()
	for _, actor := range []uint64{10, 11, 12, 13} {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			_, err := ledger.CreateBooking(context.Background(), model.Actor{UserID: uid, Role: model.RoleUser}, slot.ID)
			assert.NoError(t, err)
		}(actor)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Len(t, store.Bookings(), 4)
}
