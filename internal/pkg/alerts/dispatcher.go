package alerts

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

var errNoWebhook = errors.New("profile has no slack webhook configured")

const (
	alertQueueKey = "alert_queue"

	defaultWorkers       = 3
	defaultSweepInterval = 30 * time.Second
	sweepBatchSize       = 200
)

// Sender posts one alert to its destination.
type Sender interface {
	Send(ctx context.Context, alert PendingAlert) error
}

// Dispatcher moves due alert deliveries through a Redis list queue and a
// small worker pool. The sweeper enqueues, workers send and record the
// outcome; every state transition goes through the Store so a crash between
// enqueue and send only costs a re-enqueue.
type Dispatcher struct {
	client        *redis.Client
	store         Store
	sender        Sender
	workers       int
	sweepInterval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	now func() time.Time
}

func NewDispatcher(client *redis.Client, store Store, sender Sender, workers int) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Dispatcher{
		client:        client,
		store:         store,
		sender:        sender,
		workers:       workers,
		sweepInterval: defaultSweepInterval,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
}

// Start launches the sweeper and the worker pool. Calling Start twice is a
// no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	log.Infof("[Alerts] Starting dispatcher with %d workers", d.workers)

	d.wg.Add(1)
	go d.sweeper()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop signals all goroutines and waits for them to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	log.Info("[Alerts] Stopping dispatcher...")
	close(d.stopCh)
	d.running = false
	d.wg.Wait()
	log.Info("[Alerts] Dispatcher stopped")
}

// sweeper periodically pushes due delivery IDs onto the queue. Workers claim
// a delivery before sending, so re-enqueueing the same ID across sweeps costs
// one no-op claim attempt, never a duplicate notification.
func (d *Dispatcher) sweeper() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.sweepInterval)
	defer ticker.Stop()

	d.sweepOnce()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.sweepOnce()
		}
	}
}

func (d *Dispatcher) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ids, err := d.store.DueDeliveryIDs(ctx, d.now(), sweepBatchSize)
	if err != nil {
		log.Errorf("[Alerts] Sweep query failed: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	values := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		values = append(values, strconv.FormatUint(uint64(id), 10))
	}
	if err := d.client.LPush(ctx, alertQueueKey, values...).Err(); err != nil {
		log.Errorf("[Alerts] Enqueue failed: %v", err)
		return
	}
	log.Infof("[Alerts] Enqueued %d due deliveries", len(ids))
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		vals, err := d.client.BRPop(ctx, 2*time.Second, alertQueueKey).Result()
		cancel()
		if err != nil {
			if err != redis.Nil {
				log.Warnf("[Alerts] Worker %d queue read failed: %v", id, err)
				// Back off briefly so a down Redis does not spin the loop.
				select {
				case <-d.stopCh:
					return
				case <-time.After(2 * time.Second):
				}
			}
			continue
		}
		if len(vals) != 2 {
			continue
		}

		deliveryID, err := strconv.ParseUint(vals[1], 10, 64)
		if err != nil {
			log.Warnf("[Alerts] Worker %d dropped malformed queue entry %q", id, vals[1])
			continue
		}
		d.process(uint(deliveryID))
	}
}

// process claims one delivery, sends it, and records the outcome. A failed
// claim means another worker holds it or it is no longer due.
func (d *Dispatcher) process(deliveryID uint) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	claimed, err := d.store.ClaimDelivery(ctx, deliveryID, d.now())
	if err != nil {
		log.Warnf("[Alerts] Claiming delivery %d failed: %v", deliveryID, err)
		return
	}
	if !claimed {
		return
	}

	alert, err := d.store.LoadAlert(ctx, deliveryID)
	if err != nil {
		log.Warnf("[Alerts] Loading delivery %d failed: %v", deliveryID, err)
		return
	}
	if alert.WebhookURL == "" {
		// The user disconnected Slack after the match was recorded.
		if err := d.store.MarkFailed(ctx, deliveryID, d.now(), errNoWebhook); err != nil {
			log.Warnf("[Alerts] Recording failure for delivery %d failed: %v", deliveryID, err)
		}
		return
	}

	if sendErr := d.sender.Send(ctx, alert); sendErr != nil {
		log.Warnf("[Alerts] Delivery %d failed: %v", deliveryID, sendErr)
		if err := d.store.MarkFailed(ctx, deliveryID, d.now(), sendErr); err != nil {
			log.Warnf("[Alerts] Recording failure for delivery %d failed: %v", deliveryID, err)
		}
		return
	}

	if err := d.store.MarkSent(ctx, deliveryID, d.now()); err != nil {
		log.Warnf("[Alerts] Recording success for delivery %d failed: %v", deliveryID, err)
	}
}
