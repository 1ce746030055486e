package activitypub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/stegofed/domain"
	"github.com/google/uuid"
)

const (
	maxDeliveryAttempts = 10
	deliveryBatchSize   = 50
	deliveryTimeout     = 30 * time.Second
)

// backoffMinutes is the wait after the n-th failed attempt; the last step
// repeats.
var backoffMinutes = []int{1, 5, 15, 60, 240, 1440}

// QueueDeliverer persists outgoing activities for the DeliveryWorker.
type QueueDeliverer struct {
	queue DeliveryQueue
	log   *log.Logger
}

func NewQueueDeliverer(queue DeliveryQueue, logger *log.Logger) *QueueDeliverer {
	if logger == nil {
		logger = log.Default()
	}
	return &QueueDeliverer{queue: queue, log: logger.WithPrefix("delivery")}
}

// Deliver queues out for inbox. Local-only activities are dropped.
func (d *QueueDeliverer) Deliver(ctx context.Context, out *Outgoing, inbox string, sender *domain.Account) error {
	if out.Visibility == domain.VisibilityLocal {
		return nil
	}
	body, err := json.Marshal(out.Activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	item := &domain.DeliveryQueueItem{
		InboxURI:     inbox,
		ActivityJSON: string(body),
	}
	if sender != nil {
		item.SenderId = sender.Id
	}
	if err := d.queue.EnqueueDelivery(ctx, item); err != nil {
		return fmt.Errorf("failed to queue delivery to %s: %w", inbox, err)
	}
	d.log.Debug("Queued", "type", out.Activity.Type(), "inbox", inbox)
	return nil
}

// DeliveryWorker drains the delivery queue, signing each request with the
// sender's key and retrying failures with backoff.
type DeliveryWorker struct {
	queue    DeliveryQueue
	accounts AccountStore
	urls     URLs
	appUser  string
	client   *http.Client
	interval time.Duration
	log      *log.Logger
}

func NewDeliveryWorker(conf Config, queue DeliveryQueue, accounts AccountStore, logger *log.Logger) *DeliveryWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &DeliveryWorker{
		queue:    queue,
		accounts: accounts,
		urls:     URLs{Domain: conf.Domain},
		appUser:  conf.ApplicationUser,
		client:   &http.Client{Timeout: deliveryTimeout},
		interval: 10 * time.Second,
		log:      logger.WithPrefix("delivery"),
	}
}

// Run processes the queue on every tick until ctx is done.
func (w *DeliveryWorker) Run(ctx context.Context) {
	w.log.Info("Starting delivery worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Delivery worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessQueue(ctx); err != nil {
				w.log.Error("Failed to process queue", "err", err)
			}
		}
	}
}

// ProcessQueue attempts every due delivery once and returns how many
// succeeded.
func (w *DeliveryWorker) ProcessQueue(ctx context.Context) (int, error) {
	items, err := w.queue.ReadPendingDeliveries(ctx, time.Now(), deliveryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	w.log.Debug("Processing pending deliveries", "count", len(items))
	delivered := 0
	for _, item := range items {
		if err := w.deliver(ctx, &item); err != nil {
			w.retry(ctx, &item, err)
			continue
		}
		deliveries.WithLabelValues("ok").Inc()
		delivered++
		w.log.Debug("Delivered", "inbox", item.InboxURI)
		if err := w.queue.DeleteDelivery(ctx, item.Id); err != nil {
			w.log.Error("Failed to dequeue", "id", item.Id, "err", err)
		}
	}
	return delivered, nil
}

func (w *DeliveryWorker) retry(ctx context.Context, item *domain.DeliveryQueueItem, cause error) {
	item.Attempts++
	if item.Attempts >= maxDeliveryAttempts {
		deliveries.WithLabelValues("dropped").Inc()
		w.log.Warn("Giving up on delivery", "inbox", item.InboxURI, "attempts", item.Attempts, "err", cause)
		if err := w.queue.DeleteDelivery(ctx, item.Id); err != nil {
			w.log.Error("Failed to dequeue", "id", item.Id, "err", err)
		}
		return
	}

	deliveries.WithLabelValues("retry").Inc()
	wait := time.Duration(backoffMinutes[min(item.Attempts-1, len(backoffMinutes)-1)]) * time.Minute
	item.NextRetryAt = time.Now().Add(wait)
	w.log.Info("Delivery failed", "inbox", item.InboxURI, "attempt", item.Attempts, "retry_in", wait, "err", cause)
	if err := w.queue.UpdateDeliveryAttempt(ctx, item.Id, item.Attempts, item.NextRetryAt); err != nil {
		w.log.Error("Failed to reschedule", "id", item.Id, "err", err)
	}
}

// deliver attempts a single signed POST of the queued activity.
func (w *DeliveryWorker) deliver(ctx context.Context, item *domain.DeliveryQueueItem) error {
	sender, keyID, err := w.sender(ctx, item.SenderId)
	if err != nil {
		return err
	}
	privateKey, err := ParsePrivateKey(sender.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	body := []byte(item.ActivityJSON)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "stegofed/1.0 ActivityPub")

	if err := SignRequest(req, body, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}
	return nil
}

// sender loads the signing account; uuid.Nil is the application actor.
func (w *DeliveryWorker) sender(ctx context.Context, id uuid.UUID) (*domain.Account, string, error) {
	if id == uuid.Nil {
		acc, err := w.accounts.ReadAccByUsername(ctx, w.appUser)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load application actor: %w", err)
		}
		return acc, KeyID(w.urls.ApplicationActor()), nil
	}
	acc, err := w.accounts.ReadAccById(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get local account: %w", err)
	}
	return acc, KeyID(w.urls.Actor(acc.Username)), nil
}
