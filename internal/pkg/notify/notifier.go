package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/StefanMaier/MarketFox/internal/pkg/cache"
	"github.com/StefanMaier/MarketFox/internal/pkg/env"
	"github.com/StefanMaier/MarketFox/internal/pkg/mail"
)

// NotifyQueueKey is the Redis list holding pending notification tasks.
const NotifyQueueKey = "notify_queue"

// OrderStatusTask is one queued order-status notification.
type OrderStatusTask struct {
	OrderID       uint      `json:"order_id"`
	Reference     string    `json:"reference"`
	OrderStatus   string    `json:"order_status"`
	PaymentStatus string    `json:"payment_status"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Notifier decouples notification side effects from the core flows. Enqueue
// failures are logged and swallowed: a lost notification must never fail a
// job or an order update.
type Notifier struct {
	recipient string

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewNotifier creates a notifier; notifications go to the configured shop
// operator address.
func NewNotifier() *Notifier {
	return &Notifier{
		recipient: env.GetEnv("NOTIFY_RECIPIENT", ""),
	}
}

var (
	globalNotifier *Notifier
	notifierOnce   sync.Once
)

// GetNotifier returns the global notifier (singleton).
func GetNotifier() *Notifier {
	notifierOnce.Do(func() {
		globalNotifier = NewNotifier()
	})
	return globalNotifier
}

// NotifyOrderStatus enqueues an order status notification, fire-and-forget.
func (n *Notifier) NotifyOrderStatus(orderID uint, reference, orderStatus, paymentStatus string) {
	task := OrderStatusTask{
		OrderID:       orderID,
		Reference:     reference,
		OrderStatus:   orderStatus,
		PaymentStatus: paymentStatus,
		EnqueuedAt:    time.Now(),
	}
	data, err := json.Marshal(task)
	if err != nil {
		log.Errorf("[Notify] Could not marshal task for order %d: %v", orderID, err)
		return
	}
	if err := cache.GetClient().LPush(context.Background(), NotifyQueueKey, data).Err(); err != nil {
		log.Errorf("[Notify] Could not enqueue task for order %d: %v", orderID, err)
	}
}

// Start launches the delivery worker.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	n.stopCh = make(chan struct{})
	n.running = true

	n.wg.Add(1)
	go n.worker()
	log.Info("[Notify] Delivery worker started")
}

// Stop terminates the worker.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	close(n.stopCh)
	n.running = false
	n.wg.Wait()
	log.Info("[Notify] Delivery worker stopped")
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-n.stopCh:
			return
		default:
			result, err := cache.GetClient().BRPop(ctx, time.Second, NotifyQueueKey).Result()
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[Notify] Queue pop error: %v", err)
					time.Sleep(time.Second)
				}
				continue
			}
			// BRPop returns [key, value].
			if len(result) < 2 {
				continue
			}
			n.deliver([]byte(result[1]))
		}
	}
}

// deliver sends one task at-least-once. Failures are logged; the task is not
// re-queued since notifications are advisory.
func (n *Notifier) deliver(data []byte) {
	var task OrderStatusTask
	if err := json.Unmarshal(data, &task); err != nil {
		log.Errorf("[Notify] Dropping unparsable task: %v", err)
		return
	}
	if n.recipient == "" {
		log.Debugf("[Notify] No recipient configured, dropping task for order %d", task.OrderID)
		return
	}

	subject := fmt.Sprintf("Order %s is now %s", task.Reference, task.OrderStatus)
	body := fmt.Sprintf(
		"<p>Order <strong>%s</strong> (id %d) changed to status <strong>%s</strong>, payment status <strong>%s</strong>.</p>",
		task.Reference, task.OrderID, task.OrderStatus, task.PaymentStatus,
	)
	if err := mail.SendMail(n.recipient, subject, body); err != nil {
		if errors.Is(err, mail.ErrNotConfigured) {
			log.Debugf("[Notify] Mail not configured, dropping task for order %d", task.OrderID)
			return
		}
		log.Errorf("[Notify] Delivery failed for order %d: %v", task.OrderID, err)
	}
}
