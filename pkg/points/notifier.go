package points

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultNotificationWorkers   = 2
	defaultNotificationQueueSize = 256
	defaultNotificationTimeout   = 10 * time.Second
)

// MessageSender delivers one chat message through the gateway.
type MessageSender interface {
	SendMessage(ctx context.Context, message Message) error
}

// Notifier accepts best-effort user notifications. Delivery failures never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, message Message)
}

// DispatcherConfig sizes the notification worker pool.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// NotificationDispatcher sends notifications on background workers after the ledger write.
type NotificationDispatcher struct {
	sender      MessageSender
	logger      OperationLogger
	sendTimeout time.Duration
	queue       chan notificationJob

	mutex   sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

type notificationJob struct {
	ctx     context.Context
	message Message
}

// NewNotificationDispatcher starts the worker pool.
func NewNotificationDispatcher(sender MessageSender, config DispatcherConfig, options ...ServiceOption) (*NotificationDispatcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: message sender is nil", ErrInvalidServiceConfig)
	}
	if config.Workers <= 0 {
		config.Workers = defaultNotificationWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultNotificationQueueSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaultNotificationTimeout
	}
	resolved := applyOptions(options)
	dispatcher := &NotificationDispatcher{
		sender:      sender,
		logger:      resolved.logger,
		sendTimeout: config.SendTimeout,
		queue:       make(chan notificationJob, config.QueueSize),
	}
	for worker := 0; worker < config.Workers; worker++ {
		dispatcher.workers.Add(1)
		go dispatcher.run()
	}
	return dispatcher, nil
}

// Notify enqueues a message without blocking. A full or closed queue drops it.
func (dispatcher *NotificationDispatcher) Notify(ctx context.Context, message Message) {
	dispatcher.mutex.RLock()
	defer dispatcher.mutex.RUnlock()
	if dispatcher.closed {
		dispatcher.logDelivery(ctx, message, operationStatusDropped, ErrNotificationQueueClosed)
		return
	}
	select {
	case dispatcher.queue <- notificationJob{ctx: context.WithoutCancel(ctx), message: message}:
	default:
		dispatcher.logDelivery(ctx, message, operationStatusDropped, fmt.Errorf("notification queue full"))
	}
}

// Close stops accepting messages and waits for queued ones until ctx expires.
func (dispatcher *NotificationDispatcher) Close(ctx context.Context) error {
	dispatcher.mutex.Lock()
	if !dispatcher.closed {
		dispatcher.closed = true
		close(dispatcher.queue)
	}
	dispatcher.mutex.Unlock()

	drained := make(chan struct{})
	go func() {
		dispatcher.workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (dispatcher *NotificationDispatcher) run() {
	defer dispatcher.workers.Done()
	for job := range dispatcher.queue {
		sendContext, cancel := context.WithTimeout(job.ctx, dispatcher.sendTimeout)
		err := dispatcher.sender.SendMessage(sendContext, job.message)
		cancel()
		if err != nil {
			dispatcher.logDelivery(job.ctx, job.message, operationStatusDropped, err)
			continue
		}
		dispatcher.logDelivery(job.ctx, job.message, operationStatusOK, nil)
	}
}

func (dispatcher *NotificationDispatcher) logDelivery(ctx context.Context, message Message, status string, err error) {
	logOperation(ctx, dispatcher.logger, OperationLog{
		Operation: operationNotify,
		Status:    status,
		Detail:    fmt.Sprintf("chat_id=%d", message.ChatID),
		Error:     err,
	})
}
