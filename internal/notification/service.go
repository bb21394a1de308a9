package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborhealth/platform/internal/shared/metrics"
)

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Workers       int
	BufferSize    int
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Workers:       4,
		BufferSize:    1000,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
	}
}

// Service dispatches notifications to providers through a worker pool
type Service struct {
	emailProvider EmailProvider
	faxProvider   FaxProvider

	mu      sync.RWMutex
	pending map[string]*Notification
	stats   *Stats

	notifCh chan *Notification
	workers int

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	config ServiceConfig
	log    zerolog.Logger
}

// NewService creates a new notification service
func NewService(emailProvider EmailProvider, faxProvider FaxProvider, config ServiceConfig, log zerolog.Logger) *Service {
	return &Service{
		emailProvider: emailProvider,
		faxProvider:   faxProvider,
		pending:       make(map[string]*Notification),
		stats:         &Stats{},
		notifCh:       make(chan *Notification, config.BufferSize),
		workers:       config.Workers,
		stopCh:        make(chan struct{}),
		config:        config,
		log:           log,
	}
}

// Start starts the worker pool
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	return nil
}

// Stop stops the worker pool
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("service not started")
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	return nil
}

// Send queues a notification for delivery
func (s *Service) Send(ctx context.Context, notification *Notification) error {
	if notification.ID == "" {
		notification.ID = generateNotificationID()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	if notification.Priority == "" {
		notification.Priority = PriorityNormal
	}
	notification.UpdatedAt = time.Now()
	notification.Status = StatusPending

	s.mu.Lock()
	s.pending[notification.ID] = notification
	s.mu.Unlock()

	select {
	case s.notifCh <- notification:
		return nil
	default:
		return fmt.Errorf("notification buffer full")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case notif := <-s.notifCh:
			s.process(ctx, notif)
		}
	}
}

func (s *Service) process(ctx context.Context, notif *Notification) {
	var err error

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch notif.Type {
	case NotificationTypeEmail:
		if s.emailProvider != nil {
			err = s.emailProvider.Send(sendCtx, notif)
		} else {
			err = fmt.Errorf("email provider not configured")
		}
	case NotificationTypeFax:
		if s.faxProvider != nil {
			err = s.faxProvider.Send(sendCtx, notif)
		} else {
			err = fmt.Errorf("fax provider not configured")
		}
	default:
		err = fmt.Errorf("unknown notification type: %s", notif.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		notif.ErrorMessage = err.Error()
		notif.RetryCount++
		now := time.Now()
		notif.LastRetryAt = &now

		if notif.RetryCount >= s.config.RetryAttempts {
			notif.Status = StatusFailed
			s.updateStats(notif, false)
			metrics.RecordNotificationSent(string(notif.Type), "failed")
			s.log.Error().Err(err).
				Str("notification_id", notif.ID).
				Str("type", string(notif.Type)).
				Msg("notification delivery failed permanently")
		} else {
			// Backoff grows with each attempt
			delay := s.config.RetryDelay * time.Duration(notif.RetryCount)
			s.wg.Add(1)
			go s.requeueAfter(ctx, notif, delay)
		}
	} else {
		now := time.Now()
		notif.SentAt = &now
		notif.Status = StatusSent
		s.updateStats(notif, true)
		metrics.RecordNotificationSent(string(notif.Type), "sent")
	}

	notif.UpdatedAt = time.Now()
}

// requeueAfter waits out the retry backoff and puts the notification
// back on the queue. Shutdown interrupts the wait so Stop does not
// leave retry goroutines behind.
func (s *Service) requeueAfter(ctx context.Context, notif *Notification, delay time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		s.log.Warn().
			Str("notification_id", notif.ID).
			Str("type", string(notif.Type)).
			Msg("retry abandoned, shutting down")
		return
	case <-s.stopCh:
		s.log.Warn().
			Str("notification_id", notif.ID).
			Str("type", string(notif.Type)).
			Msg("retry abandoned, shutting down")
		return
	case <-timer.C:
	}

	select {
	case s.notifCh <- notif:
	default:
		s.log.Warn().
			Str("notification_id", notif.ID).
			Str("type", string(notif.Type)).
			Msg("retry dropped, queue full")
	}
}

func (s *Service) updateStats(notif *Notification, success bool) {
	if s.stats.ByType == nil {
		s.stats.ByType = make(map[NotificationType]int64)
	}
	if s.stats.ByPriority == nil {
		s.stats.ByPriority = make(map[NotificationPriority]int64)
	}

	s.stats.TotalSent++
	s.stats.ByType[notif.Type]++
	s.stats.ByPriority[notif.Priority]++

	if success {
		s.stats.TotalDelivered++
	} else {
		s.stats.TotalFailed++
	}

	if s.stats.TotalSent > 0 {
		s.stats.DeliveryRate = float64(s.stats.TotalDelivered) / float64(s.stats.TotalSent)
	}
}

// GetNotification returns a queued notification by ID
func (s *Service) GetNotification(id string) (*Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.pending[id]
	return n, ok
}

// GetStats returns a snapshot of delivery statistics
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.stats
}
