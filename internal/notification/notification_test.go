package notification

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testConfig() ServiceConfig {
	return ServiceConfig{
		Workers:       2,
		BufferSize:    10,
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
	}
}

func TestServiceDeliversEmail(t *testing.T) {
	email := NewMockEmailProvider()
	fax := NewMockFaxProvider()
	svc := NewService(email, fax, testConfig(), zerolog.Nop())

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop()

	notif := &Notification{
		Type:    NotificationTypeEmail,
		Email:   "intake@example.com",
		Subject: "Referral received",
		Body:    "A new referral has been received.",
	}
	if err := svc.Send(ctx, notif); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return len(email.GetSentNotifications()) == 1
	})

	stats := svc.GetStats()
	if stats.TotalDelivered != 1 {
		t.Errorf("TotalDelivered = %d, want 1", stats.TotalDelivered)
	}
}

func TestServiceDeliversFax(t *testing.T) {
	email := NewMockEmailProvider()
	fax := NewMockFaxProvider()
	svc := NewService(email, fax, testConfig(), zerolog.Nop())

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop()

	notif := &Notification{
		Type:      NotificationTypeFax,
		FaxNumber: "+15555550123",
		Subject:   "Prescription",
		Body:      "See attached prescription.",
	}
	if err := svc.Send(ctx, notif); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return len(fax.GetSentNotifications()) == 1
	})
}

func TestServiceRetriesThenFails(t *testing.T) {
	email := NewMockEmailProvider()
	email.SetFailOnSend(true)
	svc := NewService(email, NewMockFaxProvider(), testConfig(), zerolog.Nop())

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop()

	notif := &Notification{
		Type:    NotificationTypeEmail,
		Email:   "intake@example.com",
		Subject: "will fail",
	}
	if err := svc.Send(ctx, notif); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		n, ok := svc.GetNotification(notif.ID)
		return ok && n.Status == StatusFailed
	})

	n, _ := svc.GetNotification(notif.ID)
	if n.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", n.RetryCount)
	}

	stats := svc.GetStats()
	if stats.TotalFailed != 1 {
		t.Errorf("TotalFailed = %d, want 1", stats.TotalFailed)
	}
}

func TestServiceRejectsUnknownType(t *testing.T) {
	svc := NewService(NewMockEmailProvider(), NewMockFaxProvider(), testConfig(), zerolog.Nop())

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop()

	notif := &Notification{Type: NotificationType("sms")}
	if err := svc.Send(ctx, notif); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		n, ok := svc.GetNotification(notif.ID)
		return ok && n.Status == StatusFailed
	})
}

func TestServiceDoubleStart(t *testing.T) {
	svc := NewService(NewMockEmailProvider(), NewMockFaxProvider(), testConfig(), zerolog.Nop())

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer svc.Stop()

	if err := svc.Start(ctx); err == nil {
		t.Error("expected error on double start")
	}
}

func TestStopInterruptsPendingRetry(t *testing.T) {
	email := NewMockEmailProvider()
	email.SetFailOnSend(true)
	cfg := testConfig()
	cfg.RetryDelay = time.Hour
	svc := NewService(email, NewMockFaxProvider(), cfg, zerolog.Nop())

	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	notif := &Notification{
		Type:    NotificationTypeEmail,
		Email:   "intake@example.com",
		Subject: "will retry",
	}
	if err := svc.Send(ctx, notif); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Wait for the first attempt to fail and schedule its retry
	waitFor(t, time.Second, func() bool {
		n, ok := svc.GetNotification(notif.ID)
		return ok && n.RetryCount == 1
	})

	// Stop must not wait out the backoff
	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a sleeping retry")
	}
}
