package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/contesthub/mailing-engine/internal/domain"
	"github.com/contesthub/mailing-engine/internal/queue"
	"go.uber.org/zap"
)

func TestNewSchedulerAppliesDefaults(t *testing.T) {
	t.Parallel()

	scheduler, err := NewScheduler(&fakeCampaignRepo{}, &fakePublisher{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if scheduler.interval != defaultSchedulerScanInterval {
		t.Fatalf("interval = %s, want %s", scheduler.interval, defaultSchedulerScanInterval)
	}
	if scheduler.limit != defaultSchedulerScanLimit {
		t.Fatalf("limit = %d, want %d", scheduler.limit, defaultSchedulerScanLimit)
	}
}

func TestSchedulerScanDuePublishesTriggers(t *testing.T) {
	t.Parallel()

	repo := &fakeCampaignRepo{
		getDueScheduledFn: func(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
			if limit != 100 {
				t.Fatalf("limit = %d, want 100", limit)
			}
			if !now.Equal(testNow) {
				t.Fatalf("now = %v, want %v", now, testNow)
			}
			return []domain.Campaign{
				{ID: "c1", State: domain.StateScheduled},
				{ID: "c2", State: domain.StateScheduled},
			}, nil
		},
	}

	published := make([]queue.CampaignMessage, 0, 2)
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, msg queue.CampaignMessage) error {
			published = append(published, msg)
			return nil
		},
	}

	scheduler, err := NewScheduler(repo, publisher, 5*time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return testNow }

	if err := scheduler.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}

	if len(published) != 2 {
		t.Fatalf("published count = %d, want 2", len(published))
	}
	if published[0].CampaignID != "c1" || published[1].CampaignID != "c2" {
		t.Fatalf("published ids = %s, %s, want c1, c2", published[0].CampaignID, published[1].CampaignID)
	}
	for _, msg := range published {
		if msg.Trigger != queue.TriggerScheduler {
			t.Fatalf("trigger = %s, want %s", msg.Trigger, queue.TriggerScheduler)
		}
	}
}

func TestSchedulerScanDueContinuesOnPublishError(t *testing.T) {
	t.Parallel()

	repo := &fakeCampaignRepo{
		getDueScheduledFn: func(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
			return []domain.Campaign{
				{ID: "c1", State: domain.StateScheduled},
				{ID: "c2", State: domain.StateScheduled},
			}, nil
		},
	}

	calls := 0
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, msg queue.CampaignMessage) error {
			calls++
			if msg.CampaignID == "c1" {
				return errors.New("publish failed")
			}
			return nil
		},
	}

	scheduler, err := NewScheduler(repo, publisher, time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	scheduler.now = func() time.Time { return testNow }

	if err := scheduler.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}

	if calls != 2 {
		t.Fatalf("publish calls = %d, want 2", calls)
	}
}

func TestSchedulerScanDueRepositoryError(t *testing.T) {
	t.Parallel()

	repo := &fakeCampaignRepo{
		getDueScheduledFn: func(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
			return nil, errors.New("db unavailable")
		},
	}

	scheduler, err := NewScheduler(repo, &fakePublisher{}, time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if err := scheduler.scanDue(context.Background()); err == nil {
		t.Fatal("expected scanDue() error")
	}
}

func TestSchedulerStartReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scheduler, err := NewScheduler(&fakeCampaignRepo{}, &fakePublisher{}, time.Second, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
