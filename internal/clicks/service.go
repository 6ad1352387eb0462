package clicks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

// Traffic rule thresholds. A click that pushes a counter past a threshold
// raises the corresponding alert.
const (
	SpikeThreshold = 50
	SpikeWindow    = time.Hour
	IPThreshold    = 10
	IPWindow       = 24 * time.Hour
)

type clickRepository interface {
	Create(ctx context.Context, click *models.Click) error
	CountByAffiliateSince(ctx context.Context, affiliateID uuid.UUID, since time.Time) (int64, error)
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)
}

type alertRaiser interface {
	Raise(ctx context.Context, affiliateID uuid.UUID, alertType enums.AlertType, message string, window time.Duration) (bool, error)
}

// Service records clicks and runs the traffic rules.
type Service interface {
	Record(ctx context.Context, affiliateID uuid.UUID, ip, userAgent string) error
}

type service struct {
	repo   clickRepository
	alerts alertRaiser
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the click service.
func NewService(repo clickRepository, alerts alertRaiser, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("click repository required")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert service required")
	}
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "clicks"})
	}
	return &service{repo: repo, alerts: alerts, logg: logg, now: time.Now}, nil
}

// Record inserts the click row, then evaluates both rules. Rule failures
// are logged and swallowed so the redirect path never breaks.
func (s *service) Record(ctx context.Context, affiliateID uuid.UUID, ip, userAgent string) error {
	if affiliateID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}

	click := &models.Click{
		AffiliateID: affiliateID,
		IP:          ip,
		UserAgent:   userAgent,
	}
	if err := s.repo.Create(ctx, click); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record click")
	}

	s.evaluateRules(ctx, affiliateID, ip)
	return nil
}

func (s *service) evaluateRules(ctx context.Context, affiliateID uuid.UUID, ip string) {
	ctx = s.logg.WithAffiliateID(ctx, affiliateID.String())
	now := s.now()

	spikeCount, err := s.repo.CountByAffiliateSince(ctx, affiliateID, now.Add(-SpikeWindow))
	if err != nil {
		s.logg.Error(ctx, "click spike check failed", err)
	} else if spikeCount > SpikeThreshold {
		message := fmt.Sprintf("%d clicks in the last hour", spikeCount)
		if _, err := s.alerts.Raise(ctx, affiliateID, enums.AlertTypeClickSpike, message, SpikeWindow); err != nil {
			s.logg.Error(ctx, "raise click spike alert failed", err)
		}
	}

	if ip == "" {
		return
	}
	ipCount, err := s.repo.CountByIPSince(ctx, ip, now.Add(-IPWindow))
	if err != nil {
		s.logg.Error(ctx, "ip abuse check failed", err)
	} else if ipCount > IPThreshold {
		message := fmt.Sprintf("%d clicks from %s in the last 24h", ipCount, ip)
		if _, err := s.alerts.Raise(ctx, affiliateID, enums.AlertTypeIPAbuse, message, IPWindow); err != nil {
			s.logg.Error(ctx, "raise ip abuse alert failed", err)
		}
	}
}
