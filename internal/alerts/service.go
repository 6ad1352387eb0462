package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

type alertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	List(ctx context.Context, undismissedOnly bool, limit int) ([]models.Alert, error)
	HasUndismissedSince(ctx context.Context, affiliateID uuid.UUID, alertType enums.AlertType, since time.Time) (bool, error)
	Dismiss(ctx context.Context, id uuid.UUID, at time.Time) error
}

// AlertDTO is the API shape of one alert.
type AlertDTO struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	AffiliateID uuid.UUID  `json:"affiliateId"`
	Message     string     `json:"message"`
	DismissedAt *time.Time `json:"dismissedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Service raises, lists, and dismisses alerts.
type Service interface {
	// Raise creates an alert unless an undismissed one of the same type
	// already exists for the affiliate inside the window.
	Raise(ctx context.Context, affiliateID uuid.UUID, alertType enums.AlertType, message string, window time.Duration) (bool, error)
	List(ctx context.Context, undismissedOnly bool, limit int) ([]AlertDTO, error)
	Dismiss(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo alertRepository
	now  func() time.Time
}

// NewService builds the alert service.
func NewService(repo alertRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("alert repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Raise(ctx context.Context, affiliateID uuid.UUID, alertType enums.AlertType, message string, window time.Duration) (bool, error) {
	if affiliateID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if !alertType.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid alert type")
	}

	since := s.now().Add(-window)
	exists, err := s.repo.HasUndismissedSince(ctx, affiliateID, alertType, since)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing alerts")
	}
	if exists {
		return false, nil
	}

	alert := &models.Alert{
		Type:        alertType,
		AffiliateID: affiliateID,
		Message:     message,
	}
	if err := s.repo.Create(ctx, alert); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create alert")
	}
	return true, nil
}

func (s *service) List(ctx context.Context, undismissedOnly bool, limit int) ([]AlertDTO, error) {
	alerts, err := s.repo.List(ctx, undismissedOnly, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list alerts")
	}
	out := make([]AlertDTO, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, AlertDTO{
			ID:          alert.ID,
			Type:        alert.Type.String(),
			AffiliateID: alert.AffiliateID,
			Message:     alert.Message,
			DismissedAt: alert.DismissedAt,
			CreatedAt:   alert.CreatedAt,
		})
	}
	return out, nil
}

func (s *service) Dismiss(ctx context.Context, id uuid.UUID) error {
	alert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load alert")
	}
	if alert.DismissedAt != nil {
		return nil
	}
	if err := s.repo.Dismiss(ctx, id, s.now()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dismiss alert")
	}
	return nil
}
