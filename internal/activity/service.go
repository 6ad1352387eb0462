package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

type activityRepository interface {
	Create(ctx context.Context, entry *models.ActivityEntry) error
	CreateWithTx(tx *gorm.DB, entry *models.ActivityEntry) error
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, limit int) ([]models.ActivityEntry, error)
	List(ctx context.Context, limit int) ([]models.ActivityEntry, error)
}

// EntryDTO is the API shape of one audit entry.
type EntryDTO struct {
	ID          uuid.UUID       `json:"id"`
	AffiliateID uuid.UUID       `json:"affiliateId"`
	Type        string          `json:"type"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Service records and lists audit entries.
type Service interface {
	Log(ctx context.Context, affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) error
	LogWithTx(tx *gorm.DB, affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) error
	ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, limit int) ([]EntryDTO, error)
	List(ctx context.Context, limit int) ([]EntryDTO, error)
}

type service struct {
	repo activityRepository
}

// NewService builds the activity service.
func NewService(repo activityRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("activity repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Log(ctx context.Context, affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) error {
	entry, err := buildEntry(affiliateID, entryType, metadata)
	if err != nil {
		return err
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
	}
	return nil
}

func (s *service) LogWithTx(tx *gorm.DB, affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) error {
	entry, err := buildEntry(affiliateID, entryType, metadata)
	if err != nil {
		return err
	}
	if err := s.repo.CreateWithTx(tx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record activity")
	}
	return nil
}

func (s *service) ListByAffiliate(ctx context.Context, affiliateID uuid.UUID, limit int) ([]EntryDTO, error) {
	entries, err := s.repo.ListByAffiliate(ctx, affiliateID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activity")
	}
	return toDTOs(entries), nil
}

func (s *service) List(ctx context.Context, limit int) ([]EntryDTO, error) {
	entries, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list activity")
	}
	return toDTOs(entries), nil
}

func buildEntry(affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) (*models.ActivityEntry, error) {
	if affiliateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "affiliate id is required")
	}
	if !entryType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid activity type")
	}
	entry := &models.ActivityEntry{AffiliateID: affiliateID, Type: entryType}
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode activity metadata")
		}
		entry.Metadata = encoded
	}
	return entry, nil
}

func toDTOs(entries []models.ActivityEntry) []EntryDTO {
	out := make([]EntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, EntryDTO{
			ID:          entry.ID,
			AffiliateID: entry.AffiliateID,
			Type:        entry.Type.String(),
			Metadata:    entry.Metadata,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return out
}
