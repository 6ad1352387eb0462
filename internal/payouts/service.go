package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tierlink/tierlink-backend/pkg/db/models"
	"github.com/tierlink/tierlink-backend/pkg/enums"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
	"github.com/tierlink/tierlink-backend/pkg/pagination"
	"github.com/tierlink/tierlink-backend/pkg/tipalti"
)

type payoutRepository interface {
	Create(ctx context.Context, payout *models.Payout) error
	FindByRefCode(ctx context.Context, refCode string) (*models.Payout, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus, paidAt *time.Time) error
	List(ctx context.Context, affiliateID *uuid.UUID, params pagination.Params) ([]models.Payout, error)
}

type affiliateSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Affiliate, error)
	AddStoreCredit(ctx context.Context, id uuid.UUID, amount string) error
}

type conversionMarker interface {
	MarkStatusByAffiliate(ctx context.Context, affiliateID uuid.UUID, from, to enums.ConversionStatus) error
}

type activityLogger interface {
	Log(ctx context.Context, affiliateID uuid.UUID, entryType enums.ActivityType, metadata any) error
}

type paymentProcessor interface {
	SubmitPayment(ctx context.Context, req tipalti.PaymentRequest) error
}

// PayoutDTO is the API shape of one payout.
type PayoutDTO struct {
	ID          uuid.UUID       `json:"id"`
	AffiliateID uuid.UUID       `json:"affiliateId"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	RefCode     string          `json:"refCode"`
	Status      string          `json:"status"`
	PaidAt      *time.Time      `json:"paidAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SubmitInput is the payout submission payload.
type SubmitInput struct {
	AffiliateID uuid.UUID
	Amount      decimal.Decimal
	Currency    string
}

// Service submits payouts and applies processor status callbacks.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*PayoutDTO, error)
	List(ctx context.Context, affiliateID *uuid.UUID, params pagination.Params) ([]PayoutDTO, string, error)
	// ApplyProcessorStatus handles a processor callback matched by reference
	// code. Unknown codes report false without error.
	ApplyProcessorStatus(ctx context.Context, refCode, status string) (bool, error)
}

type service struct {
	repo        payoutRepository
	affiliates  affiliateSource
	conversions conversionMarker
	activity    activityLogger
	processor   paymentProcessor
	logg        *logger.Logger
	now         func() time.Time
}

// ServiceDeps wires the collaborators a payout service needs.
type ServiceDeps struct {
	Repo        payoutRepository
	Affiliates  affiliateSource
	Conversions conversionMarker
	Activity    activityLogger
	Processor   paymentProcessor
	Logger      *logger.Logger
}

// NewService builds a payout service. The processor may be nil when the
// integration is not configured; processor payouts then fail cleanly.
func NewService(deps ServiceDeps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if deps.Affiliates == nil {
		return nil, fmt.Errorf("affiliate source required")
	}
	if deps.Activity == nil {
		return nil, fmt.Errorf("activity service required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.New(logger.Options{ServiceName: "payouts"})
	}
	return &service{
		repo:        deps.Repo,
		affiliates:  deps.Affiliates,
		conversions: deps.Conversions,
		activity:    deps.Activity,
		processor:   deps.Processor,
		logg:        logg,
		now:         time.Now,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*PayoutDTO, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	affiliate, err := s.affiliates.FindByID(ctx, input.AffiliateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "affiliate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load affiliate")
	}
	if affiliate.Status != enums.AffiliateStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only active affiliates can be paid")
	}

	payout := &models.Payout{
		AffiliateID: affiliate.ID,
		Amount:      input.Amount.Round(2),
		Method:      affiliate.PayoutMethod,
		RefCode:     newRefCode(),
		Status:      enums.PayoutStatusPending,
	}

	switch affiliate.PayoutMethod {
	case enums.PayoutMethodProcessor:
		if err := s.submitToProcessor(ctx, affiliate, payout, input.Currency); err != nil {
			return nil, err
		}
	case enums.PayoutMethodStoreCredit:
		if err := s.grantStoreCredit(ctx, affiliate, payout); err != nil {
			return nil, err
		}
	case enums.PayoutMethodManual:
		// recorded for bookkeeping, settled outside the system
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payout method")
	}

	if err := s.repo.Create(ctx, payout); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout")
	}

	if err := s.activity.Log(ctx, affiliate.ID, enums.ActivityTypePayoutSent, map[string]string{
		"refCode": payout.RefCode,
		"amount":  payout.Amount.StringFixed(2),
		"method":  payout.Method.String(),
	}); err != nil {
		s.logg.Error(ctx, "record payout activity failed", err)
	}
	return toDTO(payout), nil
}

func (s *service) submitToProcessor(ctx context.Context, affiliate *models.Affiliate, payout *models.Payout, currency string) error {
	if s.processor == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "payment processor is not configured")
	}
	if affiliate.Idap == nil || strings.TrimSpace(*affiliate.Idap) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "affiliate has no processor payee id")
	}

	// processor rejections surface verbatim to the caller as the primary error
	err := s.processor.SubmitPayment(ctx, tipalti.PaymentRequest{
		Idap:     *affiliate.Idap,
		RefCode:  payout.RefCode,
		Amount:   payout.Amount,
		Currency: currencyOrDefault(currency),
	})
	if err != nil {
		return err
	}
	payout.Status = enums.PayoutStatusSubmitted
	return nil
}

func (s *service) grantStoreCredit(ctx context.Context, affiliate *models.Affiliate, payout *models.Payout) error {
	if err := s.affiliates.AddStoreCredit(ctx, affiliate.ID, payout.Amount.StringFixed(2)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant store credit")
	}
	at := s.now()
	payout.Status = enums.PayoutStatusCompleted
	payout.PaidAt = &at
	return nil
}

func (s *service) List(ctx context.Context, affiliateID *uuid.UUID, params pagination.Params) ([]PayoutDTO, string, error) {
	rows, err := s.repo.List(ctx, affiliateID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	out := make([]PayoutDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i]))
	}
	return out, nextCursor, nil
}

func (s *service) ApplyProcessorStatus(ctx context.Context, refCode, status string) (bool, error) {
	payout, err := s.repo.FindByRefCode(ctx, refCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}

	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "paid", "cleared":
		if payout.Status == enums.PayoutStatusCompleted {
			return true, nil
		}
		at := s.now()
		if err := s.repo.UpdateStatus(ctx, payout.ID, enums.PayoutStatusCompleted, &at); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payout")
		}
		if s.conversions != nil {
			if err := s.conversions.MarkStatusByAffiliate(ctx, payout.AffiliateID,
				enums.ConversionStatusApproved, enums.ConversionStatusPaid); err != nil {
				s.logg.Error(ctx, "mark conversions paid failed", err)
			}
		}
		if err := s.activity.Log(ctx, payout.AffiliateID, enums.ActivityTypePayoutComplete,
			map[string]string{"refCode": payout.RefCode}); err != nil {
			s.logg.Error(ctx, "record payout completion activity failed", err)
		}
	case "failed", "rejected", "cancelled":
		if err := s.repo.UpdateStatus(ctx, payout.ID, enums.PayoutStatusFailed, nil); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payout")
		}
	default:
		// intermediate statuses (submitted, processing) are acknowledged
		// without a transition
	}
	return true, nil
}

func toDTO(payout *models.Payout) *PayoutDTO {
	return &PayoutDTO{
		ID:          payout.ID,
		AffiliateID: payout.AffiliateID,
		Amount:      payout.Amount,
		Method:      payout.Method.String(),
		RefCode:     payout.RefCode,
		Status:      payout.Status.String(),
		PaidAt:      payout.PaidAt,
		CreatedAt:   payout.CreatedAt,
	}
}

func newRefCode() string {
	return "po-" + uuid.NewString()
}

func currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "USD"
	}
	return currency
}
