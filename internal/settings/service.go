// Package settings exposes the flat key/value program configuration: the
// tier table, the admin allowlist, and the referral cookie duration. Reads
// go through a short-lived redis cache; writes invalidate it.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tierlink/tierlink-backend/internal/tiers"
	"github.com/tierlink/tierlink-backend/pkg/config"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
)

// Keys the service validates on write. Unknown keys pass through untouched.
const (
	KeyTierTable   = "tier_table"
	KeyAdminEmails = "admin_emails"
	KeyCookieDays  = "cookie_days"
)

const (
	cacheScope = "settings"
	cacheTTL   = time.Minute
)

type settingsRepository interface {
	ListAll(ctx context.Context) ([]models.Setting, error)
	Upsert(ctx context.Context, key, value string) error
}

type settingsCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(scope string) string
}

// Snapshot is an immutable per-request view of the stored configuration
// with defaults applied.
type Snapshot struct {
	TierTable   tiers.Table
	AdminEmails []string
	CookieDays  int
	Raw         map[string]string
}

// Service exposes settings reads and the validated write path.
type Service interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	List(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, values map[string]string) error
	IsAdminEmail(ctx context.Context, email string) (bool, error)
}

type service struct {
	repo  settingsRepository
	cache settingsCache
	cfg   config.Config
}

// NewService builds a settings service. The cache may be nil, in which
// case every read hits the database.
func NewService(repo settingsRepository, cache settingsCache, cfg config.Config) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	return &service{repo: repo, cache: cache, cfg: cfg}, nil
}

func (s *service) Snapshot(ctx context.Context) (*Snapshot, error) {
	raw, err := s.rawValues(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		TierTable:   tiers.DefaultTable(),
		AdminEmails: s.cfg.Admin.BootstrapEmailList(),
		CookieDays:  s.cfg.Referral.CookieDays,
		Raw:         raw,
	}

	if tableJSON, ok := raw[KeyTierTable]; ok && tableJSON != "" {
		table, err := tiers.ParseTable([]byte(tableJSON))
		if err != nil {
			// A bad stored table should not take reads down; fall back
			// to the default brackets.
			return snap, nil
		}
		snap.TierTable = table
	}
	if emails, ok := raw[KeyAdminEmails]; ok && strings.TrimSpace(emails) != "" {
		snap.AdminEmails = splitEmails(emails)
	}
	if days, ok := raw[KeyCookieDays]; ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(days)); err == nil && parsed > 0 {
			snap.CookieDays = parsed
		}
	}
	return snap, nil
}

func (s *service) List(ctx context.Context) (map[string]string, error) {
	return s.rawValues(ctx)
}

func (s *service) Update(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no settings provided")
	}
	for key, value := range values {
		if err := validateValue(key, value); err != nil {
			return err
		}
	}
	for key, value := range values {
		if err := s.repo.Upsert(ctx, strings.TrimSpace(key), value); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save setting")
		}
	}
	s.invalidate(ctx)
	return nil
}

func (s *service) IsAdminEmail(ctx context.Context, email string) (bool, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, allowed := range snap.AdminEmails {
		if allowed == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) rawValues(ctx context.Context) (map[string]string, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, s.cache.CacheKey(cacheScope)); err == nil {
			var values map[string]string
			if err := json.Unmarshal([]byte(cached), &values); err == nil {
				return values, nil
			}
		}
	}

	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(values); err == nil {
			_ = s.cache.Set(ctx, s.cache.CacheKey(cacheScope), string(encoded), cacheTTL)
		}
	}
	return values, nil
}

func (s *service) invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, s.cache.CacheKey(cacheScope))
	}
}

func validateValue(key, value string) error {
	switch strings.TrimSpace(key) {
	case "":
		return pkgerrors.New(pkgerrors.CodeValidation, "setting key cannot be empty")
	case KeyTierTable:
		if _, err := tiers.ParseTable([]byte(value)); err != nil {
			return err
		}
	case KeyAdminEmails:
		for _, email := range splitEmails(value) {
			if !strings.Contains(email, "@") {
				return pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("invalid admin email %q", email))
			}
		}
	case KeyCookieDays:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || parsed < 1 || parsed > 365 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cookie_days must be an integer between 1 and 365")
		}
	}
	return nil
}

func splitEmails(value string) []string {
	parts := strings.Split(value, ",")
	emails := make([]string, 0, len(parts))
	for _, part := range parts {
		email := strings.ToLower(strings.TrimSpace(part))
		if email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}
