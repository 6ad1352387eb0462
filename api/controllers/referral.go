package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tierlink/tierlink-backend/api/responses"
	"github.com/tierlink/tierlink-backend/internal/affiliates"
	"github.com/tierlink/tierlink-backend/internal/clicks"
	"github.com/tierlink/tierlink-backend/internal/settings"
	"github.com/tierlink/tierlink-backend/pkg/config"
	"github.com/tierlink/tierlink-backend/pkg/db/models"
	pkgerrors "github.com/tierlink/tierlink-backend/pkg/errors"
	"github.com/tierlink/tierlink-backend/pkg/logger"
)

// RedirectDeps wires the referral redirect handlers.
type RedirectDeps struct {
	Affiliates affiliates.Service
	Clicks     clicks.Service
	Settings   settings.Service
	Referral   config.ReferralConfig
	Logger     *logger.Logger
}

// RedirectBySlug handles /ref/{slug}: record the click, drop the
// attribution cookie, and send the visitor to the storefront. Retired
// slugs answer with a permanent redirect to the canonical link so old
// marketing material keeps working.
func RedirectBySlug(deps RedirectDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "slug")))
		if slug == "" {
			responses.WriteError(r.Context(), deps.Logger, w, pkgerrors.New(pkgerrors.CodeValidation, "slug required"))
			return
		}

		affiliate, retired, err := deps.Affiliates.ResolveRedirect(r.Context(), slug)
		if err != nil {
			responses.WriteError(r.Context(), deps.Logger, w, err)
			return
		}

		if retired && affiliate.Slug != nil {
			http.Redirect(w, r, "/ref/"+url.PathEscape(*affiliate.Slug), http.StatusMovedPermanently)
			return
		}

		completeRedirect(deps, w, r, affiliate)
	}
}

// RedirectByID handles /api/ref/{id}: the id-based referral link used
// before a slug is assigned.
func RedirectByID(deps RedirectDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), deps.Logger, w, err)
			return
		}

		dto, err := deps.Affiliates.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), deps.Logger, w, err)
			return
		}
		completeRedirect(deps, w, r, &models.Affiliate{ID: dto.ID, Slug: dto.Slug, ReferralCode: dto.ReferralCode})
	}
}

func completeRedirect(deps RedirectDeps, w http.ResponseWriter, r *http.Request, affiliate *models.Affiliate) {
	ctx := r.Context()

	if deps.Clicks != nil {
		if err := deps.Clicks.Record(ctx, affiliate.ID, clientIPFrom(r), r.UserAgent()); err != nil && deps.Logger != nil {
			deps.Logger.Error(ctx, "failed to record referral click", err)
		}
	}

	ref := referralValue(affiliate)
	if ref != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     deps.Referral.CookieName,
			Value:    ref,
			Path:     "/",
			MaxAge:   cookieDays(ctx, deps) * 24 * 60 * 60,
			SameSite: http.SameSiteLaxMode,
		})
	}

	target := deps.Referral.StorefrontURL
	if ref != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "ref=" + url.QueryEscape(ref)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func referralValue(affiliate *models.Affiliate) string {
	if affiliate.Slug != nil && *affiliate.Slug != "" {
		return *affiliate.Slug
	}
	if affiliate.ReferralCode != nil && *affiliate.ReferralCode != "" {
		return *affiliate.ReferralCode
	}
	return affiliate.ID.String()
}

func cookieDays(ctx context.Context, deps RedirectDeps) int {
	if deps.Settings != nil {
		if snapshot, err := deps.Settings.Snapshot(ctx); err == nil && snapshot.CookieDays > 0 {
			return snapshot.CookieDays
		}
	}
	if deps.Referral.CookieDays > 0 {
		return deps.Referral.CookieDays
	}
	return 30
}

func clientIPFrom(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
