package controllers

import (
	"net/http"

	"github.com/tierlink/tierlink-backend/public"
)

// TrackingSnippet serves the embedded storefront attribution script.
func TrackingSnippet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(public.TrackingSnippet)
	}
}
