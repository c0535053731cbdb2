package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/auth"
	"erp/ecommerce/quote-storefront/internal/contact"
	"erp/ecommerce/quote-storefront/internal/httpx"
	"erp/ecommerce/quote-storefront/internal/notify"
	"erp/ecommerce/quote-storefront/internal/store"
)

// RoutePasswordReset is the email audit route of reset links.
const RoutePasswordReset = "password_reset"

// resetRequested is returned whether or not the email belongs to an admin.
const resetRequested = "If an account exists with this email, you will receive a password reset link."

func (s *Server) submitContact(w http.ResponseWriter, r *http.Request) {
	var req contact.Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.contact.Submit(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"confirmation_sent": res.Confirmed,
		"event_topic":       "erp.ecommerce.contact.submitted",
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		s.fail(w, r, store.Invalid("email is required"))
		return
	}
	reset, err := s.auth.RequestPasswordReset(r.Context(), req.Email)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		s.logger.Info("password reset for unknown email")
	case err != nil:
		s.logger.Error("password reset request", zap.Error(err))
	default:
		s.sendPasswordReset(r.Context(), reset)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message":     resetRequested,
		"event_topic": "erp.ecommerce.admin.password_reset_requested",
	})
}

func (s *Server) sendPasswordReset(ctx context.Context, reset auth.PasswordReset) {
	link := s.publicURL + "/admin/reset-password?token=" + url.QueryEscape(reset.Token)
	rendered, err := notify.RenderPasswordReset(notify.ResetView{
		Name:         reset.User.Name,
		ResetURL:     link,
		ExpiresIn:    "1 hour",
		BusinessName: s.businessName,
	})
	if err != nil {
		s.logger.Error("render password reset email", zap.Error(err))
		return
	}
	msg := notify.Message{To: []string{reset.User.Email}, Subject: rendered.Subject, HTML: rendered.HTML, Text: rendered.Text}
	// Deliver logs and audits failures itself.
	_ = s.notifier.Deliver(ctx, RoutePasswordReset, "", msg)
}

type resetPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Password != req.ConfirmPassword {
		s.fail(w, r, store.Invalid("passwords do not match"))
		return
	}
	u, err := s.auth.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("admin password reset", zap.String("email", u.Email))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"message":     "Password has been reset. You can now sign in with your new password.",
		"event_topic": "erp.ecommerce.admin.password_reset",
	})
}
