package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"erp/ecommerce/quote-storefront/internal/auth"
	"erp/ecommerce/quote-storefront/internal/httpx"
	"erp/ecommerce/quote-storefront/internal/quotes"
)

func (s *Server) submitQuote(w http.ResponseWriter, r *http.Request) {
	var req quotes.SubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.ClientIP = httpx.ClientIP(r)
	res, err := s.quotes.Submit(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := res.Quote
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"quote_number":       q.QuoteNumber,
		"status":             q.Status,
		"item_count":         q.ItemCount,
		"has_unpriced_items": q.HasUnpriced,
		"delivery_zone":      q.DeliveryZone,
		"email_sent":         res.CustomerNotified,
		"event_topic":        "erp.ecommerce.quote.submitted",
	})
}

// optionalJSON decodes a body that may be empty.
func optionalJSON(r *http.Request, v any) error {
	if err := httpx.DecodeJSON(r, v); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		return err
	}
	return nil
}

func (s *Server) approvalSummary(w http.ResponseWriter, r *http.Request) {
	a, err := s.quotes.ApprovalSummary(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": a, "event_topic": "erp.ecommerce.quote.approval.read"})
}

func (s *Server) approveQuote(w http.ResponseWriter, r *http.Request) {
	var opts quotes.SendOptions
	if err := optionalJSON(r, &opts); err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := s.quotes.Approve(r.Context(), chi.URLParam(r, "token"), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"quote_number": q.QuoteNumber,
		"sent_to":      q.Email,
		"pdf_version":  q.PDFVersion,
		"event_topic":  "erp.ecommerce.quote.forwarded",
	})
}

func (s *Server) listQuotes(w http.ResponseWriter, r *http.Request) {
	f := quotes.ListFilter{
		IncludeDeleted: httpx.BoolParam(r, "include_deleted"),
		Query:          httpx.Query(r, "q"),
	}
	if raw := httpx.Query(r, "status"); raw != "" && raw != "all" {
		st, ok := quotes.ParseStatus(raw)
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
		f.Status = st
	}
	list, err := s.quotes.Store().List(r.Context(), f, httpx.Query(r, "cursor"), httpx.IntParam(r, "limit", 50, 1, 200))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":       list.Items,
		"next_cursor": list.NextCursor,
		"cached":      list.Cached,
		"event_topic": "erp.ecommerce.quote.listed",
	})
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Store().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	logs, err := s.audit.List(r.Context(), q.QuoteNumber, 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"item":        q,
		"flags":       quotes.Flags(q),
		"email_logs":  logs,
		"event_topic": "erp.ecommerce.quote.read",
	})
}

func (s *Server) updateQuote(w http.ResponseWriter, r *http.Request) {
	var p quotes.Patch
	if err := httpx.DecodeJSON(r, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := s.quotes.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": q, "event_topic": "erp.ecommerce.quote.updated"})
}

func (s *Server) deleteQuote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	by := ""
	if sess, ok := auth.FromContext(r.Context()); ok {
		by = sess.User.Email
	}
	if err := s.quotes.Store().SoftDelete(r.Context(), id, by); err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "event_topic": "erp.ecommerce.quote.deleted"})
}

func (s *Server) restoreQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Store().Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": q, "event_topic": "erp.ecommerce.quote.restored"})
}

// preparedBy falls back to the logged-in admin's name.
func preparedBy(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if sess, ok := auth.FromContext(r.Context()); ok {
		return sess.User.Name
	}
	return ""
}

func (s *Server) quotePDF(w http.ResponseWriter, r *http.Request) {
	draft := httpx.BoolParam(r, "draft")
	pdf, q, err := s.quotes.RenderPDF(r.Context(), chi.URLParam(r, "id"), draft, preparedBy(r, httpx.Query(r, "prepared_by")))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	name := q.QuoteNumber + ".pdf"
	if draft {
		name = q.QuoteNumber + "-draft.pdf"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) sendOptions(r *http.Request) (quotes.SendOptions, error) {
	var opts quotes.SendOptions
	if err := optionalJSON(r, &opts); err != nil {
		return opts, err
	}
	opts.PreparedBy = preparedBy(r, opts.PreparedBy)
	return opts, nil
}

func (s *Server) emailPreview(w http.ResponseWriter, r *http.Request) {
	opts, err := s.sendOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	msg, err := s.quotes.EmailPreview(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"subject":     msg.Subject,
		"html":        msg.HTML,
		"text":        msg.Text,
		"event_topic": "erp.ecommerce.quote.email.previewed",
	})
}

func (s *Server) sendQuote(w http.ResponseWriter, r *http.Request) {
	opts, err := s.sendOptions(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := s.quotes.Send(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": q, "event_topic": "erp.ecommerce.quote.forwarded"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	c, err := s.quotes.Store().CountByStatus(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"quotes": c, "event_topic": "erp.ecommerce.quote.counted"})
}
