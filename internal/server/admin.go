package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/auth"
	"erp/ecommerce/quote-storefront/internal/catalog"
	"erp/ecommerce/quote-storefront/internal/httpx"
	"erp/ecommerce/quote-storefront/internal/redirects"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	auth.SetCookie(w, sess.Token, sess.ExpiresAt, s.secure)
	s.logger.Info("admin login", zap.String("email", sess.User.Email))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": sess, "event_topic": "erp.ecommerce.admin.logged_in"})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		if err := s.auth.Logout(r.Context(), token); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	auth.ClearCookie(w, s.secure)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"event_topic": "erp.ecommerce.admin.logged_out"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": sess, "event_topic": "erp.ecommerce.admin.read"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	sess, _ := auth.FromContext(r.Context())
	if err := s.auth.ChangePassword(r.Context(), sess.User.ID, req.CurrentPassword, req.NewPassword, sess.Token); err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"event_topic": "erp.ecommerce.admin.password_changed"})
}

func (s *Server) createBrand(w http.ResponseWriter, r *http.Request) {
	var in catalog.BrandInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.catalog.CreateBrand(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"item": b, "event_topic": "erp.ecommerce.brand.created"})
}

func (s *Server) updateBrand(w http.ResponseWriter, r *http.Request) {
	var in catalog.BrandInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := s.catalog.UpdateBrand(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": b, "event_topic": "erp.ecommerce.brand.updated"})
}

func (s *Server) deleteBrand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.catalog.DeleteBrand(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "event_topic": "erp.ecommerce.brand.deleted"})
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var in catalog.CategoryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.catalog.CreateCategory(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"item": c, "event_topic": "erp.ecommerce.category.created"})
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	var in catalog.CategoryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.catalog.UpdateCategory(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": c, "event_topic": "erp.ecommerce.category.updated"})
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.catalog.DeleteCategory(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "event_topic": "erp.ecommerce.category.deleted"})
}

// adminListProducts includes inactive products unless active=true is given.
func (s *Server) adminListProducts(w http.ResponseWriter, r *http.Request) {
	s.writeProducts(w, r, httpx.BoolParam(r, "active"))
}

func (s *Server) adminGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": p, "event_topic": "erp.ecommerce.product.read"})
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.catalog.CreateProduct(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"item": p, "event_topic": "erp.ecommerce.product.created"})
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch catalog.ProductPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": p, "event_topic": "erp.ecommerce.product.updated"})
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.catalog.DeleteProduct(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "event_topic": "erp.ecommerce.product.deleted"})
}

func (s *Server) updatePricing(w http.ResponseWriter, r *http.Request) {
	var u catalog.PricingUpdate
	if err := httpx.DecodeJSON(r, &u); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.catalog.UpdatePricing(r.Context(), u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"result": res, "event_topic": "erp.ecommerce.product.pricing_updated"})
}

func (s *Server) listRedirects(w http.ResponseWriter, r *http.Request) {
	items, err := s.redirects.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "event_topic": "erp.ecommerce.redirect.listed"})
}

func (s *Server) getRedirect(w http.ResponseWriter, r *http.Request) {
	rd, err := s.redirects.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": rd, "event_topic": "erp.ecommerce.redirect.read"})
}

func (s *Server) createRedirect(w http.ResponseWriter, r *http.Request) {
	var in redirects.Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rd, err := s.redirects.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"item": rd, "event_topic": "erp.ecommerce.redirect.created"})
}

func (s *Server) updateRedirect(w http.ResponseWriter, r *http.Request) {
	var in redirects.Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rd, err := s.redirects.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": rd, "event_topic": "erp.ecommerce.redirect.updated"})
}

func (s *Server) deleteRedirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.redirects.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"id": id, "event_topic": "erp.ecommerce.redirect.deleted"})
}

func (s *Server) exportRedirects(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="redirects.csv"`)
	if err := s.redirects.Export(r.Context(), w); err != nil {
		s.logger.Error("export redirects", zap.Error(err))
	}
}

// importRedirects accepts the CSV as the raw body or as a multipart "file".
func (s *Server) importRedirects(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 5<<20)
	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "missing file")
			return
		}
		defer file.Close()
		body = file
	}
	res, err := s.redirects.Import(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"result": res, "event_topic": "erp.ecommerce.redirect.imported"})
}
