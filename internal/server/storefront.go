package server

import (
	"encoding/xml"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"erp/ecommerce/quote-storefront/internal/catalog"
	"erp/ecommerce/quote-storefront/internal/httpx"
	"erp/ecommerce/quote-storefront/internal/shipping"
)

func (s *Server) listBrands(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.ListBrands(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "event_topic": "erp.ecommerce.brand.listed"})
}

func (s *Server) getBrand(w http.ResponseWriter, r *http.Request) {
	b, err := s.catalog.GetBrand(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": b, "event_topic": "erp.ecommerce.brand.read"})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.ListCategories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "event_topic": "erp.ecommerce.category.listed"})
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalog.GetCategory(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": c, "event_topic": "erp.ecommerce.category.read"})
}

// productFilter reads brand and category as an id or slug.
func (s *Server) productFilter(r *http.Request, activeOnly bool) (catalog.ProductFilter, error) {
	f := catalog.ProductFilter{ActiveOnly: activeOnly, Query: httpx.Query(r, "q")}
	if ref := httpx.Query(r, "brand"); ref != "" {
		b, err := s.catalog.GetBrand(r.Context(), ref)
		if err != nil {
			return f, err
		}
		f.BrandID = b.ID
	}
	if ref := httpx.Query(r, "category"); ref != "" {
		c, err := s.catalog.GetCategory(r.Context(), ref)
		if err != nil {
			return f, err
		}
		f.CategoryID = c.ID
	}
	return f, nil
}

func (s *Server) writeProducts(w http.ResponseWriter, r *http.Request, activeOnly bool) {
	f, err := s.productFilter(r, activeOnly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit := httpx.IntParam(r, "limit", 24, 1, 100)
	list, err := s.catalog.ListProducts(r.Context(), f, httpx.Query(r, "cursor"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"items":       list.Items,
		"next_cursor": list.NextCursor,
		"cached":      list.Cached,
		"event_topic": "erp.ecommerce.product.listed",
	})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	s.writeProducts(w, r, true)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetProductBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err == nil && !p.Active {
		err = catalog.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"item": p, "event_topic": "erp.ecommerce.product.read"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.Search(r.Context(), httpx.Query(r, "q"), httpx.IntParam(r, "limit", 20, 1, 50))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "event_topic": "erp.ecommerce.product.searched"})
}

// shippingZone classifies a postcode. An optional address query forces
// remote delivery for mine sites.
func (s *Server) shippingZone(w http.ResponseWriter, r *http.Request) {
	postcode := chi.URLParam(r, "postcode")
	if _, ok := shipping.ParsePostcode(postcode); !ok {
		httpx.WriteError(w, http.StatusBadRequest, "postcode must be 3 or 4 digits")
		return
	}
	d := shipping.ClassifyDelivery(postcode, httpx.Query(r, "address"))
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"delivery": d, "event_topic": "erp.ecommerce.shipping.classified"})
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

var staticPages = []sitemapURL{
	{Loc: "/", ChangeFreq: "weekly", Priority: "1.0"},
	{Loc: "/products", ChangeFreq: "weekly", Priority: "0.9"},
	{Loc: "/request-quote", ChangeFreq: "monthly", Priority: "0.8"},
	{Loc: "/brands", ChangeFreq: "monthly", Priority: "0.7"},
	{Loc: "/contact", ChangeFreq: "monthly", Priority: "0.7"},
	{Loc: "/about", ChangeFreq: "monthly", Priority: "0.6"},
}

func (s *Server) sitemap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slugs, err := s.catalog.ActiveSlugs(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	brands, err := s.catalog.ListBrands(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	set := urlset{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range staticPages {
		p.Loc = s.publicURL + p.Loc
		set.URLs = append(set.URLs, p)
	}
	for _, c := range categories {
		set.URLs = append(set.URLs, sitemapURL{Loc: s.publicURL + "/" + c.Slug, ChangeFreq: "weekly", Priority: "0.8"})
	}
	for _, b := range brands {
		set.URLs = append(set.URLs, sitemapURL{Loc: s.publicURL + "/brands/" + b.Slug, ChangeFreq: "monthly", Priority: "0.7"})
	}
	for _, slug := range slugs {
		set.URLs = append(set.URLs, sitemapURL{Loc: s.publicURL + "/" + slug, ChangeFreq: "monthly", Priority: "0.6"})
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		s.logger.Warn("encode sitemap", zap.Error(err))
	}
}
