// Package render turns page contexts into HTML.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"storefront-service/internal/domain"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Page names.
const (
	MainPage     = "mainpage"
	ProductPage  = "product"
	CategoryPage = "category"
	CartPage     = "cart"
)

// Page is the context shared by every template. Fields a page does not use
// stay zero.
type Page struct {
	Title      string                 `json:"title"`
	Categories []domain.CategoryCount `json:"categories"`
	Cart       *domain.Cart           `json:"cart"`
	Messages   []string               `json:"messages,omitempty"`
	Products   []domain.Product       `json:"products,omitempty"`
	Product    *domain.Product        `json:"product,omitempty"`
	CtModel    domain.VariantType     `json:"ct_model,omitempty"`
	Category   *domain.Category       `json:"category,omitempty"`
}

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"productURL": func(t domain.VariantType, slug string) string {
		return fmt.Sprintf("/products/%s/%s/", t, slug)
	},
	"actionURL": func(action string, t domain.VariantType, slug string) string {
		return fmt.Sprintf("/%s/%s/%s/", action, t, slug)
	},
}

type Renderer struct {
	pages map[string]*template.Template
}

// New parses the embedded templates. Each page is parsed together with the
// base layout.
func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{MainPage, ProductPage, CategoryPage, CartPage} {
		t, err := template.New("base.html").Funcs(funcs).
			ParseFS(templateFiles, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("render: parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Execute renders page into w.
func (r *Renderer) Execute(w io.Writer, name string, page *Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("render: unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "base.html", page)
}

// HTML renders into a buffer first so a template error never leaves a
// half-written response behind.
func (r *Renderer) HTML(w http.ResponseWriter, status int, name string, page *Page) error {
	var buf bytes.Buffer
	if err := r.Execute(&buf, name, page); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
