package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"storefront-service/internal/cart"
	"storefront-service/internal/catalog"
	"storefront-service/internal/domain"
	"storefront-service/internal/render"
	"storefront-service/internal/session"
)

var errNoSession = errors.New("api: request has no session")

// Flasher queues and drains one-shot messages per session.
type Flasher interface {
	AddFlash(ctx context.Context, sessionID, message string) error
	PopFlashes(ctx context.Context, sessionID string) ([]string, error)
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	catalog  *catalog.Service
	carts    *cart.Service
	flashes  Flasher
	pages    *render.Renderer
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(catalogSvc *catalog.Service, cartSvc *cart.Service, flashes Flasher, pages *render.Renderer, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		catalog:  catalogSvc,
		carts:    cartSvc,
		flashes:  flashes,
		pages:    pages,
		validate: validator.New(),
		logger:   logger.Named("http"),
	}
}

// RegisterRoutes registers the storefront routes on the router. The session
// middleware must run before these handlers.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.MainPage)
	r.Get("/products/{variant_tag}/{slug}/", h.ProductDetail)
	r.Get("/category/{slug}/", h.CategoryDetail)
	r.Get("/cart/", h.CartView)
	r.Get("/add-to-cart/{variant_tag}/{slug}/", h.AddToCart)
	r.Get("/remove-from-cart/{variant_tag}/{slug}/", h.RemoveFromCart)
	r.Post("/change-qty/{variant_tag}/{slug}/", h.ChangeQuantity)
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message})
}

func (h *HTTPHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Error("failed to encode JSON response", zap.Error(err))
		}
	}
}

// respondWithServiceError maps service errors onto status codes. Storage
// failures are logged and answered with a generic message.
func (h *HTTPHandler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case catalog.IsNotFound(err), cart.IsNotFound(err):
		h.respondWithError(w, http.StatusNotFound, err.Error())
	case cart.IsValidation(err):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (h *HTTPHandler) owner(r *http.Request) (domain.Owner, error) {
	owner, ok := session.OwnerFromContext(r.Context())
	if !ok {
		return domain.Owner{}, errNoSession
	}
	return owner, nil
}

func (h *HTTPHandler) currentCart(r *http.Request) (domain.Owner, *domain.Cart, error) {
	owner, err := h.owner(r)
	if err != nil {
		return owner, nil, err
	}
	current, err := h.carts.Resolve(r.Context(), owner)
	return owner, current, err
}

// basePage fills the parts every page shares: the sidebar, the cart and the
// pending flash messages.
func (h *HTTPHandler) basePage(r *http.Request, owner domain.Owner, current *domain.Cart) (*render.Page, error) {
	categories, err := h.catalog.Sidebar(r.Context())
	if err != nil {
		return nil, err
	}
	page := h.sessionPage(r, owner, current)
	page.Categories = categories
	return page, nil
}

// sessionPage fills the cart and drains the pending flash messages.
func (h *HTTPHandler) sessionPage(r *http.Request, owner domain.Owner, current *domain.Cart) *render.Page {
	page := &render.Page{Cart: current}
	if h.flashes != nil {
		messages, err := h.flashes.PopFlashes(r.Context(), owner.SessionID)
		if err != nil {
			// a lost flash message is not worth failing the page for
			h.logger.Warn("failed to read flash messages", zap.Error(err))
		}
		page.Messages = messages
	}
	return page
}

func (h *HTTPHandler) renderPage(w http.ResponseWriter, r *http.Request, name string, page *render.Page) {
	if wantsJSON(r) || h.pages == nil {
		h.respondWithJSON(w, http.StatusOK, page)
		return
	}
	if err := h.pages.HTML(w, http.StatusOK, name, page); err != nil {
		h.respondWithServiceError(w, r, fmt.Errorf("api: render %s: %w", name, err))
	}
}

func (h *HTTPHandler) flash(r *http.Request, owner domain.Owner, message string) {
	if h.flashes == nil {
		return
	}
	if err := h.flashes.AddFlash(r.Context(), owner.SessionID, message); err != nil {
		h.logger.Warn("failed to store flash message", zap.Error(err))
	}
}

// MutationResponse is the JSON answer to a cart mutation.
type MutationResponse struct {
	Message string       `json:"message"`
	Created *bool        `json:"created,omitempty"`
	Cart    *domain.Cart `json:"cart"`
}

func (h *HTTPHandler) finishMutation(w http.ResponseWriter, r *http.Request, owner domain.Owner, resp MutationResponse, redirectTo string) {
	if wantsJSON(r) {
		h.respondWithJSON(w, http.StatusOK, resp)
		return
	}
	h.flash(r, owner, resp.Message)
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

// --- Page Handlers ---

func (h *HTTPHandler) MainPage(w http.ResponseWriter, r *http.Request) {
	owner, current, err := h.currentCart(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	landing, err := h.catalog.MainPage(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	page := h.sessionPage(r, owner, current)
	page.Categories = landing.Categories
	page.Products = landing.Products
	h.renderPage(w, r, render.MainPage, page)
}

func (h *HTTPHandler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Product(r.Context(), chi.URLParam(r, "variant_tag"), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	owner, current, err := h.currentCart(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	page, err := h.basePage(r, owner, current)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	page.Title = product.Title
	page.Product = product
	page.CtModel = product.Type
	h.renderPage(w, r, render.ProductPage, page)
}

func (h *HTTPHandler) CategoryDetail(w http.ResponseWriter, r *http.Request) {
	category, products, err := h.catalog.Category(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	owner, current, err := h.currentCart(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	page, err := h.basePage(r, owner, current)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	page.Title = category.Name
	page.Category = category
	page.Products = products
	h.renderPage(w, r, render.CategoryPage, page)
}

func (h *HTTPHandler) CartView(w http.ResponseWriter, r *http.Request) {
	owner, current, err := h.currentCart(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	page, err := h.basePage(r, owner, current)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	page.Title = "Cart"
	h.renderPage(w, r, render.CartPage, page)
}

// --- Cart Mutation Handlers ---

// resolveTarget loads the current cart and the product named by the URL.
func (h *HTTPHandler) resolveTarget(r *http.Request) (domain.Owner, *domain.Cart, *domain.Product, error) {
	product, err := h.catalog.Product(r.Context(), chi.URLParam(r, "variant_tag"), chi.URLParam(r, "slug"))
	if err != nil {
		return domain.Owner{}, nil, nil, err
	}
	owner, current, err := h.currentCart(r)
	if err != nil {
		return domain.Owner{}, nil, nil, err
	}
	return owner, current, product, nil
}

func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	owner, current, product, err := h.resolveTarget(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	updated, created, err := h.carts.AddToCart(r.Context(), current, product)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	redirectTo := fmt.Sprintf("/products/%s/%s/", product.Type, product.Slug)
	h.finishMutation(w, r, owner, MutationResponse{Message: cart.MsgAdded, Created: &created, Cart: updated}, redirectTo)
}

func (h *HTTPHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	owner, current, product, err := h.resolveTarget(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	updated, err := h.carts.RemoveFromCart(r.Context(), current, product.Ref())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.finishMutation(w, r, owner, MutationResponse{Message: cart.MsgRemoved, Cart: updated}, "/cart/")
}

// ChangeQtyInput defines the expected form input for changing a quantity.
type ChangeQtyInput struct {
	Qty int `validate:"gte=1,lte=999"`
}

func (h *HTTPHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	owner, current, product, err := h.resolveTarget(r)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	qty, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("qty")))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid quantity: must be a whole number")
		return
	}
	if err := h.validate.Struct(ChangeQtyInput{Qty: qty}); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	updated, err := h.carts.ChangeQuantity(r.Context(), current, product.Ref(), qty)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.finishMutation(w, r, owner, MutationResponse{Message: cart.MsgQuantityChanged, Cart: updated}, "/cart/")
}
