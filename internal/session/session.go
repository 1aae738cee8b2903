// Package session gives every visitor a stable identity. Anonymous visitors
// are tracked by a cookie backed by a Redis key; authenticated users
// additionally present a bearer JWT whose user_id claim binds their cart.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-service/internal/domain"
)

var (
	ErrInvalidToken = errors.New("session: invalid or expired token")
	ErrNoSecret     = errors.New("session: token signing secret is not configured")
)

type Options struct {
	CookieName string
	TTL        time.Duration
	KeyPrefix  string
	JWTSecret  string
	Secure     bool
}

// Manager issues session cookies and resolves the request owner.
type Manager struct {
	rdb    *redis.Client
	opts   Options
	logger *zap.Logger
}

func NewManager(rdb *redis.Client, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CookieName == "" {
		opts.CookieName = "sessionid"
	}
	if opts.TTL <= 0 {
		opts.TTL = 14 * 24 * time.Hour
	}
	return &Manager{rdb: rdb, opts: opts, logger: logger.Named("session")}
}

func (m *Manager) sessionKey(id string) string { return m.opts.KeyPrefix + "session:" + id }
func (m *Manager) flashKey(id string) string   { return m.opts.KeyPrefix + "flash:" + id }

type ctxKey struct{}

// WithOwner returns a copy of ctx carrying owner.
func WithOwner(ctx context.Context, owner domain.Owner) context.Context {
	return context.WithValue(ctx, ctxKey{}, owner)
}

// OwnerFromContext returns the owner stored by the session middleware.
func OwnerFromContext(ctx context.Context) (domain.Owner, bool) {
	owner, ok := ctx.Value(ctxKey{}).(domain.Owner)
	return owner, ok
}

// Middleware resolves the visitor identity and stores it on the request
// context. A missing or expired session gets a fresh id and cookie.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var owner domain.Owner
		if header := r.Header.Get("Authorization"); header != "" {
			userID, err := m.ParseToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
			if err != nil {
				m.logger.Debug("rejected bearer token", zap.Error(err))
				writeJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			owner.UserID = userID
		}

		sessionID, err := m.ensureSession(ctx, w, r)
		if err != nil {
			m.logger.Error("session lookup failed", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "Session store unavailable")
			return
		}
		owner.SessionID = sessionID

		next.ServeHTTP(w, r.WithContext(WithOwner(ctx, owner)))
	})
}

func (m *Manager) ensureSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(m.opts.CookieName); err == nil {
		if _, parseErr := uuid.Parse(cookie.Value); parseErr == nil {
			// EXPIRE returns false for keys that no longer exist.
			alive, err := m.rdb.Expire(ctx, m.sessionKey(cookie.Value), m.opts.TTL).Result()
			if err != nil {
				return "", fmt.Errorf("session: refresh: %w", err)
			}
			if alive {
				m.setCookie(w, cookie.Value)
				return cookie.Value, nil
			}
		}
	}

	id := uuid.NewString()
	if err := m.rdb.Set(ctx, m.sessionKey(id), time.Now().UTC().Format(time.RFC3339), m.opts.TTL).Err(); err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}
	m.setCookie(w, id)
	return id, nil
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.opts.TTL / time.Second),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// IssueToken signs an HS256 token for userID valid for ttl.
func (m *Manager) IssueToken(userID string, ttl time.Duration) (string, error) {
	if m.opts.JWTSecret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.opts.JWTSecret))
}

// ParseToken validates a signed token and returns its user id.
func (m *Manager) ParseToken(raw string) (string, error) {
	if m.opts.JWTSecret == "" {
		return "", ErrNoSecret
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(m.opts.JWTSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: no user id claim", ErrInvalidToken)
	}
	return userID, nil
}

// AddFlash queues a one-shot message for the session.
func (m *Manager) AddFlash(ctx context.Context, sessionID, message string) error {
	key := m.flashKey(sessionID)
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, message)
		pipe.Expire(ctx, key, m.opts.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: add flash: %w", err)
	}
	return nil
}

// PopFlashes returns and clears the queued messages of the session.
func (m *Manager) PopFlashes(ctx context.Context, sessionID string) ([]string, error) {
	key := m.flashKey(sessionID)
	var messages *redis.StringSliceCmd
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		messages = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("session: pop flashes: %w", err)
	}
	return messages.Val(), nil
}

// Ping checks the Redis connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
