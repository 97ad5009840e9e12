package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/tiny11/tiny11-backend/api/responses"
	pkgerrors "github.com/tiny11/tiny11-backend/pkg/errors"
	"github.com/tiny11/tiny11-backend/pkg/logger"
	pkgredis "github.com/tiny11/tiny11-backend/pkg/redis"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	replayedHeader        = "Idempotent-Replayed"
	defaultIdempotencyTTL = 24 * time.Hour
)

// Order routes whose first answer is replayed for a repeated Idempotency-Key.
// A double-clicked "buy" must not open two PayPal orders.
var idempotentOrderRoutes = map[string]time.Duration{
	"/api/paypal/create-order":                    defaultIdempotencyTTL,
	"/api/paypal/create-subscription-order":       defaultIdempotencyTTL,
	"/api/paypal/create-route-subscription-order": defaultIdempotencyTTL,
	"/api/paypal/capture-order":                   defaultIdempotencyTTL,
}

type storedOrderResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

type orderReplay struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
	key   string
	ttl   time.Duration
	hash  string
}

// Idempotency replays the first response recorded for an Idempotency-Key on
// the order routes. Requests without the header pass through untouched, and
// server errors are never recorded so the client can retry them.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			replay := &orderReplay{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(r.URL.Path, clientKey),
				ttl:   ttl,
				hash:  hashBody(body),
			}

			stored, err := replay.lookup(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if stored != nil {
				if stored.RequestHash != replay.hash {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				writeStoredResponse(w, stored)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			replay.save(r.Context(), rec)
		})
	}
}

func (o *orderReplay) lookup(ctx context.Context) (*storedOrderResponse, error) {
	raw, err := o.store.Get(ctx, o.key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedOrderResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &stored, nil
}

func (o *orderReplay) save(ctx context.Context, rec *responseCapture) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		return
	}
	payload, err := json.Marshal(storedOrderResponse{
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
		RequestHash: o.hash,
	})
	if err != nil {
		logError(ctx, o.logg, "marshal idempotency record", err)
		return
	}
	if _, err := o.store.SetNX(ctx, o.key, string(payload), o.ttl); err != nil {
		logError(ctx, o.logg, "persist idempotency record", err)
	}
}

func writeStoredResponse(w http.ResponseWriter, stored *storedOrderResponse) {
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// routePattern prefers the chi pattern but falls back to the path while the
// request is still inside a mounted sub-router ("/api/*").
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	ttl, ok := idempotentOrderRoutes[pattern]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
