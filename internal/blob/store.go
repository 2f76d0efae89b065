// Package blob keeps in-memory audio reachable by the webview through
// locally resolvable /blob/{id} URLs.
package blob

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"loopy/internal/domain"
)

const PathPrefix = "/blob/"

var ErrEmptyPayload = errors.New("blob payload is empty")

// Config controls orphan expiry. Released blobs are removed immediately; the TTL
// only reclaims references nobody released.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Store implements ports.BlobStore on top of an expiring cache.
type Store struct {
	cache  *cache.Cache
	router *mux.Router
	logger *zap.Logger
}

func NewStore(cfg Config, logger *zap.Logger) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		cache:  cache.New(ttl, cleanup),
		router: mux.NewRouter(),
		logger: logger.Named("blob"),
	}
	s.router.HandleFunc(PathPrefix+"{id}", s.serveBlob).Methods(http.MethodGet, http.MethodHead)
	return s
}

// Publish stores the payload and returns its playable URL.
func (s *Store) Publish(payload domain.AudioPayload) (string, error) {
	if len(payload.Data) == 0 {
		return "", ErrEmptyPayload
	}
	id := uuid.NewString()
	s.cache.Set(id, payload, cache.DefaultExpiration)
	s.logger.Debug("blob published", zap.String("id", id), zap.Int("bytes", len(payload.Data)), zap.Int("live", s.Len()))
	return PathPrefix + id, nil
}

// Open returns the payload behind a URL produced by Publish.
func (s *Store) Open(url string) (domain.AudioPayload, bool) {
	id, ok := idFromURL(url)
	if !ok {
		return domain.AudioPayload{}, false
	}
	value, found := s.cache.Get(id)
	if !found {
		return domain.AudioPayload{}, false
	}
	return value.(domain.AudioPayload), true
}

// Release drops a published blob. Unknown URLs are ignored.
func (s *Store) Release(url string) {
	id, ok := idFromURL(url)
	if !ok {
		return
	}
	if _, found := s.cache.Get(id); found {
		s.cache.Delete(id)
		s.logger.Debug("blob released", zap.String("id", id), zap.Int("live", s.Len()))
	}
}

// Len returns the number of live blobs.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Handler serves published blobs at /blob/{id}.
func (s *Store) Handler() http.Handler {
	return s.router
}

func (s *Store) serveBlob(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.Open(PathPrefix + mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	contentType := payload.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(payload.Data); err != nil {
		s.logger.Warn("blob write failed", zap.Error(err))
	}
}

func idFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, PathPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(url, PathPrefix)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}
