package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/anistream/internal/apperr"
	"github.com/alvarorichard/anistream/internal/metrics"
	"github.com/alvarorichard/anistream/internal/models"
	"github.com/alvarorichard/anistream/internal/relay"
	"github.com/alvarorichard/anistream/internal/resolver"
	"github.com/alvarorichard/anistream/internal/tracking"
	"github.com/alvarorichard/anistream/internal/util"
	"github.com/alvarorichard/anistream/internal/version"
)

const maxBodyBytes = 64 << 10

// StreamResolver picks a playable stream for a title or episode.
type StreamResolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.RankedStream, error)
}

// MediaRelay re-serves upstream media.
type MediaRelay interface {
	Image(ctx context.Context, rawURL string) (*relay.Media, error)
	Playlist(ctx context.Context, rawURL string) (*relay.Media, error)
}

// Catalog answers listing and metadata queries.
type Catalog interface {
	Search(ctx context.Context, query string) ([]models.Anime, error)
	Details(ctx context.Context, path string) (*models.Anime, error)
	Episodes(ctx context.Context, path string) ([]models.Episode, error)
	Related(ctx context.Context, path string) ([]models.Anime, error)
}

// Handlers binds the services to routes.
type Handlers struct {
	resolver StreamResolver
	relay    MediaRelay
	catalog  Catalog
	store    tracking.Store
}

// NewHandlers builds Handlers. Any dependency may be nil, which leaves its
// routes unregistered.
func NewHandlers(res StreamResolver, rel MediaRelay, cat Catalog, store tracking.Store) *Handlers {
	return &Handlers{resolver: res, relay: rel, catalog: cat, store: store}
}

// RegisterRoutes registers every route on mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	if h.resolver != nil {
		mux.HandleFunc("GET /api/stream", h.handleStream)
	}

	if h.relay != nil {
		mux.HandleFunc("GET /api/proxy/image", h.handleImage)
		mux.HandleFunc("GET /api/proxy/m3u8", h.handlePlaylist)
	}

	if h.catalog != nil {
		mux.HandleFunc("GET /api/search", h.handleSearch)
		mux.HandleFunc("GET /api/anime", h.handleDetails)
		mux.HandleFunc("GET /api/episodes", h.handleEpisodes)
		mux.HandleFunc("GET /api/related", h.handleRelated)
	}

	if h.store != nil {
		mux.HandleFunc("GET /api/users/{user}/progress", h.handleListProgress)
		mux.HandleFunc("GET /api/users/{user}/progress/{mediaId}", h.handleGetProgress)
		mux.HandleFunc("PUT /api/users/{user}/progress/{mediaId}", h.handlePutProgress)
		mux.HandleFunc("DELETE /api/users/{user}/progress/{mediaId}", h.handleDeleteProgress)
		mux.HandleFunc("GET /api/users/{user}/lists/{list}", h.handleGetList)
		mux.HandleFunc("POST /api/users/{user}/lists/{list}", h.handleAddToList)
		mux.HandleFunc("DELETE /api/users/{user}/lists/{list}/{mediaId}", h.handleRemoveFromList)
	}
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"version": version.Version,
		"sqlite":  tracking.IsCgoEnabled,
	})
}

func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stream, err := h.resolver.Resolve(r.Context(), resolver.Request{
		Path:  strings.TrimSpace(q.Get("path")),
		AltID: strings.TrimSpace(q.Get("altId")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		*resolver.RankedStream
	}{OK: true, RankedStream: stream})
}

func (h *Handlers) handleImage(w http.ResponseWriter, r *http.Request) {
	h.relayMedia(w, r, h.relay.Image)
}

func (h *Handlers) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	h.relayMedia(w, r, h.relay.Playlist)
}

func (h *Handlers) relayMedia(w http.ResponseWriter, r *http.Request, fetch func(context.Context, string) (*relay.Media, error)) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, r, apperr.BadRequest("url is required"))
		return
	}
	media, err := fetch(r.Context(), target)
	if err != nil {
		writeError(w, r, err)
		return
	}

	header := w.Header()
	header.Set("Content-Type", media.ContentType)
	header.Set("Content-Length", strconv.Itoa(len(media.Body)))
	if media.CacheControl != "" {
		header.Set("Cache-Control", media.CacheControl)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(media.Body); err != nil {
		util.Debug("client went away during relay", "url", target, "error", err)
	}
}

func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "results", results)
}

func (h *Handlers) handleDetails(w http.ResponseWriter, r *http.Request) {
	anime, err := h.catalog.Details(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "anime", anime)
}

func (h *Handlers) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := h.catalog.Episodes(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "episodes", episodes)
}

func (h *Handlers) handleRelated(w http.ResponseWriter, r *http.Request) {
	related, err := h.catalog.Related(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, "related", related)
}

func (h *Handlers) handleListProgress(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListProgress(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, r, storeError(err))
		return
	}
	writeOK(w, "progress", list)
}

func (h *Handlers) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	user, mediaID := r.PathValue("user"), r.PathValue("mediaId")
	p, err := h.store.GetProgress(r.Context(), user, mediaID)
	if err != nil {
		writeError(w, r, storeError(err))
		return
	}
	if p == nil {
		writeError(w, r, &apperr.NotFoundError{Message: "no progress for " + mediaID, Candidates: []string{}})
		return
	}
	writeOK(w, "progress", p)
}

func (h *Handlers) handlePutProgress(w http.ResponseWriter, r *http.Request) {
	var p models.Progress
	if err := decodeBody(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.UserID, p.MediaID = r.PathValue("user"), r.PathValue("mediaId")
	if err := h.store.SaveProgress(r.Context(), p); err != nil {
		writeError(w, r, storeError(err))
		return
	}
	saved, err := h.store.GetProgress(r.Context(), p.UserID, p.MediaID)
	if err != nil {
		writeError(w, r, storeError(err))
		return
	}
	writeOK(w, "progress", saved)
}

func (h *Handlers) handleDeleteProgress(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteProgress(r.Context(), r.PathValue("user"), r.PathValue("mediaId")); err != nil {
		writeError(w, r, storeError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (h *Handlers) handleGetList(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.GetList(r.Context(), r.PathValue("user"), r.PathValue("list"))
	if err != nil {
		writeError(w, r, storeError(err))
		return
	}
	writeOK(w, "items", items)
}

func (h *Handlers) handleAddToList(w http.ResponseWriter, r *http.Request) {
	var item models.ListItem
	if err := decodeBody(r, &item); err != nil {
		writeError(w, r, err)
		return
	}
	item.UserID, item.List = r.PathValue("user"), r.PathValue("list")
	if err := h.store.AddToList(r.Context(), item); err != nil {
		writeError(w, r, storeError(err))
		return
	}
	items, err := h.store.GetList(r.Context(), item.UserID, item.List)
	if err != nil {
		writeError(w, r, storeError(err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "items": items})
}

func (h *Handlers) handleRemoveFromList(w http.ResponseWriter, r *http.Request) {
	err := h.store.RemoveFromList(r.Context(), r.PathValue("user"), r.PathValue("list"), r.PathValue("mediaId"))
	if err != nil {
		writeError(w, r, storeError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.BadRequest("invalid JSON body: %v", err)
	}
	return nil
}

// storeError surfaces validation failures as bad requests.
func storeError(err error) error {
	if errors.Is(err, tracking.ErrInvalidKey) || errors.Is(err, tracking.ErrInvalidProgress) {
		return apperr.BadRequest("%s", err.Error())
	}
	return err
}
