// Package httpapi is the inbound request surface: the shopping list page,
// its one-shot toggle and delete links, the add/save/refresh forms, a JSON
// API and the Prometheus endpoint.
package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/basket/internal/basket"
	"github.com/mesh-intelligence/basket/internal/resolve"
	"github.com/mesh-intelligence/basket/pkg/types"
)

//go:embed templates/index.gohtml
var templateFS embed.FS

// Defaults for Options.
const (
	DefaultAddr           = "127.0.0.1:8080"
	DefaultRequestTimeout = 10 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// noticeParam carries a one-line status message across the redirect.
const noticeParam = "notice"

// Options configure a Server.
type Options struct {
	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer // nil disables /metrics
	RequestTimeout time.Duration
}

// Server wires HTTP endpoints to the session cache.
type Server struct {
	list     *basket.List
	page     *template.Template
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	timeout  time.Duration
}

// New parses the page template once.
func New(list *basket.List, opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.gohtml")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Server{
		list:     list,
		page:     tmpl,
		logger:   opts.Logger,
		gatherer: opts.Gatherer,
		timeout:  opts.RequestTimeout,
	}, nil
}

// Handler returns the mux with every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.indexHandler())
	mux.Handle("/items", s.addHandler())
	mux.Handle("/save", s.saveHandler())
	mux.Handle("/refresh", s.refreshHandler())
	mux.Handle("/api/items", s.itemsEndpoint())
	mux.Handle("/api/actions", s.actionsEndpoint())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	})
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: s.timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// indexHandler renders the list. A request carrying toggle= or delete= is
// consumed: the action is applied once and the browser is redirected to the
// same page without the action parameter, so a reload cannot replay it.
func (s *Server) indexHandler() http.Handler {
	type pageData struct {
		Groups []basket.StoreGroup
		Status basket.Status
		Notice string
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		query := r.URL.Query()
		if action, ok := resolve.Consume(query); ok {
			query.Del(noticeParam)
			if _, err := s.list.Apply(ctx, action); err != nil {
				s.logger.Warn("action not saved", zap.String("kind", string(action.Kind)), zap.Error(err))
				query.Set(noticeParam, "Change kept locally but not saved: "+err.Error())
			}
			s.redirect(w, r, "/", query)
			return
		}

		items, err := s.list.Items(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		data := pageData{
			Groups: basket.Group(items),
			Status: s.list.Status(),
			Notice: query.Get(noticeParam),
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := s.page.ExecuteTemplate(w, "index.gohtml", data); err != nil {
			s.logger.Error("rendering page", zap.Error(err))
		}
	})
}

func (s *Server) addHandler() http.Handler {
	return s.formHandler(func(ctx context.Context, r *http.Request) string {
		it, err := s.list.Add(ctx, r.PostFormValue(types.ColumnName), r.PostFormValue(types.ColumnCategory), r.PostFormValue(types.ColumnStore))
		switch {
		case errors.Is(err, types.ErrInvalidName):
			return "Item name is required"
		case err != nil && it.ID != "":
			return "Added locally but not saved: " + err.Error()
		case err != nil:
			return err.Error()
		}
		return ""
	})
}

func (s *Server) saveHandler() http.Handler {
	return s.formHandler(func(ctx context.Context, r *http.Request) string {
		if err := s.list.Save(ctx); err != nil {
			return "Save failed: " + err.Error()
		}
		return "Saved"
	})
}

func (s *Server) refreshHandler() http.Handler {
	return s.formHandler(func(ctx context.Context, r *http.Request) string {
		if err := s.list.Refresh(ctx); err != nil {
			return "Refresh failed: " + err.Error()
		}
		return ""
	})
}

// formHandler runs fn for a POSTed form and redirects to the list with the
// returned notice, if any.
func (s *Server) formHandler(fn func(ctx context.Context, r *http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		q := url.Values{}
		if notice := fn(ctx, r); notice != "" {
			q.Set(noticeParam, notice)
		}
		s.redirect(w, r, "/", q)
	})
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	target := path
	if enc := q.Encode(); enc != "" {
		target += "?" + enc
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type itemsResponse struct {
	Items  []types.Item        `json:"items"`
	Groups []basket.StoreGroup `json:"groups"`
	Status basket.Status       `json:"status"`
}

// itemsEndpoint returns the collection as JSON; POST adds an item.
func (s *Server) itemsEndpoint() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		switch r.Method {
		case http.MethodGet:
			items, err := s.list.Items(ctx)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
			writeJSON(w, http.StatusOK, itemsResponse{Items: items, Groups: basket.Group(items), Status: s.list.Status()})
		case http.MethodPost:
			var in types.Item
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			it, err := s.list.Add(ctx, in.Name, in.Category, in.Store)
			switch {
			case errors.Is(err, types.ErrInvalidName):
				writeError(w, http.StatusBadRequest, err)
			case err != nil && it.ID == "":
				writeError(w, http.StatusInternalServerError, err)
			case err != nil:
				writeError(w, http.StatusBadGateway, err)
			default:
				writeJSON(w, http.StatusCreated, it)
			}
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

type actionRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type actionResponse struct {
	Applied bool         `json:"applied"`
	ID      string       `json:"id"`
	Changed []types.Item `json:"changed,omitempty"`
	Removed []types.Item `json:"removed,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// actionsEndpoint applies a toggle or delete sent as JSON.
func (s *Server) actionsEndpoint() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var in actionRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		action, err := resolve.ParseAction(in.Kind, in.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()

		oc, err := s.list.Apply(ctx, action)
		resp := actionResponse{Applied: oc.Applied, ID: oc.ID, Changed: oc.Changed, Removed: oc.Removed}
		status := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			status = http.StatusBadGateway
			if errors.Is(err, types.ErrListClosed) {
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, resp)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
