// Package api provides the HTTP directory service the networkfs client talks to.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/internal/metrics"
	"github.com/fruitsalade/networkfs/internal/store"
	"github.com/fruitsalade/networkfs/pkg/models"
	"github.com/fruitsalade/networkfs/pkg/protocol"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Server serves the remote call contract on top of a store.
type Server struct {
	store  store.Store
	codecs []protocol.Codec
	def    protocol.Codec
	log    *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithXDRListingLimit bounds listing payloads served in the XDR format.
func WithXDRListingLimit(n int) Option {
	return func(s *Server) { s.codecs[1] = protocol.NewXDRCodec(n) }
}

// NewServer creates a server backed by st.
func NewServer(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:  st,
		codecs: []protocol.Codec{protocol.FixedCodec{}, protocol.NewXDRCodec(0)},
		def:    protocol.FixedCodec{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logging.Named("api")
	}
	return s
}

// Handler returns the HTTP handler with request id, logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware)
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(requireToken)
		r.Get("/fs/{method}", s.handleCall)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": Version})
}

type tokenKey struct{}

func contextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" || strings.ContainsRune(token, 0) {
			sendError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithToken(r.Context(), token)))
	})
}

func sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"error": message, "code": code})
}

// callError carries a remote status back to handleCall.
type callError struct {
	status protocol.Status
	err    error
}

func (e *callError) Error() string { return fmt.Sprintf("%v: %v", e.status, e.err) }
func (e *callError) Unwrap() error { return e.err }

func reject(status protocol.Status, format string, args ...any) error {
	return &callError{status: status, err: fmt.Errorf(format, args...)}
}

// statusFor maps store errors onto remote statuses. Unknown errors are faults.
func statusFor(err error) (protocol.Status, bool) {
	var ce *callError
	switch {
	case errors.As(err, &ce):
		return ce.status, true
	case errors.Is(err, store.ErrNotFound):
		return protocol.StatusNoEntryInDir, true
	case errors.Is(err, store.ErrNoSuchInode):
		return protocol.StatusNoEntry, true
	case errors.Is(err, store.ErrNotDir):
		return protocol.StatusNotDir, true
	case errors.Is(err, store.ErrNotFile):
		return protocol.StatusNotFile, true
	case errors.Is(err, store.ErrExists):
		return protocol.StatusExists, true
	case errors.Is(err, store.ErrNotEmpty):
		return protocol.StatusNotEmpty, true
	case errors.Is(err, store.ErrBadName), errors.Is(err, store.ErrBadKind):
		return protocol.StatusBadRequest, true
	}
	return 0, false
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	method := protocol.Method(chi.URLParam(r, "method"))
	if !method.Valid() {
		sendError(w, http.StatusNotFound, fmt.Sprintf("unknown method %q", method))
		return
	}
	codec := protocol.CodecForContentType(r.Header.Get("Accept"), s.codecs, s.def)
	token := tokenFromContext(r.Context())
	log := s.log.With(
		zap.String("request_id", middleware.GetReqID(r.Context())),
		logging.Method(method),
		logging.Token(token),
		zap.String("format", string(codec.Format())),
	)

	start := time.Now()
	payload, err := s.dispatch(r, token, method, codec, log)
	metrics.RecordStoreOperation(string(method), time.Since(start))

	status := protocol.StatusOK
	if err != nil {
		st, ok := statusFor(err)
		if !ok {
			log.Error("store failure", zap.Error(err))
			sendError(w, http.StatusInternalServerError, "internal error")
			return
		}
		log.Debug("call rejected", zap.Stringer("status", st), zap.Error(err))
		status, payload = st, nil
	}
	if limit := codec.ResponseLimit(method); len(payload) > limit {
		log.Error("payload exceeds response limit", zap.Int("size", len(payload)), zap.Int("limit", limit))
		status, payload = protocol.StatusInternal, nil
	}

	var buf bytes.Buffer
	if err := codec.WriteResponse(&buf, status, payload); err != nil {
		log.Error("encode response", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", codec.ContentType())
	w.Write(buf.Bytes())
}

func (s *Server) dispatch(r *http.Request, token string, method protocol.Method, codec protocol.Codec, log *zap.Logger) ([]byte, error) {
	ctx := r.Context()
	q := r.URL.Query()

	if method == protocol.MethodList {
		dir, err := idParam(q.Get("inode"), "inode")
		if err != nil {
			return nil, err
		}
		entries, err := s.store.List(ctx, token, dir)
		if err != nil {
			return nil, err
		}
		if capacity := codec.MaxEntries(); capacity > 0 && len(entries) > capacity {
			log.Warn("listing truncated",
				logging.Inode("inode", dir),
				zap.Int("entries", len(entries)),
				zap.Int("served", capacity))
			metrics.RecordListingTruncated()
			entries = entries[:capacity]
		}
		return codec.EncodeListing(&models.ListingPage{Entries: entries})
	}

	parent, err := idParam(q.Get("parent"), "parent")
	if err != nil {
		return nil, err
	}
	name := q.Get("name")
	if err := checkName(name); err != nil {
		return nil, err
	}

	switch method {
	case protocol.MethodLookup:
		e, err := s.store.Lookup(ctx, token, parent, name)
		if err != nil {
			return nil, err
		}
		return codec.EncodeEntryInfo(models.EntryInfo{Kind: e.Kind, ID: e.ID})

	case protocol.MethodCreate, protocol.MethodMkdir:
		kind := models.KindDirectory
		if method == protocol.MethodCreate {
			kind, err = models.ParseKind(q.Get("type"))
			if err != nil {
				return nil, reject(protocol.StatusBadRequest, "type: %w", err)
			}
		}
		id, err := s.store.Create(ctx, token, parent, name, kind)
		if err != nil {
			return nil, err
		}
		log.Info("created", logging.Inode("parent", parent), logging.Name(name),
			zap.Stringer("kind", kind), logging.Inode("id", id))
		return codec.EncodeCreateInfo(models.CreateInfo{ID: id})

	case protocol.MethodUnlink:
		return nil, s.store.Remove(ctx, token, parent, name, models.KindRegularFile)

	case protocol.MethodRmdir:
		return nil, s.store.Remove(ctx, token, parent, name, models.KindDirectory)
	}
	return nil, reject(protocol.StatusBadRequest, "unsupported method %q", method)
}

func idParam(v, key string) (uint64, error) {
	if v == "" {
		return 0, reject(protocol.StatusBadRequest, "missing %s", key)
	}
	id, err := protocol.ParseID(v)
	if err != nil {
		return 0, reject(protocol.StatusBadRequest, "%s: %w", key, err)
	}
	return id, nil
}

func checkName(name string) error {
	if len(name) > models.MaxNameLen {
		return reject(protocol.StatusNameTooLong, "name of %d bytes", len(name))
	}
	if err := store.ValidateName(name); err != nil {
		return reject(protocol.StatusBadRequest, "%w", err)
	}
	return nil
}
