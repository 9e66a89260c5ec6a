// Package remote simulates a resource server on top of an object store. It
// gives the sync engine something to upload to and download from without a
// network transport.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"fhirsync/internal/fhir"
	"fhirsync/internal/resource"
	"fhirsync/internal/upload"
	"fhirsync/internal/vault"
)

// ErrNotFound is returned when a resource does not exist on the server or
// has been deleted.
var ErrNotFound = errors.New("remote resource not found")

// StatusError is a request the server rejected.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// envelope is the stored form of one resource version.
type envelope struct {
	Type        string    `cbor:"type"`
	ID          string    `cbor:"id"`
	Version     int       `cbor:"version"`
	LastUpdated time.Time `cbor:"last_updated"`
	Deleted     bool      `cbor:"deleted,omitempty"`
	Payload     []byte    `cbor:"payload,omitempty"`
}

// Server keeps the current version of every resource under
// "<Type>/<id>/current" and each version under "<Type>/<id>/_history/<n>".
// Requests are applied one at a time.
type Server struct {
	store   vault.Store
	baseURL string
	clock   fhir.Clock
	idgen   fhir.IDGenerator
	logger  fhir.Logger
	enc     cbor.EncMode
	dec     cbor.DecMode

	mu sync.Mutex
}

var _ upload.Transport = (*Server)(nil)

// NewServer creates a server. baseURL prefixes the Location of every
// response. Nil clock, idgen or logger fall back to the real clock, random
// UUIDs and a NopLogger.
func NewServer(store vault.Store, baseURL string, clock fhir.Clock, idgen fhir.IDGenerator, logger fhir.Logger) (*Server, error) {
	if clock == nil {
		clock = fhir.RealClock{}
	}
	if idgen == nil {
		idgen = fhir.UUIDGenerator{}
	}
	if logger == nil {
		logger = fhir.NewNopLogger()
	}

	enc, err := cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("creating cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		TimeTagToAny: cbor.TimeTagToTime,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("creating cbor decoder: %w", err)
	}

	return &Server{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
		idgen:   idgen,
		logger:  logger,
		enc:     enc,
		dec:     dec,
	}, nil
}

// ValidateSetup checks the underlying object store.
func (s *Server) ValidateSetup(ctx context.Context) error {
	return s.store.ValidateSetup(ctx)
}

// Do applies a single request.
func (s *Server) Do(ctx context.Context, req upload.Request) (upload.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, _, err := s.apply(ctx, req)
	return resp, err
}

// Transaction applies every entry or none of them.
func (s *Server) Transaction(ctx context.Context, entries []upload.Request) ([]upload.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var undos []func(context.Context) error
	rollback := func() {
		// Undo must finish even if the caller gave up.
		ctx := context.WithoutCancel(ctx)
		for i := len(undos) - 1; i >= 0; i-- {
			if err := undos[i](ctx); err != nil {
				s.logger.Error("rolling back transaction entry", "error", err)
			}
		}
	}

	responses := make([]upload.Response, 0, len(entries))
	for i, entry := range entries {
		resp, undo, err := s.apply(ctx, entry)
		if err != nil {
			rollback()
			return nil, fmt.Errorf("transaction entry %d (%s %s): %w", i, entry.Method, entry.URL, err)
		}
		undos = append(undos, undo)
		responses = append(responses, resp)
	}
	s.logger.Debug("applied transaction", "entries", len(entries))
	return responses, nil
}

// Read returns the current version of a resource.
func (s *Server) Read(ctx context.Context, resourceType, id string) (*resource.Resource, error) {
	env, found, err := s.load(ctx, currentKey(resourceType, id))
	if err != nil {
		return nil, err
	}
	if !found || env.Deleted {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, resourceType, id)
	}
	return resource.Parse(env.Payload)
}

// History returns every stored, non-deleted version of a resource, oldest first.
func (s *Server) History(ctx context.Context, resourceType, id string) ([]*resource.Resource, error) {
	keys, err := s.store.List(ctx, resource.ReferenceTo(resourceType, id)+"/_history/")
	if err != nil {
		return nil, fmt.Errorf("listing history of %s/%s: %w", resourceType, id, err)
	}

	var envs []envelope
	for _, key := range keys {
		env, found, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if found && !env.Deleted {
			envs = append(envs, env)
		}
	}
	slices.SortFunc(envs, func(a, b envelope) int { return a.Version - b.Version })

	out := make([]*resource.Resource, 0, len(envs))
	for _, env := range envs {
		r, err := resource.Parse(env.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Download returns the current version of every resource that is not
// deleted, ordered by type and id.
func (s *Server) Download(ctx context.Context) ([]*resource.Resource, error) {
	keys, err := s.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}

	var out []*resource.Resource
	for _, key := range keys {
		if !strings.HasSuffix(key, "/current") {
			continue
		}
		env, found, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found || env.Deleted {
			continue
		}
		r, err := resource.Parse(env.Payload)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// apply executes req and returns a function restoring the previous state.
// Callers hold s.mu.
func (s *Server) apply(ctx context.Context, req upload.Request) (upload.Response, func(context.Context) error, error) {
	resourceType, id, err := s.target(req)
	if err != nil {
		return upload.Response{}, nil, err
	}

	key := currentKey(resourceType, id)
	prev, found, err := s.load(ctx, key)
	if err != nil {
		return upload.Response{}, nil, err
	}
	exists := found && !prev.Deleted

	if req.Method == upload.MethodDelete && !exists {
		return upload.Response{Status: status(http.StatusNoContent)}, noop, nil
	}

	env := envelope{
		Type:        resourceType,
		ID:          id,
		Version:     prev.Version + 1,
		LastUpdated: s.clock.Now().UTC().Truncate(time.Millisecond),
		Deleted:     req.Method == upload.MethodDelete,
	}

	var stored *resource.Resource
	if !env.Deleted {
		stored = req.Resource.Clone()
		stored.SetID(id)
		stored.SetMeta(strconv.Itoa(env.Version), env.LastUpdated)
		if env.Payload, err = resource.Encode(stored); err != nil {
			return upload.Response{}, nil, err
		}
	}

	historyKey := fmt.Sprintf("%s/%s/_history/%d", resourceType, id, env.Version)
	if err := s.save(ctx, historyKey, env); err != nil {
		return upload.Response{}, nil, err
	}
	if err := s.save(ctx, key, env); err != nil {
		return upload.Response{}, nil, err
	}

	undo := func(ctx context.Context) error {
		if err := s.store.Delete(ctx, historyKey); err != nil {
			return err
		}
		if found {
			return s.save(ctx, key, prev)
		}
		return s.store.Delete(ctx, key)
	}

	resp := upload.Response{
		ETag:         fmt.Sprintf(`W/"%d"`, env.Version),
		LastModified: env.LastUpdated,
	}
	switch {
	case env.Deleted:
		resp.Status = status(http.StatusNoContent)
	case exists:
		resp.Status = status(http.StatusOK)
	default:
		resp.Status = status(http.StatusCreated)
	}
	if stored != nil {
		resp.Location = fmt.Sprintf("%s/%s/%s/_history/%d", s.baseURL, resourceType, id, env.Version)
		resp.Resource = stored.Clone()
	}

	s.logger.Debug("applied request", "method", req.Method, "url", req.URL, "version", env.Version)
	return resp, undo, nil
}

// target validates req and returns the type and id it acts on. POST assigns
// a new id.
func (s *Server) target(req upload.Request) (string, string, error) {
	parts := strings.Split(req.URL, "/")
	switch req.Method {
	case upload.MethodPost:
		if len(parts) != 1 || parts[0] == "" {
			return "", "", &StatusError{Code: http.StatusBadRequest, Message: "POST expects a type URL, got " + req.URL}
		}
	case upload.MethodPut, upload.MethodDelete:
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", "", &StatusError{Code: http.StatusBadRequest, Message: fmt.Sprintf("%s expects a Type/id URL, got %s", req.Method, req.URL)}
		}
	default:
		return "", "", &StatusError{Code: http.StatusMethodNotAllowed, Message: string(req.Method)}
	}

	if req.Method != upload.MethodDelete {
		switch {
		case req.Resource == nil:
			return "", "", &StatusError{Code: http.StatusBadRequest, Message: "missing resource body"}
		case req.Resource.Type != parts[0]:
			return "", "", &StatusError{Code: http.StatusBadRequest, Message: fmt.Sprintf("resource type %s does not match URL %s", req.Resource.Type, req.URL)}
		case req.Method == upload.MethodPut && req.Resource.ID != "" && req.Resource.ID != parts[1]:
			return "", "", &StatusError{Code: http.StatusBadRequest, Message: fmt.Sprintf("resource id %s does not match URL %s", req.Resource.ID, req.URL)}
		}
	}

	if req.Method == upload.MethodPost {
		return parts[0], s.idgen.New(), nil
	}
	return parts[0], parts[1], nil
}

func (s *Server) load(ctx context.Context, key string) (envelope, bool, error) {
	var buf bytes.Buffer
	if err := s.store.Get(ctx, key, &buf); err != nil {
		if errors.Is(err, vault.ErrObjectNotFound) {
			return envelope{}, false, nil
		}
		return envelope{}, false, fmt.Errorf("loading %s: %w", key, err)
	}

	var env envelope
	if err := s.dec.Unmarshal(buf.Bytes(), &env); err != nil {
		return envelope{}, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return env, true, nil
}

func (s *Server) save(ctx context.Context, key string, env envelope) error {
	data, err := s.enc.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func currentKey(resourceType, id string) string {
	return resourceType + "/" + id + "/current"
}

func status(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}

func noop(context.Context) error { return nil }
