package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/practiceserver/internal/apierror"
	"github.com/atinyakov/practiceserver/internal/middleware"
	"github.com/atinyakov/practiceserver/internal/service"
)

// maxBodySize bounds request bodies.
const maxBodySize = 10 << 20

// Dispatcher routes /<service>/<tokens...> to registered services.
type Dispatcher struct {
	services map[string]*Service
	log      *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{services: map[string]*Service{}, log: log}
}

// Mount registers svc under name.
func (d *Dispatcher) Mount(name string, svc *Service) {
	d.services[name] = svc
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("handler panic", zap.Any("panic", rec), zap.String("uri", r.RequestURI))
			apierror.Write(w, fmt.Errorf("panic: %v", rec))
		}
	}()

	tokens := splitPath(r.URL.Path)
	name := ""
	if len(tokens) > 0 {
		name, tokens = tokens[0], tokens[1:]
	}
	svc, ok := d.services[name]
	if !ok {
		d.log.Warn("unsupported service", zap.String("service", name))
		apierror.Write(w, apierror.Request(fmt.Sprintf("Service %q is not supported", name)))
		return
	}

	handler, params, rest, ok := svc.Lookup(r.Method, tokens)
	if !ok {
		apierror.Write(w, apierror.NotFound())
		return
	}

	body, err := readBody(r)
	if err != nil {
		apierror.Write(w, apierror.Request("Could not read request body").Wrap(err))
		return
	}

	sc := &service.Scope{
		Method: r.Method,
		Params: params,
		Tokens: rest,
		Query:  r.URL.Query(),
		Body:   body,
		User:   middleware.UserFromContext(r.Context()),
		Admin:  middleware.IsAdmin(r.Context()),
	}
	result, err := handler(r.Context(), sc)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	d.respond(w, result)
}

func (d *Dispatcher) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := apierror.As(err); !ok {
		d.log.Error("unhandled service error", zap.Error(err), zap.String("uri", r.RequestURI))
	}
	apierror.Write(w, err)
}

func (d *Dispatcher) respond(w http.ResponseWriter, result any) {
	if result == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		d.log.Error("encode response", zap.Error(err))
		apierror.Write(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// readBody decodes a JSON body. A body that is not JSON is returned as a
// string and an empty body as nil.
func readBody(r *http.Request) (any, error) {
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw), nil
	}
	return v, nil
}
