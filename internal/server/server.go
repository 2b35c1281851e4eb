package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	fieldplan "github.com/hanpama/fieldplan"
	ctxlog "github.com/hanpama/fieldplan/internal/ctxlog"
	eventbus "github.com/hanpama/fieldplan/internal/eventbus"
	events "github.com/hanpama/fieldplan/internal/events"
	language "github.com/hanpama/fieldplan/internal/language"
	reqid "github.com/hanpama/fieldplan/internal/reqid"
)

// Handler is an http.Handler that resolves field requests against a model.
// Each request resolves one batch and answers with one object per record
// holding the requested fields.
type Handler struct {
	model *fieldplan.Model
	opt   Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// OptionHeaders lists HTTP headers copied into the resolve options under
	// their lower-cased name. Header names are case-insensitive. Default is
	// none.
	OptionHeaders []string
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithOptionHeaders(headers ...string) Option {
	return func(o *Options) { o.OptionHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a handler serving model.
func New(model *fieldplan.Model, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{model: model, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	var rid string
	if in := r.Header.Get(reqid.Header); in != "" {
		ctx, rid = reqid.WithID(ctx, in)
	} else {
		ctx, rid = reqid.NewContext(ctx)
	}
	ctx = ctxlog.WithLogger(ctx, ctxlog.FromContext(ctx).With("request_id", rid))
	w.Header().Set(reqid.Header, rid)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.NewHTTPStart(rid, r))
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			RequestID: rid,
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    status,
			Duration:  time.Since(start),
		})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(codeBadRequest, "method not allowed"), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Error() == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(codeBadRequest, berr.Error()), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	headerOptions := h.headerOptions(r)
	if batch != nil {
		out := make([]result, len(batch))
		for i := range batch {
			out[i] = h.resolveOne(ctx, batch[i], headerOptions)
		}
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}

	writeJSON(w, status, h.resolveOne(ctx, req, headerOptions), h.opt.Pretty)
}

func (h *Handler) headerOptions(r *http.Request) map[string]any {
	if len(h.opt.OptionHeaders) == 0 {
		return nil
	}
	out := make(map[string]any, len(h.opt.OptionHeaders))
	for _, hdr := range h.opt.OptionHeaders {
		if v := r.Header.Get(hdr); v != "" {
			out[strings.ToLower(hdr)] = v
		}
	}
	return out
}

func (h *Handler) resolveOne(ctx context.Context, req ResolveRequest, headerOptions map[string]any) result {
	options := make(map[string]any, len(req.Options)+len(headerOptions))
	for k, v := range req.Options {
		options[k] = v
	}
	for k, v := range headerOptions {
		options[k] = v
	}

	fields, records, err := h.model.ResolveQuery(ctx, fieldplan.Query{
		Fields:        req.Fields,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	}, options)
	if err != nil {
		code := errorCode(err)
		if code == codeResolveFailed {
			ctxlog.FromContext(ctx).Error("server: resolve failed", "fields", req.Fields, "error", err)
		}
		return errorResponse(code, err.Error())
	}

	names := fields.Fields()
	data := make([]map[string]any, len(records))
	for i, rec := range records {
		row := make(map[string]any, len(names))
		for _, name := range names {
			// unassigned fields are reported as null
			v, _ := rec.Get(name)
			row[name] = v
		}
		data[i] = row
	}
	return result{Data: data}
}

// ------------------ Request parsing ------------------

// ResolveRequest is one request body. Fields uses selection syntax, e.g.
// "{ name posts(limit: 2) }"; the braces may be omitted.
type ResolveRequest struct {
	Fields        string         `json:"fields"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (ResolveRequest, []ResolveRequest, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		fields := q.Get("fields")
		if fields == "" {
			return ResolveRequest{}, nil, errors.New("missing 'fields'")
		}
		req := ResolveRequest{Fields: fields, OperationName: q.Get("operationName")}
		for _, p := range []struct {
			name string
			dst  *map[string]any
		}{{"variables", &req.Variables}, {"options", &req.Options}} {
			if v := q.Get(p.name); v != "" {
				if err := json.Unmarshal([]byte(v), p.dst); err != nil {
					return ResolveRequest{}, nil, errors.New("invalid '" + p.name + "' JSON")
				}
			}
		}
		return req, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return ResolveRequest{}, nil, errors.New("unsupported Content-Type")
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return ResolveRequest{}, nil, errors.New("failed to read body")
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return ResolveRequest{}, nil, errors.New(errBodyTooLargeMessage)
	}

	// Try array (batch)
	if len(body) > 0 && body[0] == '[' {
		var arr []ResolveRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return ResolveRequest{}, nil, errors.New("invalid JSON")
		}
		if len(arr) == 0 {
			return ResolveRequest{}, nil, errors.New("empty batch")
		}
		return ResolveRequest{}, arr, nil
	}
	var req ResolveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ResolveRequest{}, nil, errors.New("invalid JSON")
	}
	if req.Fields == "" {
		return ResolveRequest{}, nil, errors.New("missing 'fields'")
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

const (
	codeBadRequest     = "BAD_REQUEST"
	codeInvalidRequest = "INVALID_REQUEST"
	codeResolveFailed  = "RESOLVE_FAILED"
	codeTimeout        = "TIMEOUT"
)

type resultError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type result struct {
	Data   []map[string]any `json:"data"`
	Errors []resultError    `json:"errors,omitempty"`
}

func errorResponse(code, message string) result {
	return result{Errors: []resultError{{Message: message, Extensions: map[string]any{"code": code}}}}
}

// errorCode classifies a resolve error. Request mistakes are told apart from
// collaborator failures.
func errorCode(err error) string {
	switch {
	case errors.Is(err, fieldplan.ErrInvalidDeclaration),
		errors.Is(err, fieldplan.ErrDanglingReference),
		errors.Is(err, fieldplan.ErrInternalField),
		errors.Is(err, language.ErrUnknownOperation),
		errors.Is(err, language.ErrSyntax):
		return codeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded):
		return codeTimeout
	default:
		return codeResolveFailed
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
