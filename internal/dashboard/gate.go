package dashboard

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/saas-project/saas/apitypes"
)

// DefaultLoginPath is where denied requests are sent.
const DefaultLoginPath = "/auth/login"

type principalContextKey struct{}

// PrincipalFromContext returns the user admitted by the gate, if the checker
// named one.
func PrincipalFromContext(ctx context.Context) *apitypes.User {
	u, _ := ctx.Value(principalContextKey{}).(*apitypes.User)
	return u
}

// DecisionRecorder counts gate outcomes.
type DecisionRecorder interface {
	RecordGate(decision string)
}

type noopRecorder struct{}

func (noopRecorder) RecordGate(string) {}

// Gate is the access checkpoint in front of dashboard content.
type Gate struct {
	checker   Checker
	loginPath string
	logger    *slog.Logger
	recorder  DecisionRecorder
}

// Option customises a Gate.
type Option func(*Gate)

// WithLoginPath changes the redirect target for denied requests.
func WithLoginPath(path string) Option {
	return func(g *Gate) { g.loginPath = path }
}

// WithLogger sets the logger used for checker failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithRecorder reports every decision to rec.
func WithRecorder(rec DecisionRecorder) Option {
	return func(g *Gate) {
		if rec != nil {
			g.recorder = rec
		}
	}
}

// NewGate builds a Gate. A nil checker means Passthrough.
func NewGate(checker Checker, opts ...Option) *Gate {
	if checker == nil {
		checker = Passthrough{}
	}
	g := &Gate{checker: checker, loginPath: DefaultLoginPath, logger: slog.Default(), recorder: noopRecorder{}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Protect runs the checker before next. Denied requests are redirected to the
// login path with the original location in ?next=; next never runs for them.
func (g *Gate) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := g.checker.Check(r.Context(), r)
		if err != nil {
			g.recorder.RecordGate("error")
			g.logger.Error("dashboard gate", slog.String("path", r.URL.Path), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if !decision.Allowed {
			g.recorder.RecordGate("deny")
			http.Redirect(w, r, g.loginURL(r), http.StatusSeeOther)
			return
		}
		g.recorder.RecordGate("allow")
		if decision.Principal != nil {
			r = r.WithContext(context.WithValue(r.Context(), principalContextKey{}, decision.Principal))
		}
		next.ServeHTTP(w, r)
	})
}

// Serve renders children inside Layout behind the gate.
func (g *Gate) Serve(children template.HTML) http.Handler {
	return g.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(Layout(children)))
	}))
}

func (g *Gate) loginURL(r *http.Request) string {
	return g.loginPath + "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
}
