package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker holds the probes behind /healthz. Nil probes are skipped.
type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
	Cursor  func(ctx context.Context) (uint64, bool, error)
}

type status struct {
	Status string  `json:"status"`
	DB     string  `json:"db,omitempty"`
	RPC    string  `json:"rpc,omitempty"`
	Cursor *uint64 `json:"cursor,omitempty"`
}

// Handler returns the /healthz handler.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		st := status{Status: "ok"}
		code := http.StatusOK

		if checker.DBPing != nil {
			st.DB = probe(ctx, checker.DBPing)
		}
		if checker.RPCPing != nil {
			st.RPC = probe(ctx, checker.RPCPing)
		}
		if st.DB == "fail" || st.RPC == "fail" {
			st.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		if checker.Cursor != nil {
			if h, ok, err := checker.Cursor(ctx); err == nil && ok {
				st.Cursor = &h
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(st)
	})
}

func probe(ctx context.Context, fn func(context.Context) error) string {
	if err := fn(ctx); err != nil {
		return "fail"
	}
	return "ok"
}

// Serve starts a minimal /healthz server.
func Serve(addr string, checker Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/healthz", Handler(checker))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
