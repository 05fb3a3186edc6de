// Package proxy forwards HTTP traffic from a LAN-facing port to the web
// server, so a phone on a hotspot can reach the API during development.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"
)

// New returns a handler that forwards every request to target, rewriting
// the Host header and answering 502 when the upstream is unreachable.
func New(target *url.URL) http.Handler {
	rp := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.Host = target.Host
			r.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("Proxy upstream failed", "method", r.Method, "url", r.URL.String(), "err", err)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Proxy", "method", r.Method, "url", r.URL.String(), "remote", r.RemoteAddr)
		rp.ServeHTTP(w, r)
	})
}

// ParseTarget accepts "host", "host:port" or a full http(s) URL.
func ParseTarget(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("proxy target is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		u, err = url.Parse("http://" + raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy target %q: %w", raw, err)
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("proxy target %q must be http or https", raw)
	}
	return u, nil
}

// ListenAndServe runs the proxy until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, target *url.URL) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           New(target),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("Proxy listening", "addr", addr, "target", target.String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
