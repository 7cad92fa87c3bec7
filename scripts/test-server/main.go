// Command test-server is a local target for pacer runs.
//
// It answers /status/{code} with the given status, echoes /echo and, when
// started with -reply-to, posts every request carrying a correlation header
// back to a pacer receiver after -reply-delay.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/wesleyorama2/pacer/internal/correlator"
	"github.com/wesleyorama2/pacer/internal/logging"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	replyTo := flag.String("reply-to", "", "receiver URL correlated responses are posted to")
	replyDelay := flag.Duration("reply-delay", 10*time.Millisecond, "delay before posting a correlated response")
	header := flag.String("header", correlator.DefaultHeader, "correlation header")
	flag.Parse()

	logger := logging.Logger.Named("test-server")
	defer logging.Sync()

	ctx, cancel := logging.RootContext()
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	reply := func(id string, body []byte) {
		time.Sleep(*replyDelay)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, *replyTo, bytes.NewReader(body))
		if err != nil {
			logger.Warnw("failed to build reply", "error", err)
			return
		}
		req.Header.Set(*header, id)
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			logger.Debugw("reply failed", "id", id, "error", err)
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.PathValue("code"))
		if err != nil || code < 100 || code > 599 {
			http.Error(w, "invalid status code", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(code)
		fmt.Fprint(w, http.StatusText(code))
	})

	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		response, _ := json.Marshal(map[string]any{
			"status": "ok",
			"method": r.Method,
			"body":   string(body),
			"time":   time.Now().Format(time.RFC3339Nano),
		})

		if id := r.Header.Get(*header); id != "" && *replyTo != "" {
			go reply(id, response)
			w.WriteHeader(http.StatusAccepted)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(response)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "healthy")
	})

	// Configure server for high throughput
	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Infow("test server listening",
		"addr", *addr,
		"cpus", runtime.NumCPU(),
		"replyTo", *replyTo,
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalw("server failed", "error", err)
	}
}
