package correlator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
	"github.com/wesleyorama2/pacer/internal/message"
)

// DefaultReceiverPath is where the receiver accepts responses.
const DefaultReceiverPath = "/responses"

// MaxResponseBody bounds the accepted response size.
const MaxResponseBody = 10 << 20

// Receiver accepts responses over HTTP and hands them to a correlator.
// Every POSTed body, with its headers, becomes one response message.
type Receiver struct {
	correlator *Correlator
	addr       string
	path       string
	logger     *zap.SugaredLogger

	server   *http.Server
	listener net.Listener
}

// NewReceiver creates a receiver listening on addr.
func NewReceiver(c *Correlator, addr, path string, logger *zap.SugaredLogger) *Receiver {
	if path == "" {
		path = DefaultReceiverPath
	}
	return &Receiver{
		correlator: c,
		addr:       addr,
		path:       path,
		logger:     logging.OrDefault(logger),
	}
}

// Handler returns the HTTP handler of the receiver.
func (r *Receiver) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(r.path, r.handleResponse)
	return mux
}

func (r *Receiver) handleResponse(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, MaxResponseBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	resp := message.New(string(body))
	for k := range req.Header {
		resp.Headers[k] = req.Header.Get(k)
	}
	r.correlator.RegisterResponse(resp)
	w.WriteHeader(http.StatusAccepted)
}

// Listen binds the listening socket. Serve must be called afterwards.
func (r *Receiver) Listen() error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("receiver failed to listen on %s: %w", r.addr, err)
	}
	r.listener = ln
	r.server = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (r *Receiver) Addr() string {
	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.addr
}

// Serve accepts responses until ctx is done, then shuts the server down.
func (r *Receiver) Serve(ctx context.Context) error {
	if r.server == nil {
		if err := r.Listen(); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Infow("response receiver listening", "addr", r.Addr(), "path", r.path)
		errCh <- r.server.Serve(r.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("receiver shutdown: %w", err)
		}
		<-errCh
		return nil
	}
}
