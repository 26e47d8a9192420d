// Package visualiser streams pipeline frames to remote viewers over gRPC.
package visualiser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/banshee-data/slamsim/internal/monitoring"
	"github.com/banshee-data/slamsim/internal/pipeline"
)

// ErrTooManyClients is returned when MaxClients streams are already open.
var ErrTooManyClients = errors.New("too many visualiser clients")

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50051")
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients
	MaxClients int

	// ClientBuffer is the per-client frame queue length. Frames that do
	// not fit are dropped for that client.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50051",
		MaxClients:   5,
		ClientBuffer: 16,
	}
}

type subscriber struct {
	id     string
	frames chan pipeline.Frame
}

// Publisher fans pipeline frames out to the connected streams. It is a
// pipeline.Observer; Observe never blocks on a slow client.
type Publisher struct {
	config Config

	mu      sync.RWMutex
	clients map[string]*subscriber

	frameCount    atomic.Uint64
	droppedFrames atomic.Uint64
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Publisher{config: cfg, clients: make(map[string]*subscriber)}
}

// Observe implements pipeline.Observer.
func (p *Publisher) Observe(_ context.Context, f pipeline.Frame) {
	p.frameCount.Add(1)
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.clients {
		select {
		case c.frames <- f:
		default:
			p.droppedFrames.Add(1)
		}
	}
}

func (p *Publisher) subscribe() (*subscriber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil, ErrTooManyClients
	}
	c := &subscriber{id: uuid.NewString(), frames: make(chan pipeline.Frame, p.config.ClientBuffer)}
	p.clients[c.id] = c
	monitoring.Logf("visualiser: client %s connected (total %d)", c.id, len(p.clients))
	return c, nil
}

func (p *Publisher) unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.clients[id]; ok {
		delete(p.clients, id)
		monitoring.Logf("visualiser: client %s disconnected (remaining %d)", id, len(p.clients))
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	clients := len(p.clients)
	p.mu.RUnlock()
	return PublisherStats{
		Frames:  p.frameCount.Load(),
		Dropped: p.droppedFrames.Load(),
		Clients: clients,
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"`
	Clients int    `json:"clients"`
}

// Serve registers the Visualiser service on a new gRPC server and serves
// lis until ctx is done.
func (p *Publisher) Serve(ctx context.Context, lis net.Listener) error {
	const maxMsgSize = 16 * 1024 * 1024
	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	vs := NewServer(p)
	vs.stop = ctx.Done()
	RegisterVisualiserServer(srv, vs)

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("visualiser: gRPC listening on %s", lis.Addr())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("visualiser: %w", err)
		}
		return nil
	case <-ctx.Done():
		srv.GracefulStop()
		<-errCh
		monitoring.Logf("visualiser: gRPC server stopped")
		return nil
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (p *Publisher) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("visualiser: listen %s: %w", p.config.ListenAddr, err)
	}
	return p.Serve(ctx, lis)
}
