package broker

import (
	"crypto/tls"
	"time"

	"github.com/watchtower-mqtt/vigil/metrics"
	"github.com/watchtower-mqtt/vigil/pkg/logger"
	"github.com/watchtower-mqtt/vigil/retained"
)

// Options holds broker startup configuration, built via functional Option
// values. Modeled on the teacher's internal/server Option/Options pattern
// (mined from chenquan-lighthouse) and network.ListenerConfig.
type Options struct {
	Addr             string
	CredentialsPath  string
	LogPath          string
	GCThreshold      int
	WorkerPoolSize   int
	Store            retained.Store
	Logger           logger.Logger
	Metrics          *metrics.Metrics
	TLSConfig        *tls.Config
	AllowAnonymous   bool
	AcceptRetryDelay time.Duration
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Addr:             "127.0.0.1:9090",
		CredentialsPath:  "credentials.txt",
		LogPath:          "log.txt",
		GCThreshold:      10,
		WorkerPoolSize:   6,
		Store:            retained.NewMemoryStore(),
		AllowAnonymous:   true,
		AcceptRetryDelay: 5 * time.Millisecond,
	}
}

// WithAddr sets the TCP listen address (ip:port).
func WithAddr(addr string) Option {
	return func(o *Options) { o.Addr = addr }
}

// WithCredentialsFile points at the username/password file read at
// startup.
func WithCredentialsFile(path string) Option {
	return func(o *Options) { o.CredentialsPath = path }
}

// WithLogFile sets the path truncated at startup for mirrored log output.
// Mirroring applies to the default logger only; a logger set with
// WithLogger writes wherever it was built to write.
func WithLogFile(path string) Option {
	return func(o *Options) { o.LogPath = path }
}

// WithGCThreshold overrides the retained-log GC trigger length (default
// 10, matching the reference).
func WithGCThreshold(n int) Option {
	return func(o *Options) { o.GCThreshold = n }
}

// WithWorkerPoolSize overrides the bounded packet-processing pool size
// (default 6).
func WithWorkerPoolSize(n int) Option {
	return func(o *Options) { o.WorkerPoolSize = n }
}

// WithStore overrides the retained-log backend (default MemoryStore).
func WithStore(s retained.Store) Option {
	return func(o *Options) { o.Store = s }
}

// WithLogger overrides the structured logger instance.
func WithLogger(l logger.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics attaches a Prometheus metrics sink. Optional; the broker
// never makes a protocol decision based on metrics state.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithTLSConfig wires an optional TLS listener. Off by default; the
// broker runs in plaintext TCP unless this is set.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) { o.TLSConfig = cfg }
}

// WithAllowAnonymous toggles guest-mode CONNECTs (no username/password).
func WithAllowAnonymous(allow bool) Option {
	return func(o *Options) { o.AllowAnonymous = allow }
}
