package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	WaitForServices    string   // duration to wait for other services to be ready
	LogLevel           string   // sets the log level (zap log level values)
	LogFormat          string   // text vs json
	LogFilter          string   // zapfilter rules, e.g. "*:gateway.* info:*"
	EnableTelemetry    bool     // enable telemetry
	TelemetryEndpoint  string   // endpoint for telemetry (empty: stdout exporter)
	ProfilingPort      int      // port for profiling
	SourceSpecs        []string // sources given via --source id:port:driver:device[:individual]
	BindAddr           string   // address the UDP listeners bind to
	MinGameVersion     string   // warn when a source reports an older game version (semver)
	ViewerAddr         string   // listen addr for the viewer server (insecure)
	TLSServerAddr      string   // listen addr for the viewer server (tls)
	TLSCertFile        string   // path to TLS certificate
	TLSKeyFile         string   // path to TLS key
	TraefikCerts       string   // path to traefik certs file
	TraefikCertDomain  string   // the domain to lookup within the traefik certs
	MaxConnections     int      // max number of concurrent viewer connections
	AllowedOrigins     []string // CORS origins for the viewer server
	SubscriberBuffer   int      // per viewer buffer size
	OverflowPolicy     string   // drop-oldest or drop-newest
	StaleDuration      string   // duration after which a source is considered stale
	NatsURL            string   // NATS server url (empty: export disabled)
	NatsEncoding       string   // json or proto
	NatsSubjectPrefix  string   // prefix of exported subjects
	NatsSnapshotBucket string   // jetstream kv bucket for snapshots
	PrintMessage       bool     // if true, the message payload will be print on debug level
)

// Config holds the configuration values which are used by the application
type Config struct {
	PrintMessage bool // if true, the message payload will be print on debug level
	Sources      []Source
}
