package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // by design
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/cmd/util"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/config"
	natsexport "github.com/mpapenbr/f1-telemetry-gateway-go/pkg/export/nats"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/gateway"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/model"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/publisher"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/server/tlsconfig"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/server/viewer"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/utils"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/utils/broadcast"
)

var appConfig config.Config // holds processed config values

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "starts the gateway",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			appConfig.PrintMessage = config.PrintMessage
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer()
		},
	}
	cmd.Flags().StringVar(&config.BindAddr,
		"bind-addr",
		"",
		"address the UDP listeners bind to (default: all interfaces)")
	cmd.Flags().StringVar(&config.MinGameVersion,
		"min-game-version",
		"",
		"warn if a source reports an older game version (e.g. v1.10.0)")
	cmd.Flags().StringVar(&config.ViewerAddr,
		"viewer-addr",
		"localhost:8080",
		"viewer server listen address (empty: disabled)")
	cmd.Flags().StringVar(&config.TLSServerAddr,
		"tls-server-addr",
		"",
		"viewer server listen address for TLS connections")
	cmd.Flags().StringVar(&config.TLSCertFile,
		"tls-cert",
		"",
		"file containing the TLS certificate")
	cmd.Flags().StringVar(&config.TLSKeyFile,
		"tls-key",
		"",
		"file containing the TLS key")
	cmd.Flags().StringVar(&config.TraefikCerts,
		"traefik-certs",
		"",
		"file containing the certs managed by traefik (acme.json)")
	cmd.Flags().StringVar(&config.TraefikCertDomain,
		"traefik-cert-domain",
		"",
		"domain to lookup in the traefik certs")
	cmd.Flags().IntVar(&config.MaxConnections,
		"max-connections",
		100,
		"max number of concurrent viewer connections (0: no limit)")
	cmd.Flags().StringSliceVar(&config.AllowedOrigins,
		"allowed-origins",
		[]string{"*"},
		"origins allowed to connect to the viewer server")
	cmd.Flags().IntVar(&config.SubscriberBuffer,
		"subscriber-buffer",
		broadcast.DefaultBufferSize,
		"number of snapshots buffered per viewer")
	cmd.Flags().StringVar(&config.OverflowPolicy,
		"overflow-policy",
		broadcast.DropOldest.String(),
		"what to drop if a viewer does not keep up (drop-oldest, drop-newest)")
	cmd.Flags().StringVar(&config.StaleDuration,
		"stale-duration",
		"1m",
		"a source is reported as stale if no data was received for this duration")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"NATS server url (empty: export disabled)")
	cmd.Flags().StringVar(&config.NatsEncoding,
		"nats-encoding",
		string(model.EncodingJSON),
		"encoding of exported records (json, proto)")
	cmd.Flags().StringVar(&config.NatsSubjectPrefix,
		"nats-subject-prefix",
		natsexport.DefaultSubjectPrefix,
		"prefix of the exported subjects")
	cmd.Flags().StringVar(&config.NatsSnapshotBucket,
		"nats-snapshot-bucket",
		natsexport.DefaultBucket,
		"JetStream key value bucket for source snapshots")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"Endpoint that receives open telemetry data (empty: stdout)")
	cmd.Flags().IntVar(&config.ProfilingPort,
		"profiling-port",
		0,
		"port to use for providing profiling data")
	cmd.Flags().BoolVar(&config.PrintMessage,
		"print-message",
		false,
		"if true and log level is debug, each record will be printed")
	return cmd
}

//nolint:funlen,cyclop // by design
func startServer() error {
	if _, err := util.SetupLogger(); err != nil {
		return err
	}
	sources, err := config.LoadSources(viper.GetViper(), config.SourceSpecs)
	if err != nil {
		log.Error("invalid source configuration", log.ErrorField(err))
		return err
	}
	log.Debug("Config:",
		log.Any("sources", sources),
		log.String("viewer", config.ViewerAddr),
		log.String("nats", config.NatsURL))

	if config.ProfilingPort > 0 {
		log.Info("Starting profiling server on port", log.Int("port", config.ProfilingPort))
		go func() {
			//nolint:gosec // by design
			err := http.ListenAndServe(
				fmt.Sprintf("localhost:%d", config.ProfilingPort),
				nil)
			if err != nil {
				log.Error("Profiling server stopped", log.ErrorField(err))
			}
		}()
	}

	waitForRequiredServices()

	var telemetry *config.Telemetry
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		if telemetry, err = config.SetupTelemetry(context.Background()); err != nil {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	staleDuration := util.ParseDuration("stale-duration", config.StaleDuration, time.Minute)

	pub, err := newPublisher()
	if err != nil {
		return err
	}
	sinks := []gateway.Sink{pub}
	if appConfig.PrintMessage {
		sinks = append(sinks, gateway.SinkFunc(printRecord))
	}

	closeExport := func() {}
	if config.NatsURL != "" {
		var exporter *natsexport.Exporter
		if exporter, closeExport, err = newExporter(ctx); err != nil {
			log.Error("could not setup nats export", log.ErrorField(err))
			return err
		}
		defer closeExport()
		sinks = append(sinks, exporter)
	}

	gw := gateway.New(sources,
		gateway.WithSinks(sinks...),
		gateway.WithBindAddr(config.BindAddr),
		gateway.WithMinGameVersion(config.MinGameVersion))
	if err = gw.Start(ctx); err != nil {
		log.Error("gateway could not be started", log.ErrorField(err))
		return err
	}

	var wg sync.WaitGroup
	viewerOpts := []viewer.Option{
		viewer.WithStatusProvider(gw),
		viewer.WithMaxConnections(config.MaxConnections),
		viewer.WithAllowedOrigins(config.AllowedOrigins),
		viewer.WithStaleDuration(staleDuration),
	}
	if config.ViewerAddr != "" {
		if err = startViewer(ctx, &wg, config.ViewerAddr, pub, viewerOpts...); err != nil {
			gw.Stop()
			return err
		}
	}
	if config.TLSServerAddr != "" {
		tlsConfig := tlsconfig.NewProvider(ctx, tlsconfig.Settings{
			CertFile:      config.TLSCertFile,
			KeyFile:       config.TLSKeyFile,
			TraefikCerts:  config.TraefikCerts,
			TraefikDomain: config.TraefikCertDomain,
		})
		if tlsConfig == nil {
			log.Warn("no TLS certificate available, TLS server not started")
		} else {
			opts := append(viewerOpts, viewer.WithTLSConfig(tlsConfig))
			if err = startViewer(ctx, &wg, config.TLSServerAddr, pub, opts...); err != nil {
				gw.Stop()
				return err
			}
		}
	}
	go watchStaleSources(ctx, pub, staleDuration)

	log.Info("Server started")
	setupGoRoutinesDump()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	v := <-sigChan
	log.Debug("Got signal ", log.Any("signal", v))

	gw.Stop()
	closeExport()
	cancel()
	wg.Wait()
	pub.Shutdown()
	if telemetry != nil {
		telemetry.Shutdown()
	}
	log.Info("Server terminated")
	return nil
}

func newPublisher() (*publisher.Publisher, error) {
	policy, err := broadcast.ParseOverflowPolicy(config.OverflowPolicy)
	if err != nil {
		log.Error("invalid overflow policy", log.ErrorField(err))
		return nil, err
	}
	return publisher.New(
		publisher.WithBufferSize(config.SubscriberBuffer),
		publisher.WithOverflowPolicy(policy)), nil
}

// newExporter connects to NATS and creates the exporter. The returned func
// writes the pending snapshots and drains the connection; it may be called
// more than once.
func newExporter(ctx context.Context) (*natsexport.Exporter, func(), error) {
	enc, err := model.ParseEncoding(config.NatsEncoding)
	if err != nil {
		return nil, nil, err
	}
	nc, err := nats.Connect(config.NatsURL, nats.Name("f1-telemetry-gateway"))
	if err != nil {
		return nil, nil, err
	}
	exporter, err := natsexport.NewExporter(nc,
		natsexport.WithContext(ctx),
		natsexport.WithEncoding(enc),
		natsexport.WithSubjectPrefix(config.NatsSubjectPrefix),
		natsexport.WithBucket(config.NatsSnapshotBucket))
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	log.Info("nats export enabled",
		log.String("url", config.NatsURL),
		log.String("encoding", string(enc)))
	closeFunc := sync.OnceFunc(func() {
		exporter.Close()
		if err := nc.Drain(); err != nil {
			log.Warn("error draining nats connection", log.ErrorField(err))
		}
	})
	return exporter, closeFunc, nil
}

//nolint:whitespace // can't make both editor and linter happy
func startViewer(
	ctx context.Context,
	wg *sync.WaitGroup,
	addr string,
	pub *publisher.Publisher,
	opts ...viewer.Option,
) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		log.Error("viewer server could not be started",
			log.String("addr", addr), log.ErrorField(err))
		return err
	}
	srv := viewer.NewServer(pub, opts...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, ln); err != nil {
			log.Error("viewer server stopped", log.ErrorField(err))
		}
	}()
	return nil
}

func watchStaleSources(ctx context.Context, pub *publisher.Publisher, d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	reported := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stale := map[string]bool{}
		for _, id := range pub.Stale(d) {
			stale[id] = true
			if !reported[id] {
				log.Info("source is stale", log.String("source", id), log.Duration("after", d))
			}
		}
		reported = stale
	}
}

func printRecord(sourceID string, fields model.Fields) {
	log.Debug("record", log.String("source", sourceID), log.Any("fields", fields))
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

func waitForRequiredServices() {
	timeout := util.ParseDuration("wait-for-services", config.WaitForServices, 60*time.Second)

	wg := sync.WaitGroup{}
	checkTCP := func(addr string) {
		defer wg.Done()
		if err := utils.WaitForTCP(addr, timeout); err != nil {
			log.Fatal("required services not ready", log.ErrorField(err))
		}
	}

	if natsAddr := utils.ExtractFromNatsURL(config.NatsURL); natsAddr != "" {
		wg.Add(1)
		go checkTCP(natsAddr)
	}
	log.Debug("Waiting for connection checks to return")
	wg.Wait()
	log.Debug("Required services are available")
}
