package simulate

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/cmd/util"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/config"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/packet"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/simulator"
)

type options struct {
	target    string
	sourceID  string
	interval  time.Duration
	timeScale uint32
	laps      uint8
	lapTimeMS uint32
	track     int8
	format    uint16
	layout    string
	carIndex  uint8
}

func NewSimulateCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "sends simulated F1 telemetry to a gateway source",
		Long: `Sends well formed F1 datagrams (lap data, telemetry, status, damage, session)
to the given target or to the port of a configured source.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.Context(), &opts)
		},
	}
	cmd.Flags().StringVar(&opts.target, "target", "",
		"host:port to send to")
	cmd.Flags().StringVar(&opts.sourceID, "source-id", "",
		"send to localhost:<port> of this configured source")
	cmd.Flags().DurationVar(&opts.interval, "interval", 50*time.Millisecond,
		"send interval")
	cmd.Flags().Uint32Var(&opts.timeScale, "time-scale", 1,
		"speed up the simulated clock")
	cmd.Flags().Uint8Var(&opts.laps, "laps", 0,
		"stop when this lap is reached (0: endless)")
	cmd.Flags().Uint32Var(&opts.lapTimeMS, "lap-time", 90_000,
		"duration of a simulated lap in milliseconds")
	cmd.Flags().Int8Var(&opts.track, "track", 7,
		"track id")
	cmd.Flags().Uint16Var(&opts.format, "format", packet.Format2025,
		"packet format (2024, 2025)")
	cmd.Flags().StringVar(&opts.layout, "lap-layout", packet.LapLayoutExact.Name,
		"lap data entry layout (exact, short1, short2, long1, long2)")
	cmd.Flags().Uint8Var(&opts.carIndex, "car-index", 0,
		"index of the player car")
	return cmd
}

func runSimulation(ctx context.Context, opts *options) error {
	if _, err := util.SetupLogger(); err != nil {
		return err
	}
	target, err := resolveTarget(opts)
	if err != nil {
		return err
	}
	layout, ok := lo.Find(packet.LapLayouts, func(l packet.LapLayout) bool {
		return l.Name == opts.layout
	})
	if !ok {
		return fmt.Errorf("unknown lap layout %q", opts.layout)
	}
	conn, err := net.Dial("udp", target)
	if err != nil {
		return err
	}
	defer conn.Close()

	gen := simulator.NewGenerator(
		simulator.WithFormat(opts.format),
		simulator.WithSessionUID(newSessionUID()),
		simulator.WithTrack(opts.track),
		simulator.WithLapTime(opts.lapTimeMS),
		simulator.WithLapLayout(layout),
		simulator.WithCarIndex(opts.carIndex))
	sender := simulator.NewSender(gen, conn,
		simulator.WithInterval(opts.interval),
		simulator.WithTimeScale(opts.timeScale),
		simulator.WithMaxLaps(opts.laps))

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info("sending simulated telemetry",
		log.String("target", target),
		log.Uint64("session", gen.SessionUID()),
		log.String("layout", layout.Name))
	return sender.Run(ctx)
}

func resolveTarget(opts *options) (string, error) {
	if opts.target != "" {
		return opts.target, nil
	}
	sources, err := config.LoadSources(viper.GetViper(), config.SourceSpecs)
	if err != nil {
		return "", err
	}
	if opts.sourceID == "" {
		return fmt.Sprintf("localhost:%d", sources[0].Port), nil
	}
	src, ok := lo.Find(sources, func(s config.Source) bool { return s.ID == opts.sourceID })
	if !ok {
		return "", fmt.Errorf("%w: %s", config.ErrInvalidSource, opts.sourceID)
	}
	return fmt.Sprintf("localhost:%d", src.Port), nil
}

// newSessionUID derives a random session uid from a uuid
func newSessionUID() uint64 {
	id := uuid.New()
	return binary.LittleEndian.Uint64(id[:8])
}
