// Command plantwall runs the plant wall control loop and serves its status
// over HTTP, with optional MQTT telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/plant-wall/internal/actuator"
	"github.com/sweeney/plant-wall/internal/config"
	"github.com/sweeney/plant-wall/internal/control"
	"github.com/sweeney/plant-wall/internal/metrics"
	"github.com/sweeney/plant-wall/internal/mqtt"
	"github.com/sweeney/plant-wall/internal/sensor"
	"github.com/sweeney/plant-wall/internal/settings"
	"github.com/sweeney/plant-wall/internal/sim"
	"github.com/sweeney/plant-wall/internal/status"
	"github.com/sweeney/plant-wall/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	def := config.Default()

	root := &cobra.Command{
		Use:          "plantwall",
		Short:        "Automated plant wall controller",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, cfgPath)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "YAML config file")
	pf.String("http", def.HTTPAddr, "HTTP listen address")
	pf.String("broker", def.Broker, "MQTT broker URL (empty disables telemetry)")
	pf.String("client-id", def.ClientID, "MQTT client ID")
	pf.Duration("tick", def.TickInterval, "control loop tick interval")
	pf.Duration("call-timeout", def.CallTimeout, "timeout for each sensor read and actuator command")
	pf.Int("safe-mode-after", def.SafeModeAfter, "consecutive faults before safe mode")
	pf.Bool("mock", def.Mock, "run against a simulated plant instead of hardware")
	pf.Bool("debug", def.Debug, "development logging")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the control loop (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDaemon(cmd, cfgPath)
			},
		},
		&cobra.Command{
			Use:   "read-sensors",
			Short: "Read every sensor once, print the result and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return readSensors(cmd, cfgPath)
			},
		},
	)
	return root
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openHardware returns the sensor reader and actuator gateway. In mock mode
// both are the same simulated plant.
func openHardware(cfg config.Config) (sensor.Reader, actuator.Gateway, error) {
	if cfg.Mock {
		p := sim.New(sim.DefaultConfig())
		return p, p, nil
	}
	r, err := sensor.NewRealReader(cfg.Hardware)
	if err != nil {
		return nil, nil, fmt.Errorf("init sensors: %w", err)
	}
	g, err := actuator.NewRealGateway(cfg.Hardware)
	if err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("init actuators: %w", err)
	}
	return r, g, nil
}

func readSensors(cmd *cobra.Command, cfgPath string) error {
	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return err
	}
	reader, gw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer reader.Close()
	defer gw.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.CallTimeout)
	defer cancel()
	r, err := reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("read sensors: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatReading(r))
	return nil
}

func formatReading(r sensor.Reading) string {
	return fmt.Sprintf("soil_moisture: %d, external_light: %d, water_tank_level: %d%%",
		r.SoilMoisture, r.ExternalLight, r.WaterTankLevel)
}

func runDaemon(cmd *cobra.Command, cfgPath string) error {
	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	reader, gw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer reader.Close()
	defer gw.Close()

	var tel mqtt.Publisher
	if cfg.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.Broker,
			ClientID: cfg.ClientID,
			Logger:   log,
		})
		if err != nil {
			log.Warn("mqtt unavailable, continuing without telemetry", zap.Error(err))
		} else {
			tel = p
		}
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	log.Info("started",
		zap.String("http", cfg.HTTPAddr),
		zap.String("broker", cfg.Broker),
		zap.Duration("tick", cfg.TickInterval),
		zap.Bool("mock", cfg.Mock))

	return serve(ctx, daemon{
		cfg:    cfg,
		reader: reader,
		gw:     gw,
		tel:    tel,
		log:    log,
		tick:   ticker.C,
		ln:     ln,
	})
}

// daemon is everything serve needs, so tests can substitute fakes.
type daemon struct {
	cfg    config.Config
	reader sensor.Reader
	gw     actuator.Gateway
	tel    mqtt.Publisher // nil disables telemetry
	log    *zap.Logger
	tick   <-chan time.Time
	ln     net.Listener
	now    func() time.Time
}

// serve runs the loop and HTTP server until ctx ends. The loop applies its
// shutdown posture before the HTTP server stops, so the final status is
// still visible to clients that are connected.
func serve(ctx context.Context, d daemon) error {
	pub := status.NewPublisher()
	m := metrics.New()

	var tel control.Telemetry
	if d.tel != nil {
		tel = d.tel
		defer d.tel.Close()
	}

	loop, err := control.New(control.Options{
		Reader:        d.reader,
		Gateway:       d.gw,
		Status:        pub,
		Thresholds:    d.cfg.Thresholds,
		CallTimeout:   d.cfg.CallTimeout,
		SafeModeAfter: d.cfg.SafeModeAfter,
		Telemetry:     tel,
		Metrics:       m,
		Logger:        d.log.Named("control"),
		Now:           d.now,
	})
	if err != nil {
		d.ln.Close()
		return err
	}

	srv := web.New(d.cfg.HTTPAddr, web.Options{
		Status:  pub,
		Intake:  settings.NewIntake(loop, d.log.Named("settings")),
		Control: loop,
		Metrics: m,
		Logger:  d.log.Named("http"),
		Info: web.Info{
			Broker:       d.cfg.Broker,
			HTTPAddr:     d.cfg.HTTPAddr,
			TickInterval: d.cfg.TickInterval,
		},
	})
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.Serve(d.ln)
	}()
	d.log.Info("http status server listening", zap.String("addr", d.ln.Addr().String()))

	loopErr := loop.Run(ctx, d.tick)
	d.log.Info("control loop stopped")

	pub.Close()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		d.log.Warn("http shutdown", zap.Error(err))
	}
	if err := <-httpErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Join(loopErr, fmt.Errorf("http server: %w", err))
	}
	return loopErr
}
