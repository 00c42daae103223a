// k6ctl drives a Wainlux K6 laser engraver over a serial port: preview the
// burn area, engrave images, mark positions and poke at the protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"

	// Image formats accepted by the engrave subcommand.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/openlaser/go-k6/audit"
	"github.com/openlaser/go-k6/k6"
	"github.com/openlaser/go-k6/logger"
	"github.com/openlaser/go-k6/transport"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: k6ctl <command> [flags]

Commands:
  version    query the firmware version
  bounds     trace the burn area with the positioning laser
  engrave    engrave an image
  preview    inspect an engrave job without hardware
  mark       burn a single-pixel mark
  jog        move the head to a position
  home       home the gantry
  stop       emergency stop
  crosshair  toggle the positioning laser (on|off)
  raw        send raw hex bytes

Run 'k6ctl <command> -h' for command flags.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		err = runVersion(ctx, os.Args[2:])
	case "bounds":
		err = runBounds(ctx, os.Args[2:])
	case "engrave":
		err = runEngrave(ctx, os.Args[2:])
	case "preview":
		err = runPreview(os.Args[2:])
	case "mark":
		err = runMark(ctx, os.Args[2:])
	case "jog":
		err = runJog(ctx, os.Args[2:])
	case "home":
		err = runHome(ctx, os.Args[2:])
	case "stop":
		err = runStop(ctx, os.Args[2:])
	case "crosshair":
		err = runCrosshair(ctx, os.Args[2:])
	case "raw":
		err = runRaw(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "k6ctl: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "k6ctl: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags wires the flags every hardware command shares into fs and
// returns the pending config resolution.
func commonFlags(fs *flag.FlagSet) func() (Config, error) {
	configPath := fs.String("config", "", "TOML config file")
	port := fs.String("port", "", "serial port (overrides config)")
	baud := fs.Int("baud", 0, "baud rate (overrides config)")
	csvLog := fs.String("csv", "", "write a CSV audit log to this path")
	byteDump := fs.String("dump", "", "write raw byte dumps with this path prefix")
	verbose := fs.Bool("v", false, "debug logging")

	return func() (Config, error) {
		cfg := defaultConfig()
		if *configPath != "" {
			loaded, err := loadConfig(*configPath)
			if err != nil {
				return Config{}, err
			}
			cfg = loaded
		}

		if *port != "" {
			cfg.Port = *port
		}
		if *baud != 0 {
			cfg.Baud = *baud
		}
		if *csvLog != "" {
			cfg.CSVLog = *csvLog
		}
		if *byteDump != "" {
			cfg.ByteDump = *byteDump
		}
		if *verbose {
			cfg.Verbose = true
		}

		return cfg, nil
	}
}

// openSession opens the port, attaches the configured sinks and runs the
// handshake. The returned cleanup closes everything in reverse order.
func openSession(ctx context.Context, cfg Config) (*k6.Session, func(), error) {
	level := logger.InfoLevel
	if cfg.Verbose {
		level = logger.DebugLevel
	}
	log := logger.NewSlog(level, false)

	opts := []k6.SessionOption{
		k6.WithLogger(log),
		k6.WithChunkRetryLimit(cfg.ChunkRetryLimit),
		k6.WithIdleTimeout(cfg.IdleTimeout),
		k6.WithMaxWait(cfg.MaxWait),
	}

	var closers []func()
	if cfg.CSVLog != "" {
		csvLogger, err := audit.NewCSVLogger(cfg.CSVLog)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = csvLogger.Close() })
		opts = append(opts, k6.WithAuditSink(csvLogger))
	}
	if cfg.ByteDump != "" {
		dump, err := audit.NewByteDumpLogger(cfg.ByteDump)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = dump.Close() })
		opts = append(opts, k6.WithByteSink(dump))
	}

	sessionCfg, err := k6.NewSessionConfig(opts...)
	if err != nil {
		return nil, nil, err
	}

	tr, err := transport.OpenSerial(cfg.Port, cfg.Baud)
	if err != nil {
		return nil, nil, err
	}

	session := k6.NewSession(tr, sessionCfg)
	cleanup := func() {
		_ = session.Close()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	version, err := session.Connect(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	log.Info("device connected", "port", cfg.Port, "version", version)

	return session, cleanup, nil
}

func runVersion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	resolve := commonFlags(fs)
	_ = fs.Parse(args)

	cfg, err := resolve()
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("firmware %s\n", session.Version())

	return nil
}

func runBounds(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bounds", flag.ExitOnError)
	resolve := commonFlags(fs)
	width := fs.Int("width", k6.WorkAreaWidth, "rectangle width in pixels")
	height := fs.Int("height", k6.WorkAreaHeight, "rectangle height in pixels")
	cx := fs.Int("cx", 0, "center X (0 = default)")
	cy := fs.Int("cy", 0, "center Y (0 = default)")
	_ = fs.Parse(args)

	cfg, err := resolve()
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return session.DrawBounds(ctx, *width, *height, *cx, *cy)
}

func loadJob(path string, power, depth int, dryRun bool) (*k6.BurnJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	job, err := k6.NewImageJob(img, power, depth)
	if err != nil {
		return nil, err
	}
	job.DryRun = dryRun

	return job, nil
}

func runEngrave(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("engrave", flag.ExitOnError)
	resolve := commonFlags(fs)
	imagePath := fs.String("image", "", "image to engrave (png, jpeg, gif)")
	power := fs.Int("power", 0, "laser power 0-1000 (0 = config default)")
	depth := fs.Int("depth", 0, "burn depth 1-255 (0 = config default)")
	dryRun := fs.Bool("dry-run", false, "transfer the job but never arm the laser")
	_ = fs.Parse(args)

	if *imagePath == "" {
		return fmt.Errorf("engrave: -image is required")
	}

	cfg, err := resolve()
	if err != nil {
		return err
	}
	if *power != 0 {
		cfg.Power = *power
	}
	if *depth != 0 {
		cfg.Depth = *depth
	}

	job, err := loadJob(*imagePath, cfg.Power, cfg.Depth, *dryRun)
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := session.Engrave(ctx, job)
	if err != nil {
		return err
	}

	fmt.Println(res.Message)
	if !res.OK {
		os.Exit(1)
	}

	return nil
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	imagePath := fs.String("image", "", "image to inspect (png, jpeg, gif)")
	power := fs.Int("power", 1000, "laser power 0-1000")
	depth := fs.Int("depth", 100, "burn depth 1-255")
	_ = fs.Parse(args)

	if *imagePath == "" {
		return fmt.Errorf("preview: -image is required")
	}

	job, err := loadJob(*imagePath, *power, *depth, false)
	if err != nil {
		return err
	}

	seq, err := job.BuildSequence()
	if err != nil {
		return err
	}

	stats := seq.Stats()
	fmt.Printf("commands:    %d (%d data chunks)\n", stats.Commands, stats.DataFrames)
	fmt.Printf("wire bytes:  %d (%d raster bytes)\n", stats.TotalBytes, stats.DataBytes)
	fmt.Printf("est. time:   %s worst case\n", stats.Estimated)
	if b, ok := seq.Bounds(); ok {
		fmt.Printf("bounds:      %dx%d @ (%d, %d)  X %d..%d  Y %d..%d\n",
			b.Width, b.Height, b.CenterX, b.CenterY, b.MinX, b.MaxX, b.MinY, b.MaxY)
	}
	for _, w := range seq.Validate() {
		fmt.Printf("warning:     %s\n", w)
	}

	return nil
}

func runMark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mark", flag.ExitOnError)
	resolve := commonFlags(fs)
	x := fs.Int("x", 800, "X position in pixels")
	y := fs.Int("y", 800, "Y position in pixels")
	power := fs.Int("power", 0, "laser power 0-1000 (0 = light default)")
	depth := fs.Int("depth", 0, "burn depth 1-255 (0 = light default)")
	_ = fs.Parse(args)

	cfg, err := resolve()
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := session.Mark(ctx, *x, *y, *power, *depth)
	if err != nil {
		return err
	}

	fmt.Println(res.Message)

	return nil
}

func runJog(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("jog", flag.ExitOnError)
	resolve := commonFlags(fs)
	x := fs.Int("x", 0, "X position in pixels")
	y := fs.Int("y", 0, "Y position in pixels")
	_ = fs.Parse(args)

	cfg, err := resolve()
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return session.Jog(ctx, *x, *y)
}

func runHome(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("home", flag.ExitOnError)
	resolve := commonFlags(fs)
	_ = fs.Parse(args)

	cfg, err := resolve()
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return session.Home(ctx)
}

func runStop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	resolve := commonFlags(fs)
	_ = fs.Parse(args)

	cfg, err := resolve()
	if err != nil {
		return err
	}

	// No handshake: a stop must go out even when the device is wedged
	// mid-burn and would never complete the connect sequence.
	tr, err := transport.OpenSerial(cfg.Port, cfg.Baud)
	if err != nil {
		return err
	}
	session := k6.NewSession(tr, nil)
	defer session.Close()

	return session.Stop(ctx)
}

func runCrosshair(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("crosshair", flag.ExitOnError)
	resolve := commonFlags(fs)
	_ = fs.Parse(args)

	var on bool
	switch fs.Arg(0) {
	case "on":
		on = true
	case "off":
		on = false
	default:
		return fmt.Errorf("crosshair: expected 'on' or 'off'")
	}

	cfg, err := resolve()
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return session.Crosshair(ctx, on)
}

func runRaw(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("raw", flag.ExitOnError)
	resolve := commonFlags(fs)
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("raw: expected hex bytes, e.g. 'k6ctl raw \"0a 00 04 00\"'")
	}

	cfg, err := resolve()
	if err != nil {
		return err
	}

	session, cleanup, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, arg := range fs.Args() {
		resp, err := session.RawSend(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s % X\n", arg, resp.Kind, resp.Raw)
	}

	return nil
}
