package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PosPrintAgent/internal/agent"
	"github.com/NowakAdmin/PosPrintAgent/internal/api"
	"github.com/NowakAdmin/PosPrintAgent/internal/compose"
	"github.com/NowakAdmin/PosPrintAgent/internal/config"
	"github.com/NowakAdmin/PosPrintAgent/internal/devices"
	"github.com/NowakAdmin/PosPrintAgent/internal/escpos"
	"github.com/NowakAdmin/PosPrintAgent/internal/observability"
	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
	"github.com/NowakAdmin/PosPrintAgent/internal/service"
	"github.com/NowakAdmin/PosPrintAgent/internal/store"
	"github.com/NowakAdmin/PosPrintAgent/internal/tray"
	"github.com/NowakAdmin/PosPrintAgent/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "configure":
			runConfigure()
			return
		case "headless":
			runHeadless()
			return
		case "devices":
			runDevices()
			return
		case "print-label":
			runPrintLabel()
			return
		case "version":
			fmt.Printf("PosPrintAgent %s\n", version.Version)
			return
		}
	}

	runTray()
}

func runConfigure() {
	cfg := mustConfig()

	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	serverURL := fs.String("server", cfg.ServerURL, "POS backend base URL, e.g. https://pos.example.com")
	wsURL := fs.String("ws", cfg.WebSocketURL, "agent WebSocket URL, e.g. wss://pos.example.com/agent/ws")
	agentID := fs.String("agent-id", cfg.AgentID, "agent account ID")
	token := fs.String("token", cfg.AgentToken, "agent API token")
	tenantID := fs.String("tenant-id", cfg.TenantID, "optional tenant ID")
	deviceName := fs.String("name", cfg.DeviceName, "agent name shown in the backend")
	transport := fs.String("transport", cfg.Printer.Transport, "printer transport: serial or raw_tcp")
	serialPorts := fs.String("serial-ports", strings.Join(cfg.Printer.SerialPorts, ","), "comma separated paired serial ports, e.g. COM7,/dev/rfcomm0")
	baud := fs.Int("baud", cfg.Printer.BaudRate, "serial baud rate")
	tcpHosts := fs.String("tcp-hosts", strings.Join(cfg.Printer.TCPHosts, ","), "comma separated network printers, host or host:port")
	tcpPort := fs.Int("tcp-port", cfg.Printer.TCPPort, "port for network printers given without one (default 9100)")
	codePage := fs.String("code-page", cfg.Printer.CodePage, "printer code page, e.g. cp437, cp852")
	listen := fs.String("listen", cfg.API.Listen, "local API listen address")
	apiToken := fs.String("api-token", cfg.API.Token, "bearer token required by the local API")
	logLevel := fs.String("log-level", cfg.LogLevel, "trace, debug, info, warn or error")
	githubRepo := fs.String("github-repo", cfg.Update.GitHubRepo, "release repository for update checks, e.g. owner/name")

	_ = fs.Parse(os.Args[2:])

	cfg.ServerURL = *serverURL
	cfg.WebSocketURL = *wsURL
	cfg.AgentID = *agentID
	cfg.AgentToken = *token
	cfg.TenantID = *tenantID
	cfg.DeviceName = *deviceName
	cfg.Printer.Transport = *transport
	cfg.Printer.SerialPorts = splitList(*serialPorts)
	cfg.Printer.BaudRate = *baud
	cfg.Printer.TCPHosts = splitList(*tcpHosts)
	cfg.Printer.TCPPort = *tcpPort
	cfg.Printer.CodePage = *codePage
	cfg.API.Listen = *listen
	cfg.API.Token = *apiToken
	cfg.LogLevel = *logLevel
	cfg.Update.GitHubRepo = *githubRepo

	if _, err := devices.NewTransport(cfg.Printer); err != nil {
		fatalf("invalid printer settings: %v", err)
	}
	if _, err := escpos.NewCodec(cfg.Printer.CodePage); err != nil {
		fatalf("invalid printer settings: %v", err)
	}

	if err := config.Save(cfg); err != nil {
		fatalf("saving config failed: %v", err)
	}

	fmt.Printf("Config saved: %s\n", config.Path())
}

func runHeadless() {
	rt := mustRuntime()
	defer rt.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := agent.New(rt.cfg, rt.svc, rt.logger)
	if err := a.Start(ctx); err != nil {
		rt.logger.Fatal().Err(err).Msg("agent start failed")
	}

	server := api.NewServer(rt.cfg.API, rt.svc, rt.logger)
	go func() {
		if err := server.Start(); err != nil {
			rt.logger.Error().Err(err).Msg("local API stopped")
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Stop(shutdownCtx)
	a.Stop()
}

func runDevices() {
	rt := mustRuntime()
	defer rt.close()

	list, err := rt.svc.ListDevices(context.Background())
	if err != nil {
		fb := service.Explain(err)
		rt.close()
		fatalf("%s (%s)", fb.Message, fb.Kind)
	}

	current := rt.svc.Status().PairedAddress
	for _, d := range list {
		mark := " "
		if d.Address == current {
			mark = "*"
		}
		paired := ""
		if d.Paired {
			paired = " [paired]"
		}
		fmt.Printf("%s %-24s %s%s\n", mark, d.Address, d.Name, paired)
	}
}

func runPrintLabel() {
	fs := flag.NewFlagSet("print-label", flag.ExitOnError)
	name := fs.String("name", "", "product name printed above the barcode")
	code := fs.String("barcode", "", "barcode value")
	address := fs.String("address", "", "printer to pair with first (optional)")
	_ = fs.Parse(os.Args[2:])

	rt := mustRuntime()
	defer rt.close()

	ctx := context.Background()
	if *address != "" {
		if err := rt.svc.Pair(ctx, *address); err != nil {
			fb := service.Explain(err)
			rt.close()
			fatalf("%s (%s)", fb.Message, fb.Kind)
		}
	}

	var (
		res service.JobResult
		err error
	)
	if *code == "" && *name == "" {
		res, err = rt.svc.PrintTestLabel(ctx)
	} else {
		res, err = rt.svc.PrintLabel(ctx, compose.Record{Name: *name, Barcode: *code})
	}
	if err != nil {
		fb := service.Explain(err)
		rt.close()
		fatalf("%s (%s)", fb.Message, fb.Kind)
	}

	fmt.Printf("Printed job %s (%d bytes)\n", res.JobID, res.Bytes)
}

func runTray() {
	rt := mustRuntime()
	defer rt.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := agent.New(rt.cfg, rt.svc, rt.logger)
	server := api.NewServer(rt.cfg.API, rt.svc, rt.logger)
	go func() {
		if err := server.Start(); err != nil {
			rt.logger.Error().Err(err).Msg("local API stopped")
		}
	}()

	t := tray.New(rt.cfg.Update, a, rt.svc, rt.logger, func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Stop(shutdownCtx)
	})
	rt.manager.OnChange(t.PrinterChanged)

	if err := a.Start(ctx); err != nil {
		rt.logger.Error().Err(err).Msg("agent start failed")
	}

	t.Run()
}

// agentRuntime is everything a subcommand needs to drive the printer.
type agentRuntime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	manager *printer.Manager
	svc     *service.Service

	closers []func()
}

func (r *agentRuntime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func mustRuntime() *agentRuntime {
	cfg := mustConfig()

	logger, closeLog, err := observability.NewLogger(filepath.Join(config.LogDir(), "agent.log"), cfg.LogLevel)
	if err != nil {
		fatalf("logger setup failed: %v", err)
	}
	rt := &agentRuntime{cfg: cfg, logger: logger, closers: []func(){closeLog}}

	db, err := store.Open(config.DataDir())
	if err != nil {
		rt.close()
		fatalf("opening state store failed: %v", err)
	}
	rt.closers = append(rt.closers, func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("closing state store failed")
		}
	})

	transport, err := devices.NewTransport(cfg.Printer)
	if err != nil {
		rt.close()
		fatalf("printer transport: %v", err)
	}

	codec, err := escpos.NewCodec(cfg.Printer.CodePage)
	if err != nil {
		rt.close()
		fatalf("printer code page: %v", err)
	}

	observability.RegisterMetrics()

	rt.manager = printer.NewManager(transport, db.PrinterAddress(), logger.With().Str("component", "printer").Logger())
	rt.manager.OnChange(func(st printer.ConnectionState) {
		observability.SetPrinterConnected(st.Connected)
	})
	if err = rt.manager.LoadPersisted(); err != nil {
		logger.Warn().Err(err).Msg("restoring paired printer failed")
	}

	builder := escpos.NewBuilder(codec, escpos.LabelOptions{
		Height: cfg.Printer.BarcodeHeight,
		Width:  cfg.Printer.BarcodeWidth,
	})
	composer := compose.New(builder, codec, logger.With().Str("component", "compose").Logger())

	rt.svc = service.New(rt.manager, composer, service.Options{
		ScanTimeout:    cfg.Printer.ScanTimeout(),
		ConnectTimeout: cfg.Printer.DialTimeout(),
		WriteTimeout:   cfg.Printer.WriteTimeout(),
	}, logger)

	logger.Info().
		Str("version", version.Version).
		Str("transport", cfg.Printer.Transport).
		Str("code_page", codec.Name()).
		Msg("print agent ready")

	return rt
}

func mustConfig() *config.Config {
	cfg, err := config.LoadOrCreateDefault()
	if err != nil {
		fatalf("reading config failed: %v", err)
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
