package tray

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/NowakAdmin/PosPrintAgent/internal/autostart"
	"github.com/NowakAdmin/PosPrintAgent/internal/config"
	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
	"github.com/NowakAdmin/PosPrintAgent/internal/service"
	"github.com/NowakAdmin/PosPrintAgent/internal/update"
	"github.com/NowakAdmin/PosPrintAgent/internal/version"
)

const appName = "PosPrintAgent"

// Agent is the backend link the tray starts and stops.
type Agent interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// Printer is the part of service.Service the tray menu drives.
type Printer interface {
	Connect(ctx context.Context, address string) (bool, error)
	Disconnect(ctx context.Context)
	ListDevices(ctx context.Context) ([]printer.Device, error)
	PrintTestLabel(ctx context.Context) (service.JobResult, error)
	Status() printer.ConnectionState
}

type App struct {
	updates config.UpdateConfig
	checker *update.Checker
	agent   Agent
	printer Printer
	logger  zerolog.Logger
	onQuit  func()

	states chan printer.ConnectionState
	// lastAddress survives a toggle-off so the next click can reconnect.
	lastAddress string
}

func New(updates config.UpdateConfig, agentInstance Agent, p Printer, logger zerolog.Logger, onQuit func()) *App {
	return &App{
		updates: updates,
		checker: update.NewChecker(),
		agent:   agentInstance,
		printer: p,
		logger:  logger.With().Str("component", "tray").Logger(),
		onQuit:  onQuit,
		states:  make(chan printer.ConnectionState, 1),
	}
}

func (a *App) Run() {
	systray.Run(a.onReady, a.onExit)
}

// PrinterChanged queues st for the menu. Only the newest snapshot is kept.
func (a *App) PrinterChanged(st printer.ConnectionState) {
	select {
	case a.states <- st:
	default:
		select {
		case <-a.states:
		default:
		}
		select {
		case a.states <- st:
		default:
		}
	}
}

func (a *App) onReady() {
	systray.SetIcon(generateIcon(16))
	systray.SetTitle("POS Print Agent")
	systray.SetTooltip("POS Print Agent - label and receipt printer bridge")

	agentStatus := systray.AddMenuItem("Agent: offline", "Backend connection")
	agentStatus.Disable()
	start := systray.AddMenuItem("Go online", "Connect to the POS backend")
	stop := systray.AddMenuItem("Go offline", "Disconnect from the POS backend")

	systray.AddSeparator()
	printerStatus := systray.AddMenuItem(printerTitle(a.printer.Status()), "Printer connection")
	printerStatus.Disable()
	toggle := systray.AddMenuItem(toggleTitle(a.printer.Status()), "Connect or disconnect the printer")
	forget := systray.AddMenuItem("Forget printer", "Disconnect and forget the paired printer")
	testLabel := systray.AddMenuItem("Print test label", "Print a sample barcode label")

	systray.AddSeparator()
	autostartItem := systray.AddMenuItemCheckbox("Start at login", "Launch the agent when you log in", false)
	if enabled, err := autostart.IsEnabled(appName); err == nil && enabled {
		autostartItem.Check()
	}

	updateItem := systray.AddMenuItem("Check for updates", "Look for a newer release")
	versionItem := systray.AddMenuItem("Version: "+version.Version, "Agent version")
	versionItem.Disable()
	if a.updates.GitHubRepo == "" {
		updateItem.Disable()
	}

	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Quit POS Print Agent")

	setAgent := func(online bool) {
		if online {
			agentStatus.SetTitle("Agent: online")
			start.Disable()
			stop.Enable()
			return
		}
		agentStatus.SetTitle("Agent: offline")
		start.Enable()
		stop.Disable()
	}
	setAgent(a.agent.IsRunning())

	ctx := context.Background()

	every := time.Duration(a.updates.CheckIntervalHours) * time.Hour
	if every <= 0 {
		every = 6 * time.Hour
	}
	updateTicker := time.NewTicker(every)

	go func() {
		defer updateTicker.Stop()

		for {
			select {
			case st := <-a.states:
				if st.PairedAddress != "" {
					a.lastAddress = st.PairedAddress
				}
				printerStatus.SetTitle(printerTitle(st))
				toggle.SetTitle(toggleTitle(st))

			case <-start.ClickedCh:
				if a.agent.IsRunning() {
					continue
				}
				if err := a.agent.Start(ctx); err != nil {
					a.logger.Error().Err(err).Msg("agent start failed")
					continue
				}
				setAgent(true)

			case <-stop.ClickedCh:
				a.agent.Stop()
				setAgent(false)

			case <-toggle.ClickedCh:
				a.togglePrinter(ctx)

			case <-forget.ClickedCh:
				a.printer.Disconnect(ctx)
				a.lastAddress = ""

			case <-testLabel.ClickedCh:
				res, err := a.printer.PrintTestLabel(ctx)
				if err != nil {
					a.notify(err)
					continue
				}
				a.logger.Info().Str("job_id", res.JobID).Msg("test label printed")

			case <-autostartItem.ClickedCh:
				a.toggleAutostart(autostartItem)

			case <-updateItem.ClickedCh:
				if res, ok := a.checkUpdate(ctx); ok && res.HasUpdate {
					_ = openURL(res.URL)
				}

			case <-updateTicker.C:
				a.checkUpdate(ctx)

			case <-quit.ClickedCh:
				a.agent.Stop()
				systray.Quit()
				return
			}
		}
	}()
}

func (a *App) onExit() {
	a.agent.Stop()
	if a.onQuit != nil {
		a.onQuit()
	}
}

func (a *App) togglePrinter(ctx context.Context) {
	address := a.printer.Status().PairedAddress
	if address == "" {
		address = a.lastAddress
	}

	if address == "" {
		scanCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		devices, err := a.printer.ListDevices(scanCtx)
		cancel()
		if err != nil {
			a.notify(err)
			return
		}
		for _, d := range devices {
			if d.Paired {
				address = d.Address
				break
			}
		}
		if address == "" {
			a.logger.Warn().Int("seen", len(devices)).Msg("no paired printer to connect to")
			return
		}
	}

	connected, err := a.printer.Connect(ctx, address)
	if err != nil {
		a.notify(err)
		return
	}
	a.lastAddress = address
	a.logger.Info().Str("address", address).Bool("connected", connected).Msg("printer toggled")
}

func (a *App) toggleAutostart(item *systray.MenuItem) {
	if item.Checked() {
		if err := autostart.Disable(appName); err != nil {
			a.logger.Error().Err(err).Msg("disabling autostart failed")
			return
		}
		item.Uncheck()
		return
	}

	executablePath, err := os.Executable()
	if err != nil {
		a.logger.Error().Err(err).Msg("resolving executable path failed")
		return
	}

	if err = autostart.Enable(autostart.Entry{Name: appName, Executable: executablePath}); err != nil {
		a.logger.Error().Err(err).Msg("enabling autostart failed")
		return
	}
	item.Check()
}

func (a *App) checkUpdate(ctx context.Context) (update.Result, bool) {
	if a.updates.GitHubRepo == "" {
		return update.Result{}, false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := a.checker.Check(checkCtx, a.updates.GitHubRepo, version.Version)
	if err != nil {
		a.logger.Warn().Err(err).Msg("update check failed")
		return update.Result{}, false
	}

	if res.HasUpdate {
		a.logger.Info().Str("version", res.Version).Str("url", res.URL).Msg("update available")
	}
	return res, true
}

func openURL(url string) error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// notify surfaces feedback in the tooltip, which is the only place the tray
// can show text without a window.
func (a *App) notify(err error) {
	fb := service.Explain(err)
	a.logger.Warn().Err(err).Str("kind", fb.Kind).Msg(fb.Message)
	systray.SetTooltip("POS Print Agent - " + fb.Message)
}

func printerTitle(st printer.ConnectionState) string {
	switch {
	case st.Connected:
		return "Printer: " + st.PairedAddress
	case st.Phase == printer.Scanning:
		return "Printer: scanning..."
	case st.Phase == printer.Connecting:
		return "Printer: connecting..."
	case st.PairedAddress != "":
		return "Printer: " + st.PairedAddress + " (idle)"
	default:
		return "Printer: none"
	}
}

func toggleTitle(st printer.ConnectionState) string {
	if st.Connected {
		return "Disconnect printer"
	}
	return "Connect printer"
}

// generateIcon draws a small receipt glyph: white paper with teal lines.
func generateIcon(size int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	white := color.RGBA{255, 255, 255, 255}
	teal := color.RGBA{0, 128, 128, 255}
	margin := size / 6

	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.SetRGBA(x, y, teal)
		}
	}

	for x := margin; x < size-margin; x++ {
		for y := 0; y < size-margin; y++ {
			img.SetRGBA(x, y, white)
		}
	}

	for y := margin + 1; y < size-margin-1; y += 3 {
		for x := margin + 2; x < size-margin-2; x++ {
			img.SetRGBA(x, y, teal)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
