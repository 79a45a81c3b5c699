package mapengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/paulmach/orb"

	"property-map-search/models"
	"property-map-search/services"
	"property-map-search/utils"
)

// opTimeout bounds a single script evaluation on the map page.
const opTimeout = 10 * time.Second

// ChromeMap drives a Leaflet map page in headless Chrome. The page must expose
// window.searchMap with:
//
//	addMarker(id, lat, lng) -> handle
//	removeMarker(handle)
//	fitBounds(south, west, north, east)
//	flyTo(lat, lng)
//	showPopup(id), hidePopup()
//	setClustering(bool), setHeatmap(bool)
//	getBounds() -> {south, north, west, east}
//	drainEvents() -> {clicks: [id...], moved: bool}
type ChromeMap struct {
	logger *utils.Logger

	// mu serialises evaluations; the dispatcher loop and the event pump
	// share one tab.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// pageEvents is what drainEvents reports since the previous drain.
type pageEvents struct {
	Clicks []string `json:"clicks"`
	Moved  bool     `json:"moved"`
}

// EventSink receives user interaction from the map page.
type EventSink interface {
	OnViewportChange(ctx context.Context, b models.ViewportBounds) (models.Snapshot, error)
	OnMarkerClick(ctx context.Context, id string) (models.Snapshot, bool, error)
}

// NewChromeMap launches Chrome, opens pageURL and waits until the map object
// is present. Startup is retried per retry.
func NewChromeMap(ctx context.Context, pageURL, chromeBin string, retry *utils.RetryConfig, logger *utils.Logger) (*ChromeMap, error) {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[map] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.WindowSize(1280, 900),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)

	// Suppress chromedp log noise
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	cancel := func() {
		cancelTab()
		cancelAlloc()
	}

	err := retry.Do(ctx, "open-map-page", func() error {
		loadCtx, cancelLoad := context.WithTimeout(tabCtx, 60*time.Second)
		defer cancelLoad()

		var ready bool
		err := chromedp.Run(loadCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(`typeof window.searchMap === 'object' && window.searchMap !== null`, &ready),
		)
		if err != nil {
			return fmt.Errorf("chromedp navigate: %w", err)
		}
		if !ready {
			return fmt.Errorf("page %s does not expose window.searchMap", pageURL)
		}
		return nil
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mapengine: %w", err)
	}

	logger.Info("[map] Map page ready: %s", pageURL)
	return &ChromeMap{logger: logger, ctx: tabCtx, cancel: cancel}, nil
}

// Close shuts the tab and the browser down.
func (m *ChromeMap) Close() {
	m.cancel()
}

func (m *ChromeMap) eval(script string, res interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(m.ctx, opTimeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("mapengine: evaluate %.40q: %w", script, err)
	}
	return nil
}

func (m *ChromeMap) AddMarker(id string, pos orb.Point) (services.MarkerHandle, error) {
	var handle string
	if err := m.eval(addMarkerJS(id, pos), &handle); err != nil {
		return "", err
	}
	return services.MarkerHandle(handle), nil
}

func (m *ChromeMap) RemoveMarker(h services.MarkerHandle) error {
	return m.eval(callJS("removeMarker", string(h)), nil)
}

func (m *ChromeMap) FitBounds(b orb.Bound) error {
	return m.eval(fitBoundsJS(b), nil)
}

func (m *ChromeMap) FlyTo(pos orb.Point) error {
	return m.eval(callJS("flyTo", pos.Lat(), pos.Lon()), nil)
}

func (m *ChromeMap) ShowPopup(id string) error {
	return m.eval(callJS("showPopup", id), nil)
}

func (m *ChromeMap) HidePopup() error {
	return m.eval(callJS("hidePopup"), nil)
}

func (m *ChromeMap) SetClustering(enabled bool) error {
	return m.eval(callJS("setClustering", enabled), nil)
}

func (m *ChromeMap) SetHeatmap(enabled bool) error {
	return m.eval(callJS("setHeatmap", enabled), nil)
}

// ReadBounds returns the viewport currently shown by the page.
func (m *ChromeMap) ReadBounds() (models.ViewportBounds, error) {
	var b models.ViewportBounds
	if err := m.eval(`window.searchMap.getBounds()`, &b); err != nil {
		return models.ViewportBounds{}, err
	}
	return b, nil
}

// Pump polls the page for user interaction every interval and forwards it to
// sink until ctx is done.
func (m *ChromeMap) Pump(ctx context.Context, interval time.Duration, sink EventSink) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var ev pageEvents
		if err := m.eval(`window.searchMap.drainEvents()`, &ev); err != nil {
			m.logger.Warn("[map] Reading page events failed: %v", err)
			continue
		}
		forwardEvents(ctx, ev, m.ReadBounds, sink, m.logger)
	}
}

// forwardEvents applies one drained batch: the viewport first, then clicks
// in the order they happened.
func forwardEvents(ctx context.Context, ev pageEvents, readBounds func() (models.ViewportBounds, error), sink EventSink, logger *utils.Logger) {
	if ev.Moved {
		b, err := readBounds()
		if err != nil {
			logger.Warn("[map] Reading viewport failed: %v", err)
		} else if _, err := sink.OnViewportChange(ctx, b); err != nil {
			logger.Warn("[map] Viewport change rejected: %v", err)
		}
	}

	for _, id := range ev.Clicks {
		_, ok, err := sink.OnMarkerClick(ctx, id)
		switch {
		case err != nil:
			logger.Warn("[map] Marker click %s failed: %v", id, err)
		case !ok:
			logger.Debug("[map] Click on %s ignored; not in the filtered set", id)
		}
	}
}

// addMarkerJS always yields a string handle so Evaluate has a value to decode.
func addMarkerJS(id string, pos orb.Point) string {
	return "String(" + invokeJS("addMarker", id, pos.Lat(), pos.Lon()) + ")"
}

func fitBoundsJS(b orb.Bound) string {
	return callJS("fitBounds", b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon())
}

// callJS is invokeJS followed by a null so void calls evaluate to a
// decodable value.
func callJS(fn string, args ...interface{}) string {
	return "(" + invokeJS(fn, args...) + ", null)"
}

// invokeJS renders window.searchMap.<fn>(args...) with JSON-encoded arguments.
func invokeJS(fn string, args ...interface{}) string {
	s := "window.searchMap." + fn + "("
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += jsLiteral(a)
	}
	return s + ")"
}

func jsLiteral(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "null"
		}
		return string(b)
	}
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
