package collect

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/ecoaudit/internal/orchestrator"
	"github.com/dgnsrekt/ecoaudit/internal/snapshot"
	"github.com/dgnsrekt/ecoaudit/internal/trace"
)

// Screenshot captures the page under light and dark color schemes. Dark
// mode is considered available when the two images differ.
type Screenshot struct {
	browser Browser
	store   ScreenshotStore
	panel   Panel
}

func (c *Screenshot) ID() trace.CollectorID { return trace.CollectScreenshot }

func (c *Screenshot) Collect(ctx context.Context, target orchestrator.Target) (trace.Block, error) {
	return withPage(ctx, c.browser, trace.CollectScreenshot, target, nil, func(page Page) (trace.Block, error) {
		light, err := captureScheme(ctx, page, "light")
		if err != nil {
			return nil, err
		}
		dark, err := captureScheme(ctx, page, "dark")
		if err != nil {
			return nil, err
		}

		img, err := decodePNG(light)
		if err != nil {
			return nil, err
		}
		out := &trace.ScreenshotTraces{
			Width:       img.Bounds().Dx(),
			Height:      img.Bounds().Dy(),
			HasDarkMode: !bytes.Equal(light, dark),
			PowerWatts:  c.panel.Power(img),
		}

		if c.store != nil {
			out.LightID = c.save(target.URL, "light", light, out.Width, out.Height, out.PowerWatts)
			if out.HasDarkMode {
				darkPower := out.PowerWatts
				if darkImg, err := decodePNG(dark); err == nil {
					darkPower = c.panel.Power(darkImg)
				}
				out.DarkID = c.save(target.URL, "dark", dark, out.Width, out.Height, darkPower)
			}
		}
		slog.Debug("Screenshots collected", "url", target.URL, "dark_mode", out.HasDarkMode, "power_watts", out.PowerWatts)
		return out, nil
	})
}

func captureScheme(ctx context.Context, page Page, scheme string) ([]byte, error) {
	if err := page.EmulateColorScheme(ctx, scheme); err != nil {
		return nil, fmt.Errorf("failed to emulate %s color scheme: %w", scheme, err)
	}
	return page.Screenshot(ctx)
}

// save stores one artifact and returns its id, or "" when storing failed.
func (c *Screenshot) save(pageURL, scheme string, data []byte, w, h int, power float64) string {
	meta, err := c.store.Save(snapshot.ScreenshotMeta{
		URL:        pageURL,
		Scheme:     scheme,
		Format:     "png",
		Width:      w,
		Height:     h,
		PowerWatts: power,
	}, data)
	if err != nil {
		slog.Warn("Failed to store screenshot", "url", pageURL, "scheme", scheme, "error", err)
		return ""
	}
	return meta.ID
}
