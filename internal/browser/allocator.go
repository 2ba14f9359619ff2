package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/claimgate/internal/config"
)

const (
	defaultWidth  = 1366
	defaultHeight = 900
)

// flag is one Chrome command-line switch. Value is either a bool or a string.
type flag struct {
	Name  string
	Value interface{}
}

// allocatorFlags lists the switches passed to Chrome for cfg, in order.
func allocatorFlags(cfg config.BrowserConfig) []flag {
	flags := []flag{
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"no-sandbox", true},
		{"disable-gpu", true},
		{"disable-dev-shm-usage", true},
		{"disable-background-networking", true},
		{"disable-popup-blocking", true},
		{"mute-audio", true},
	}
	if cfg.Headless {
		flags = append(flags, flag{"headless", true}, flag{"hide-scrollbars", true})
	}
	if cfg.UserAgent != "" {
		flags = append(flags, flag{"user-agent", cfg.UserAgent})
	}

	width, height := defaultWidth, defaultHeight
	if w, ok := cfg.Viewport["width"]; ok && w > 0 {
		width = w
	}
	if h, ok := cfg.Viewport["height"]; ok && h > 0 {
		height = h
	}
	flags = append(flags, flag{"window-size", formatSize(width, height)})

	// Custom args come last so they can override anything above.
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags = append(flags, flag{key, value})
		} else {
			flags = append(flags, flag{key, true})
		}
	}
	return flags
}

// DefaultAllocatorOptions converts the browser configuration into exec
// allocator options for chromedp.NewExecAllocator.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	flags := allocatorFlags(cfg)
	opts := make([]chromedp.ExecAllocatorOption, 0, len(flags)+1)
	for _, f := range flags {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func formatSize(w, h int) string {
	return fmt.Sprintf("%d,%d", w, h)
}
