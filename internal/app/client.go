package app

import (
	"errors"
	"fmt"

	intrnl "ghostcanvas/internal"
)

// RunClient launches the Bubble Tea TUI with the provided configuration. With
// no server URL and Discover set, the first relay found over mDNS is used.
func RunClient(cfg ClientConfig) error {
	serverURL := cfg.ServerURL
	if serverURL == "" && cfg.Discover {
		found, err := intrnl.Discover(DefaultDiscoverTimeout)
		if err != nil {
			return fmt.Errorf("discover: %w", err)
		}
		serverURL = found
	}
	if serverURL == "" {
		return errors.New("server URL is required")
	}
	return intrnl.RunClient(serverURL, cfg.Nickname, NormalizeColor(cfg.Color))
}
