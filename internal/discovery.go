package internal

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const discoveryService = "_ghostcanvas._tcp"

// ErrNoServerFound is returned when no relay answered on the local network.
var ErrNoServerFound = errors.New("no ghostcanvas server found on the local network")

// Advertise announces a relay listening on port over mDNS. Shut the returned
// server down to withdraw the announcement.
func Advertise(port int, joinPath string) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	service, err := mdns.NewMDNSService(host, discoveryService, "", "", port, nil, []string{"path=" + joinPath})
	if err != nil {
		return nil, fmt.Errorf("create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mDNS server: %w", err)
	}
	return server, nil
}

// Discover returns the websocket join URL of the first relay that answers
// within timeout.
func Discover(timeout time.Duration) (string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan string, 1)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for entry := range entries {
			if entry.AddrV4 == nil || entry.Port == 0 {
				continue
			}
			select {
			case found <- joinURLFromEntry(entry):
			default:
			}
		}
	}()

	params := mdns.DefaultParams(discoveryService)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-drained
	if err != nil {
		return "", fmt.Errorf("mDNS query: %w", err)
	}
	select {
	case addr := <-found:
		return addr, nil
	default:
		return "", ErrNoServerFound
	}
}

func joinURLFromEntry(entry *mdns.ServiceEntry) string {
	path := "/join"
	for _, field := range entry.InfoFields {
		if value, ok := strings.CutPrefix(field, "path="); ok && strings.HasPrefix(value, "/") {
			path = value
		}
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(entry.AddrV4.String(), strconv.Itoa(entry.Port)), path)
}
