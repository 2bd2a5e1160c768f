package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/hfpag/pkg/cli"
	"github.com/haivivi/hfpag/pkg/headset"
)

// defaultListen is used when neither a flag nor the context names an
// address.
const defaultListen = "127.0.0.1:7723"

// daemonSettings is the merged view of the context and the run flags.
type daemonSettings struct {
	Adapter          string
	Channel          int
	MaxConnections   int
	InbandRinging    bool
	Listen           string
	DataDir          string
	Operator         string
	SubscriberNumber string
}

// resolveSettings applies ctx over the defaults, then every flag of cmd
// that was set explicitly.
func resolveSettings(cmd *cobra.Command, ctx *cli.Context) (daemonSettings, error) {
	d := headset.DefaultConfig()
	s := daemonSettings{
		Adapter:          ctx.Adapter,
		Channel:          ctx.Channel,
		MaxConnections:   ctx.MaxConnections,
		InbandRinging:    d.InbandRingingSupported,
		Listen:           ctx.Listen,
		DataDir:          ctx.DataDir,
		Operator:         ctx.Operator,
		SubscriberNumber: ctx.SubscriberNumber,
	}
	if ctx.InbandRinging != nil {
		s.InbandRinging = *ctx.InbandRinging
	}

	flags := cmd.Flags()
	var err error
	if flags.Changed("adapter") {
		if s.Adapter, err = flags.GetString("adapter"); err != nil {
			return s, err
		}
	}
	if flags.Changed("channel") {
		if s.Channel, err = flags.GetInt("channel"); err != nil {
			return s, err
		}
	}
	if flags.Changed("max-connections") {
		if s.MaxConnections, err = flags.GetInt("max-connections"); err != nil {
			return s, err
		}
	}
	if flags.Changed("inband-ringing") {
		if s.InbandRinging, err = flags.GetBool("inband-ringing"); err != nil {
			return s, err
		}
	}
	if flags.Changed("listen") {
		if s.Listen, err = flags.GetString("listen"); err != nil {
			return s, err
		}
	}
	if flags.Changed("data-dir") {
		if s.DataDir, err = flags.GetString("data-dir"); err != nil {
			return s, err
		}
	}
	if flags.Changed("operator") {
		if s.Operator, err = flags.GetString("operator"); err != nil {
			return s, err
		}
	}
	if flags.Changed("number") {
		if s.SubscriberNumber, err = flags.GetString("number"); err != nil {
			return s, err
		}
	}

	if s.MaxConnections == 0 {
		s.MaxConnections = d.MaxConnections
	}
	if s.MaxConnections < headset.MinConnections || s.MaxConnections > headset.MaxConnections {
		return s, fmt.Errorf("max connections %d out of range [%d, %d]",
			s.MaxConnections, headset.MinConnections, headset.MaxConnections)
	}
	if s.Channel < 0 || s.Channel > 30 {
		return s, fmt.Errorf("rfcomm channel %d out of range [1, 30]", s.Channel)
	}
	if s.Listen == "" {
		s.Listen = defaultListen
	}
	return s, nil
}

// serverURL returns the base URL of a running daemon: the --server flag,
// then the context's server, then its listen address.
func serverURL(cmd *cobra.Command, ctx *cli.Context) (*url.URL, error) {
	addr, _ := cmd.Flags().GetString("server")
	if addr == "" {
		addr = ctx.Server
	}
	if addr == "" {
		addr = ctx.Listen
	}
	if addr == "" {
		addr = defaultListen
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

// eventsURL is the WebSocket endpoint of the event hub under base.
func eventsURL(base *url.URL) string {
	u := *base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/events"
	return u.String()
}
