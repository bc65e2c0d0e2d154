package device

import (
	"context"
	"net"
	"strconv"
	"time"
)

// CommonPorts are the TCP ports popular emulators expose adb on.
var CommonPorts = []int{5555, 5556, 5557, 5558, 7555, 62001, 62025, 62026, 16384, 16416}

// Discoverer finds attached devices and identifies them.
type Discoverer struct {
	client *Client
	host   string
	ports  []int
	now    func() time.Time
	logger Logger
}

// NewDiscoverer creates a discoverer. Empty ports fall back to CommonPorts.
func NewDiscoverer(client *Client, host string, ports []int) *Discoverer {
	if host == "" {
		host = "127.0.0.1"
	}
	if len(ports) == 0 {
		ports = CommonPorts
	}
	return &Discoverer{client: client, host: host, ports: ports, now: time.Now, logger: noopLogger{}}
}

// SetLogger sets the logger for the discoverer.
func (d *Discoverer) SetLogger(logger Logger) {
	d.logger = logger
}

// ConnectCommon tries "adb connect" on every common port and returns the
// addresses that connected. Failures are expected for ports with nothing
// listening and are only logged at debug level.
func (d *Discoverer) ConnectCommon(ctx context.Context) []string {
	var connected []string
	for _, port := range d.ports {
		if ctx.Err() != nil {
			break
		}
		addr := net.JoinHostPort(d.host, strconv.Itoa(port))
		if err := d.client.Connect(ctx, addr); err != nil {
			d.logger.Debug("emulator port not answering", "addr", addr, "error", err)
			continue
		}
		d.logger.Info("connected emulator port", "addr", addr)
		connected = append(connected, addr)
	}
	return connected
}

// Discover lists attached devices and probes each online one.
// With connect set, common emulator ports are tried first.
func (d *Discoverer) Discover(ctx context.Context, connect bool) ([]Emulator, error) {
	if connect {
		d.ConnectCommon(ctx)
	}
	entries, err := d.client.Devices(ctx)
	if err != nil {
		return nil, err
	}

	now := d.now().UTC()
	out := make([]Emulator, 0, len(entries))
	for _, e := range entries {
		em := Emulator{Serial: e.Serial, Kind: KindUnknown, Online: e.Online(), LastSeen: now}
		if e.Online() {
			props := d.probe(ctx, e.Serial)
			em.Model, em.Brand, em.Name, em.Android = props.Model, props.Brand, props.Name, props.Android
			em.Kind = Identify(props)
		}
		out = append(out, em)
	}
	return out, nil
}

func (d *Discoverer) probe(ctx context.Context, serial string) Props {
	get := func(prop string) string {
		v, err := d.client.Getprop(ctx, serial, prop)
		if err != nil {
			d.logger.Warn("getprop failed", "serial", serial, "prop", prop, "error", err)
			return ""
		}
		return v
	}
	return Props{
		Model:        get("ro.product.model"),
		Brand:        get("ro.product.brand"),
		Manufacturer: get("ro.product.manufacturer"),
		Name:         get("ro.product.name"),
		Android:      get("ro.build.version.release"),
	}
}
