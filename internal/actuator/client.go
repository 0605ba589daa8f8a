package actuator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/domain/alarm"
	"github.com/oshokin/perimeter-alarm/internal/version"
)

// ErrBadStatus is returned when a device answers with a non-2xx status.
var ErrBadStatus = errors.New("unexpected http status")

// Device addresses one HTTP-controlled device.
type Device struct {
	// ID names the device in logs.
	ID string
	// Endpoint is the host[:port] and protocol.
	Endpoint config.Endpoint
}

// BaseURL returns protocol://host.
func (d Device) BaseURL() string {
	protocol := d.Endpoint.Protocol
	if protocol == "" {
		protocol = config.DefaultProtocol
	}

	return protocol + "://" + d.Endpoint.Host
}

// Address returns host:port, defaulting the port from the protocol.
func (d Device) Address() string {
	host := d.Endpoint.Host
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}

	if strings.EqualFold(d.Endpoint.Protocol, "https") {
		return net.JoinHostPort(host, "443")
	}

	return net.JoinHostPort(host, "80")
}

// Client is the HTTP control-plane collaborator.
type Client struct {
	// devices talks to cameras and NVRs with digest authentication.
	devices *resty.Client
	// beacon talks to the status beacon with basic authentication.
	beacon *resty.Client
	// dialer probes reachability.
	dialer net.Dialer
}

// NewClient creates a client with the given credentials and per-call timeout.
func NewClient(creds config.Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	devices := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "text/plain").
		SetHeader("User-Agent", version.UserAgent())
	if creds.Username != "" {
		devices.SetDigestAuth(creds.Username, creds.Password)
	}

	beacon := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", version.UserAgent())
	if creds.BeaconUsername != "" {
		beacon.SetBasicAuth(creds.BeaconUsername, creds.BeaconPassword)
	}

	return &Client{
		devices: devices,
		beacon:  beacon,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

// SetState writes parameter=value through configManager.cgi.
// The parameter is sent verbatim since devices expect names like Alarm[0].SensorType.
func (c *Client) SetState(ctx context.Context, dev Device, parameter, value string) error {
	target := fmt.Sprintf(
		"%s/cgi-bin/configManager.cgi?action=setConfig&%s=%s",
		dev.BaseURL(),
		parameter,
		url.QueryEscape(value),
	)

	resp, err := c.devices.R().SetContext(ctx).Get(target)
	if err != nil {
		return fmt.Errorf("set %s on %s: %w", parameter, dev.ID, err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf(
			"set %s on %s: %w: %d %s",
			parameter,
			dev.ID,
			ErrBadStatus,
			resp.StatusCode(),
			strings.TrimSpace(resp.String()),
		)
	}

	return nil
}

// ProbeReachable reports whether a TCP connection to the device succeeds.
func (c *Client) ProbeReachable(ctx context.Context, dev Device) bool {
	conn, err := c.dialer.DialContext(ctx, "tcp", dev.Address())
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}

// Notify sends a beacon action.
func (c *Client) Notify(ctx context.Context, dev Device, action alarm.BeaconAction) error {
	resp, err := c.beacon.R().SetContext(ctx).Get(dev.BaseURL() + "/" + url.PathEscape(string(action)))
	if err != nil {
		return fmt.Errorf("notify %s: %w", action, err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("notify %s: %w: %d", action, ErrBadStatus, resp.StatusCode())
	}

	return nil
}
