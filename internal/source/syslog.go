package source

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSource("syslog", NewSyslog)
}

// UDPListenerFactory creates a UDP connection.
type UDPListenerFactory func(network, address string) (net.PacketConn, error)

// TCPListenerFactory creates a TCP listener.
type TCPListenerFactory func(network, address string) (net.Listener, error)

// SyslogConfig configures the syslog source.
type SyslogConfig struct {
	Protocol string `mapstructure:"protocol"` // "udp" or "tcp"
	Address  string `mapstructure:"address"`
}

// Syslog receives syslog messages over UDP or TCP and parses the RFC 3164
// priority header into fields.
type Syslog struct {
	name string
	cfg  SyslogConfig
	log  logger.ILogger

	udpFactory UDPListenerFactory
	tcpFactory TCPListenerFactory
}

// SyslogOption configures the Syslog source.
type SyslogOption func(*Syslog)

// WithUDPListenerFactory sets a custom UDP listener factory (for testing).
func WithUDPListenerFactory(f UDPListenerFactory) SyslogOption {
	return func(s *Syslog) { s.udpFactory = f }
}

// WithTCPListenerFactory sets a custom TCP listener factory (for testing).
func WithTCPListenerFactory(f TCPListenerFactory) SyslogOption {
	return func(s *Syslog) { s.tcpFactory = f }
}

// NewSyslog creates a syslog source from its opaque config mapping.
func NewSyslog(name string, cfg map[string]any, log logger.ILogger) (plugin.Source, error) {
	c := SyslogConfig{Protocol: "udp", Address: ":514"}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("syslog source %q: %w", name, err)
	}
	switch strings.ToLower(c.Protocol) {
	case "udp", "tcp":
	default:
		return nil, plugin.Configf("syslog source %q: unsupported protocol %q", name, c.Protocol)
	}
	return NewSyslogWithOptions(name, c, log), nil
}

// NewSyslogWithOptions creates a syslog source with explicit options.
func NewSyslogWithOptions(name string, cfg SyslogConfig, log logger.ILogger, opts ...SyslogOption) *Syslog {
	s := &Syslog{
		name: name,
		cfg:  cfg,
		log:  log.SubLogger("SyslogSource"),
	}

	s.udpFactory = func(network, address string) (net.PacketConn, error) {
		addr, err := net.ResolveUDPAddr(network, address)
		if err != nil {
			return nil, err
		}
		return net.ListenUDP(network, addr)
	}
	s.tcpFactory = net.Listen

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the instance name.
func (s *Syslog) Name() string { return s.name }

// Open is a no-op; the listener is bound in Run so a stopped source can be
// restarted.
func (s *Syslog) Open(ctx context.Context) error { return nil }

// Close is a no-op; Run owns the listener.
func (s *Syslog) Close(ctx context.Context) error { return nil }

// Run listens for syslog messages until the context is cancelled.
func (s *Syslog) Run(ctx context.Context, emit plugin.EmitFunc) error {
	switch strings.ToLower(s.cfg.Protocol) {
	case "tcp":
		return s.runTCP(ctx, emit)
	default:
		return s.runUDP(ctx, emit)
	}
}

func (s *Syslog) runUDP(ctx context.Context, emit plugin.EmitFunc) error {
	conn, err := s.udpFactory("udp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on UDP: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, remoteAddr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		ev := model.NewLogEvent(s.name, string(buf[:n]))
		ev.Metadata["protocol"] = "udp"
		ev.Metadata["remote_addr"] = remoteAddr.String()
		parseSyslogHeader(ev)

		if err := emit(ctx, ev); err != nil {
			return err
		}
	}
}

func (s *Syslog) runTCP(ctx context.Context, emit plugin.EmitFunc) error {
	listener, err := s.tcpFactory("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on TCP: %w", err)
	}
	defer listener.Close()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		go s.handleConn(ctx, conn, emit)
	}
}

func (s *Syslog) handleConn(ctx context.Context, conn net.Conn, emit plugin.EmitFunc) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := model.NewLogEvent(s.name, scanner.Text())
		ev.Metadata["protocol"] = "tcp"
		ev.Metadata["remote_addr"] = remoteAddr
		parseSyslogHeader(ev)

		if err := emit(ctx, ev); err != nil {
			return
		}
	}
}

// parseSyslogHeader extracts priority, facility and severity from RFC 3164
// and RFC 5424 style messages.
func parseSyslogHeader(ev *model.LogEvent) {
	raw := ev.RawData
	if len(raw) == 0 || raw[0] != '<' {
		return
	}

	end := strings.Index(raw, ">")
	if end < 2 || end > 4 {
		return
	}

	var priority int
	if _, err := fmt.Sscanf(raw[1:end], "%d", &priority); err != nil {
		return
	}

	facility := priority / 8
	severity := priority % 8

	ev.Fields["syslog_priority"] = priority
	ev.Fields["syslog_facility"] = facility
	ev.Fields["syslog_severity"] = severity
	ev.Fields["syslog_facility_name"] = facilityName(facility)
	ev.Fields["syslog_severity_name"] = severityName(severity)
	ev.Fields["syslog_message"] = strings.TrimSpace(raw[end+1:])
}

func facilityName(facility int) string {
	names := []string{
		"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
		"uucp", "cron", "authpriv", "ftp", "ntp", "audit", "alert", "clock",
		"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
	}
	if facility >= 0 && facility < len(names) {
		return names[facility]
	}
	return "unknown"
}

func severityName(severity int) string {
	names := []string{
		"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
	}
	if severity >= 0 && severity < len(names) {
		return names[severity]
	}
	return "unknown"
}
