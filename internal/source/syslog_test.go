package source

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/testutil"
)

func TestParseSyslogHeader(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantPriority any
		wantFacility string
		wantSeverity string
		wantMessage  string
	}{
		{
			name:         "rfc3164 auth error",
			raw:          "<35>Oct 11 22:14:15 host su: auth failure",
			wantPriority: 35,
			wantFacility: "auth",
			wantSeverity: "err",
			wantMessage:  "Oct 11 22:14:15 host su: auth failure",
		},
		{
			name:         "kernel emergency",
			raw:          "<0>panic",
			wantPriority: 0,
			wantFacility: "kern",
			wantSeverity: "emerg",
			wantMessage:  "panic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := model.NewLogEvent("syslog", tt.raw)
			parseSyslogHeader(ev)

			assert.Equal(t, tt.wantPriority, ev.Fields["syslog_priority"])
			assert.Equal(t, tt.wantFacility, ev.Fields["syslog_facility_name"])
			assert.Equal(t, tt.wantSeverity, ev.Fields["syslog_severity_name"])
			assert.Equal(t, tt.wantMessage, ev.Fields["syslog_message"])
		})
	}
}

func TestParseSyslogHeader_NoHeader(t *testing.T) {
	ev := model.NewLogEvent("syslog", "plain message without priority")
	parseSyslogHeader(ev)
	assert.Empty(t, ev.Fields)
}

func TestSyslog_TCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewSyslogWithOptions("syslog", SyslogConfig{Protocol: "tcp"}, testutil.NewTestLogger(),
		WithTCPListenerFactory(func(network, address string) (net.Listener, error) {
			return listener, nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emit, events := collectEmit()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, emit) }()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("<13>line over tcp\n"))
	require.NoError(t, err)
	conn.Close()

	waitCount(t, events, 1)

	got := events()[0]
	assert.Equal(t, "<13>line over tcp", got.RawData)
	assert.Equal(t, "tcp", got.Metadata["protocol"])
	assert.NotEmpty(t, got.Metadata["remote_addr"])
	assert.Equal(t, "user", got.Fields["syslog_facility_name"])
	assert.Equal(t, "notice", got.Fields["syslog_severity_name"])

	cancel()
	<-done
}

func TestSyslog_UDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewSyslogWithOptions("syslog", SyslogConfig{Protocol: "udp"}, testutil.NewTestLogger(),
		WithUDPListenerFactory(func(network, address string) (net.PacketConn, error) {
			return conn, nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emit, events := collectEmit()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, emit) }()

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	_, err = client.Write([]byte("<34>datagram message"))
	require.NoError(t, err)
	client.Close()

	waitCount(t, events, 1)

	got := events()[0]
	assert.Equal(t, "<34>datagram message", got.RawData)
	assert.Equal(t, "udp", got.Metadata["protocol"])

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("udp source did not stop on cancel")
	}
}

func TestSyslog_ConfigValidation(t *testing.T) {
	_, err := NewSyslog("s", map[string]any{"protocol": "sctp"}, testutil.NewTestLogger())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported protocol")
}
