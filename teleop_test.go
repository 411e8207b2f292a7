package hiwin_arm

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

func TestDecodeJogKey(t *testing.T) {
	tests := []struct {
		line string
		want r3.Vector
		ok   bool
	}{
		{"X", r3.Vector{X: 50}, true},
		{"x\r", r3.Vector{X: -50}, true},
		{" Y ", r3.Vector{Y: 50}, true},
		{"y", r3.Vector{Y: -50}, true},
		{"Z", r3.Vector{Z: 50}, true},
		{"z", r3.Vector{Z: -50}, true},
		{"Q", r3.Vector{}, false},
		{"", r3.Vector{}, false},
		{"XX", r3.Vector{}, false},
	}
	for _, tt := range tests {
		got, ok := DecodeJogKey(tt.line, DefaultJogStep)
		assert.Equal(t, tt.ok, ok, "%q", tt.line)
		assert.Equal(t, tt.want, got, "%q", tt.line)
	}
}

func TestEncodePoseFrame(t *testing.T) {
	frame := EncodePoseFrame(CartesianHome)
	assert.Equal(t, []byte{
		0x01,
		0x00, 0x00,
		0x01, 0x70,
		0x01, 0x26,
		0x00, 0xb4,
		0x00, 0x00,
		0x00, 0x5a,
		0xff,
	}, frame)

	frame = EncodePoseFrame(PositionVector{2.5, 3.5, -1, -2.5, 0.49, 1000.6})
	assert.Equal(t, []byte{
		0x01,
		0x00, 0x02,
		0x00, 0x04,
		0xff, 0xff,
		0xff, 0xfe,
		0x00, 0x00,
		0x03, 0xe9,
		0xff,
	}, frame)
}

type fakeJogger struct {
	mu   sync.Mutex
	jogs []r3.Vector
	err  error
	pose PositionVector
}

func (j *fakeJogger) Jog(ctx context.Context, delta r3.Vector) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.jogs = append(j.jogs, delta)
	return nil
}

func (j *fakeJogger) Position(space PositionType) (PositionVector, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.pose, nil
}

func (j *fakeJogger) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.jogs)
}

// fakePort feeds queued input and records writes. Reads time out like a serial
// port with a read timeout.
type fakePort struct {
	mu      sync.Mutex
	input   bytes.Buffer
	written bytes.Buffer
	closed  bool
}

func (p *fakePort) feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input.WriteString(s)
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.EOF
	}
	if p.input.Len() > 0 {
		defer p.mu.Unlock()
		return p.input.Read(b)
	}
	p.mu.Unlock()
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

func TestTeleopHandleLine(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	t.Run("rate limit drops bursts", func(t *testing.T) {
		jogger := &fakeJogger{}
		bridge := NewTeleopBridge(TeleopConfig{Port: "/dev/null", MaxJogsPerSec: 1}, jogger, nil, logger)

		require.NoError(t, bridge.HandleLine(ctx, "X"))
		require.NoError(t, bridge.HandleLine(ctx, "Y"))
		require.NoError(t, bridge.HandleLine(ctx, "?"))

		assert.Equal(t, []r3.Vector{{X: DefaultJogStep}}, jogger.jogs)
		stats := bridge.Stats()
		assert.Equal(t, int64(1), stats["jogs"])
		assert.Equal(t, int64(1), stats["dropped"])
		assert.Equal(t, int64(1), stats["unknown"])
	})

	t.Run("failed jog is reported", func(t *testing.T) {
		jogger := &fakeJogger{err: ErrNotConnected}
		bridge := NewTeleopBridge(TeleopConfig{Port: "/dev/null", Step: 5}, jogger, nil, logger)

		err := bridge.HandleLine(ctx, "z")
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, int64(1), bridge.Stats()["failed"])
	})

	t.Run("pose needs an open port", func(t *testing.T) {
		bridge := NewTeleopBridge(TeleopConfig{Port: "/dev/null"}, &fakeJogger{}, nil, logger)
		assert.Error(t, bridge.SendPose())
	})
}

func TestTeleopBridgeRun(t *testing.T) {
	logger := logging.NewTestLogger(t)
	port := &fakePort{}
	var mu sync.Mutex
	attempts := 0
	open := func(name string, baud int) (io.ReadWriteCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		assert.Equal(t, DefaultTeleopBaud, baud)
		if attempts == 1 {
			return nil, errors.New("port busy")
		}
		return port, nil
	}

	jogger := &fakeJogger{pose: CartesianHome}
	cfg := TeleopConfig{Port: "/dev/rfcomm0", MaxJogsPerSec: 1000, PoseIntervalMs: 5}
	bridge := NewTeleopBridge(cfg, jogger, open, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	port.feed("X\r\n")
	require.Eventually(t, func() bool { return jogger.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	port.feed("z\n")
	require.Eventually(t, func() bool { return jogger.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []r3.Vector{{X: 50}, {Z: -50}}, jogger.jogs)

	require.Eventually(t, func() bool {
		return bytes.Contains(port.writtenBytes(), EncodePoseFrame(CartesianHome))
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
	assert.Equal(t, false, bridge.Stats()["port_open"])
}

func TestTeleopDiscardsRunawayLine(t *testing.T) {
	logger := logging.NewTestLogger(t)
	port := &fakePort{}
	jogger := &fakeJogger{}
	bridge := NewTeleopBridge(TeleopConfig{Port: "/dev/rfcomm0", MaxJogsPerSec: 1000}, jogger,
		func(string, int) (io.ReadWriteCloser, error) { return port, nil }, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	port.feed(strings.Repeat("a", maxLineLength+44))
	require.Eventually(t, func() bool { return bridge.Stats()["overruns"] == int64(1) }, 2*time.Second, 5*time.Millisecond)

	port.feed("Y\n")
	require.Eventually(t, func() bool { return jogger.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), bridge.Stats()["unknown"])
}

func TestTeleopConfigValidate(t *testing.T) {
	_, _, err := (&TeleopConfig{Simulate: true}).Validate("teleop")
	assert.Error(t, err)

	_, _, err = (&TeleopConfig{Port: "/dev/rfcomm0"}).Validate("teleop")
	assert.Error(t, err)

	cfg := &TeleopConfig{Port: "/dev/rfcomm0", Simulate: true}
	_, _, err = cfg.Validate("teleop")
	require.NoError(t, err)
	assert.Equal(t, DefaultTeleopBaud, cfg.BaudRate)
	assert.Equal(t, DefaultJogStep, cfg.Step)

	_, _, err = (&TeleopConfig{Port: "p", Simulate: true, Step: -1}).Validate("teleop")
	assert.Error(t, err)
}

func TestTeleopResource(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	registry := NewSessionRegistry(func(cfg *Config) (Gateway, error) {
		return NewSimGateway(SimOptions{NativeRelative: map[PositionType]bool{Cartesian: true}}), nil
	})
	port := &fakePort{}
	open := func(string, int) (io.ReadWriteCloser, error) { return port, nil }

	conf := &TeleopConfig{Port: "/dev/rfcomm0", Simulate: true, Host: "teleop"}
	_, _, err := conf.Validate("teleop")
	require.NoError(t, err)

	res, err := NewHiwinTeleop(ctx, registry, resource.NewName(generic.API, "keypad"), conf, open, logger)
	require.NoError(t, err)

	out, err := res.DoCommand(ctx, map[string]interface{}{"command": "jog", "key": "Y"})
	require.NoError(t, err)
	assert.Equal(t, true, out["success"])

	_, err = res.DoCommand(ctx, map[string]interface{}{"command": "jog"})
	assert.Error(t, err)

	stats, err := res.DoCommand(ctx, map[string]interface{}{"command": "status"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["jogs"])

	refs, exists, _ := registry.Status(conf.sessionConfig().Address())
	assert.True(t, exists)
	assert.Equal(t, int64(1), refs)

	require.NoError(t, res.Close(ctx))
	_, exists, _ = registry.Status(conf.sessionConfig().Address())
	assert.False(t, exists)
}
