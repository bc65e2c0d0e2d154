package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"
)

// ─── Mock runner ────────────────────────────────────────────────────

type mockRunner struct {
	mu      sync.Mutex
	outputs map[string][]byte
	errs    map[string]error
	calls   []string
}

func newMockRunner() *mockRunner {
	return &mockRunner{outputs: map[string][]byte{}, errs: map[string]error{}}
}

func (m *mockRunner) on(cmd string, out string) *mockRunner {
	m.outputs[cmd] = []byte(out)
	return m
}

func (m *mockRunner) fail(cmd string, err error) *mockRunner {
	m.errs[cmd] = err
	return m
}

func (m *mockRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := strings.Join(args, " ")
	m.calls = append(m.calls, cmd)
	if err, ok := m.errs[cmd]; ok {
		return nil, err
	}
	if out, ok := m.outputs[cmd]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("%w: unexpected command %q", ErrCommandFailed, cmd)
}

func (m *mockRunner) called(cmd string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c == cmd {
			return true
		}
	}
	return false
}

// ─── adb devices / connect ──────────────────────────────────────────

func TestParseDevices(t *testing.T) {
	out := "* daemon not running; starting now at tcp:5037\n" +
		"* daemon started successfully\n" +
		"List of devices attached\n" +
		"127.0.0.1:16384\tdevice\n" +
		"emulator-5554\toffline\n" +
		"\n" +
		"R58M12ABCDE\tunauthorized\n"

	got := parseDevices([]byte(out))
	want := []Entry{
		{"127.0.0.1:16384", "device"},
		{"emulator-5554", "offline"},
		{"R58M12ABCDE", "unauthorized"},
	}
	if len(got) != len(want) {
		t.Fatalf("parseDevices() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if !got[0].Online() || got[1].Online() {
		t.Error("Online() mismatch")
	}
}

func TestConnect(t *testing.T) {
	r := newMockRunner().
		on("connect 127.0.0.1:7555", "connected to 127.0.0.1:7555\n").
		on("connect 127.0.0.1:5555", "cannot connect to 127.0.0.1:5555: Connection refused (111)\n")
	c := NewClient(r)

	if err := c.Connect(context.Background(), "127.0.0.1:7555"); err != nil {
		t.Errorf("Connect(7555) error = %v", err)
	}
	if err := c.Connect(context.Background(), "127.0.0.1:5555"); !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Connect(5555) error = %v, want ErrCommandFailed", err)
	}
}

func TestRestartServer(t *testing.T) {
	r := newMockRunner().on("kill-server", "").on("start-server", "")
	if err := NewClient(r).RestartServer(context.Background()); err != nil {
		t.Fatalf("RestartServer() error = %v", err)
	}
	if !r.called("kill-server") || !r.called("start-server") {
		t.Errorf("calls = %v", r.calls)
	}
}

// ─── Device input ───────────────────────────────────────────────────

func TestDevice_TapAndSwipe(t *testing.T) {
	r := newMockRunner().
		on("-s emu shell input tap 10 20", "").
		on("-s emu shell input touchscreen swipe 300 900 300 250 4500", "")
	dev, err := NewClient(r).Device("emu", CapturePNG)
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}

	if err := dev.Tap(context.Background(), 10, 20); err != nil {
		t.Errorf("Tap() error = %v", err)
	}
	if err := dev.Swipe(context.Background(), 300, 900, 300, 250, 4500*time.Millisecond); err != nil {
		t.Errorf("Swipe() error = %v", err)
	}
}

func TestDevice_Offline(t *testing.T) {
	r := newMockRunner().fail("-s gone shell input tap 1 1", errors.New("adb: device 'gone' not found"))
	dev, _ := NewClient(r).Device("gone", CapturePNG)

	if err := dev.Tap(context.Background(), 1, 1); !errors.Is(err, ErrDeviceOffline) {
		t.Errorf("Tap() error = %v, want ErrDeviceOffline", err)
	}
}

func TestDevice_Probe(t *testing.T) {
	r := newMockRunner().
		on("-s ok shell getprop sys.boot_completed", "1\n").
		on("-s booting shell getprop sys.boot_completed", "0\n")
	c := NewClient(r)

	ok, _ := c.Device("ok", CapturePNG)
	if err := ok.Probe(context.Background()); err != nil {
		t.Errorf("Probe(ok) error = %v", err)
	}
	booting, _ := c.Device("booting", CapturePNG)
	if err := booting.Probe(context.Background()); !errors.Is(err, ErrDeviceOffline) {
		t.Errorf("Probe(booting) error = %v, want ErrDeviceOffline", err)
	}
}

func TestClient_DeviceValidation(t *testing.T) {
	c := NewClient(newMockRunner())
	if _, err := c.Device("  ", CapturePNG); !errors.Is(err, ErrInvalidSerial) {
		t.Errorf("Device(blank) error = %v, want ErrInvalidSerial", err)
	}
	if _, err := c.Device("emu", "bmp"); err == nil {
		t.Error("Device(bmp) expected error")
	}
	dev, err := c.Device("emu", "")
	if err != nil || dev.Format() != CapturePNG || dev.Serial() != "emu" {
		t.Errorf("Device(default) = %+v, %v", dev, err)
	}
}

// ─── Capture ────────────────────────────────────────────────────────

func rawFrame(w, h int, format uint32, colorspace bool, fill func(i int) byte) []byte {
	var buf bytes.Buffer
	hdr := make([]byte, 12)
	binary.LittleEndian.PutUint32(hdr[0:], uint32(w))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(h))
	binary.LittleEndian.PutUint32(hdr[8:], format)
	buf.Write(hdr)
	if colorspace {
		buf.Write([]byte{1, 0, 0, 0})
	}
	for i := 0; i < w*h*4; i++ {
		buf.WriteByte(fill(i))
	}
	return buf.Bytes()
}

func TestDecodeRaw(t *testing.T) {
	pixel := func(i int) byte { return []byte{10, 20, 30, 40}[i%4] }

	tests := []struct {
		name       string
		format     uint32
		colorspace bool
		want       color.RGBA
	}{
		{"rgba", pixelRGBA8888, false, color.RGBA{10, 20, 30, 40}},
		{"rgba with colorspace", pixelRGBA8888, true, color.RGBA{10, 20, 30, 40}},
		{"rgbx", pixelRGBX8888, false, color.RGBA{10, 20, 30, 255}},
		{"bgra", pixelBGRA8888, false, color.RGBA{30, 20, 10, 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := decodeRaw(rawFrame(3, 2, tt.format, tt.colorspace, pixel))
			if err != nil {
				t.Fatalf("decodeRaw() error = %v", err)
			}
			if img.Bounds() != image.Rect(0, 0, 3, 2) {
				t.Errorf("Bounds() = %v", img.Bounds())
			}
			if got := img.(*image.RGBA).RGBAAt(2, 1); got != tt.want {
				t.Errorf("pixel = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeRaw_Errors(t *testing.T) {
	zero := func(int) byte { return 0 }
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{1, 2, 3}},
		{"truncated body", rawFrame(4, 4, pixelRGBA8888, false, zero)[:40]},
		{"zero size", rawFrame(0, 4, pixelRGBA8888, false, zero)},
		{"unknown format", rawFrame(2, 2, 99, false, zero)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodeRaw(tt.data); !errors.Is(err, ErrFrameDecode) {
				t.Errorf("decodeRaw() error = %v, want ErrFrameDecode", err)
			}
		})
	}
}

func TestDevice_CapturePNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(1, 1, color.RGBA{200, 100, 50, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	r := newMockRunner().
		on("-s emu exec-out screencap -p", buf.String()).
		on("-s bad exec-out screencap -p", "garbage")
	c := NewClient(r)

	dev, _ := c.Device("emu", CapturePNG)
	img, err := dev.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 3 {
		t.Errorf("Bounds() = %v", img.Bounds())
	}

	bad, _ := c.Device("bad", CapturePNG)
	if _, err := bad.Capture(context.Background()); !errors.Is(err, ErrFrameDecode) {
		t.Errorf("Capture(garbage) error = %v, want ErrFrameDecode", err)
	}
}

func TestDevice_CaptureRaw(t *testing.T) {
	frame := rawFrame(2, 2, pixelRGBA8888, true, func(int) byte { return 7 })
	r := newMockRunner().on("-s emu exec-out screencap", string(frame))

	dev, _ := NewClient(r).Device("emu", CaptureRaw)
	img, err := dev.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if img.Bounds().Dx() != 2 {
		t.Errorf("Bounds() = %v", img.Bounds())
	}
}

// ─── Identification & discovery ─────────────────────────────────────

func TestIdentify(t *testing.T) {
	tests := []struct {
		props Props
		want  Kind
	}{
		{Props{Model: "MuMu12"}, KindMuMu12},
		{Props{Brand: "MuMu"}, KindMuMu},
		{Props{Manufacturer: "MuMu"}, KindMuMu},
		{Props{Model: "LDPlayer"}, KindLDPlayer},
		{Props{Model: "HUAWEI ALN-AL10"}, KindHuawei},
		{Props{Model: "Samsung SM-S9110"}, KindSamsung},
		{Props{Brand: "samsung", Model: "SM-G9910"}, KindSamsung},
		{Props{Model: "Xiaomi 12s"}, KindXiaomi},
		{Props{Model: "Pixel 7"}, KindUnknown},
	}
	for _, tt := range tests {
		if got := Identify(tt.props); got != tt.want {
			t.Errorf("Identify(%+v) = %q, want %q", tt.props, got, tt.want)
		}
	}
}

func probeOutputs(r *mockRunner, serial string, model, brand string) {
	r.on("-s "+serial+" shell getprop ro.product.model", model+"\n")
	r.on("-s "+serial+" shell getprop ro.product.brand", brand+"\n")
	r.on("-s "+serial+" shell getprop ro.product.manufacturer", brand+"\n")
	r.on("-s "+serial+" shell getprop ro.product.name", "cepheus\n")
	r.on("-s "+serial+" shell getprop ro.build.version.release", "12\n")
}

func TestDiscover(t *testing.T) {
	r := newMockRunner().
		on("devices", "List of devices attached\n127.0.0.1:16384\tdevice\nemulator-5554\toffline\n").
		on("connect 127.0.0.1:16384", "connected to 127.0.0.1:16384").
		fail("connect 127.0.0.1:7555", errors.New("refused"))
	probeOutputs(r, "127.0.0.1:16384", "MuMu12", "netease")

	d := NewDiscoverer(NewClient(r), "", []int{16384, 7555})
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	found, err := d.Discover(context.Background(), true)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found = %+v, want 2", found)
	}
	mumu := found[0]
	if mumu.Kind != KindMuMu12 || mumu.Model != "MuMu12" || mumu.Android != "12" || !mumu.Online {
		t.Errorf("found[0] = %+v", mumu)
	}
	if !mumu.LastSeen.Equal(fixed) {
		t.Errorf("LastSeen = %v, want %v", mumu.LastSeen, fixed)
	}
	if found[1].Online || found[1].Kind != KindUnknown {
		t.Errorf("offline entry = %+v, want unknown and offline", found[1])
	}
	if !r.called("connect 127.0.0.1:7555") {
		t.Error("common port 7555 was not tried")
	}
}

func TestNewDiscoverer_Defaults(t *testing.T) {
	d := NewDiscoverer(NewClient(newMockRunner()), "", nil)
	if d.host != "127.0.0.1" || len(d.ports) != len(CommonPorts) {
		t.Errorf("defaults = %s %v", d.host, d.ports)
	}
}
