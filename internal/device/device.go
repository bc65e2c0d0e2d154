package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"strconv"
	"strings"
	"time"
)

// CaptureFormat selects how frames are pulled from the device.
type CaptureFormat string

const (
	// CapturePNG uses "screencap -p". Slower on the device, smaller on the wire.
	CapturePNG CaptureFormat = "png"

	// CaptureRaw pulls the raw framebuffer dump.
	CaptureRaw CaptureFormat = "raw"
)

// Raw framebuffer pixel formats (android.graphics.PixelFormat).
const (
	pixelRGBA8888 = 1
	pixelRGBX8888 = 2
	pixelBGRA8888 = 5
)

// Device is a handle to one adb device. It captures frames and injects input.
//
// Thread Safety: methods may be called concurrently; each call is a separate
// adb invocation.
type Device struct {
	serial string
	runner Runner
	format CaptureFormat
}

// Serial returns the adb serial.
func (d *Device) Serial() string { return d.serial }

// Format returns the capture format.
func (d *Device) Format() CaptureFormat { return d.format }

// Capture takes a screenshot.
func (d *Device) Capture(ctx context.Context) (image.Image, error) {
	args := []string{"-s", d.serial, "exec-out", "screencap"}
	if d.format == CapturePNG {
		args = append(args, "-p")
	}
	out, err := d.runner.Run(ctx, args...)
	if err != nil {
		return nil, d.wrap("capture", err)
	}
	if d.format == CapturePNG {
		return decodePNG(out)
	}
	return decodeRaw(out)
}

// Tap injects a tap at (x, y).
func (d *Device) Tap(ctx context.Context, x, y int) error {
	_, err := d.runner.Run(ctx, "-s", d.serial, "shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	if err != nil {
		return d.wrap("tap", err)
	}
	return nil
}

// Swipe injects a touchscreen swipe lasting dur.
func (d *Device) Swipe(ctx context.Context, x1, y1, x2, y2 int, dur time.Duration) error {
	_, err := d.runner.Run(ctx, "-s", d.serial, "shell", "input", "touchscreen", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(dur.Milliseconds(), 10))
	if err != nil {
		return d.wrap("swipe", err)
	}
	return nil
}

// Probe checks the device answers shell commands.
func (d *Device) Probe(ctx context.Context) error {
	out, err := d.runner.Run(ctx, "-s", d.serial, "shell", "getprop", "sys.boot_completed")
	if err != nil {
		return d.wrap("probe", err)
	}
	if v := strings.TrimSpace(string(out)); v != "" && v != "1" {
		return fmt.Errorf("%w: %s has not finished booting", ErrDeviceOffline, d.serial)
	}
	return nil
}

func (d *Device) wrap(op string, err error) error {
	if isOffline(err) {
		return fmt.Errorf("%w: %s %s: %w", ErrDeviceOffline, op, d.serial, err)
	}
	return fmt.Errorf("%s %s: %w", op, d.serial, err)
}

func decodePNG(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty screencap output", ErrFrameDecode)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFrameDecode, err)
	}
	return img, nil
}

// decodeRaw parses "screencap" output: a little-endian header of width,
// height and pixel format, an optional 4-byte colour space on newer Android
// releases, then 4 bytes per pixel.
func decodeRaw(data []byte) (image.Image, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: raw header truncated (%d bytes)", ErrFrameDecode, len(data))
	}
	w := int(binary.LittleEndian.Uint32(data[0:4]))
	h := int(binary.LittleEndian.Uint32(data[4:8]))
	format := binary.LittleEndian.Uint32(data[8:12])
	if w <= 0 || h <= 0 || w > 1<<14 || h > 1<<14 {
		return nil, fmt.Errorf("%w: bad raw size %dx%d", ErrFrameDecode, w, h)
	}

	size := w * h * 4
	var body []byte
	switch {
	case len(data) >= 16+size && len(data)-16 == size:
		body = data[16:]
	case len(data) >= 12+size:
		body = data[12 : 12+size]
	default:
		return nil, fmt.Errorf("%w: raw body %d bytes, want %d", ErrFrameDecode, len(data)-12, size)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	switch format {
	case pixelRGBA8888:
		copy(img.Pix, body)
	case pixelRGBX8888:
		copy(img.Pix, body)
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
	case pixelBGRA8888:
		for i := 0; i < size; i += 4 {
			img.Pix[i] = body[i+2]
			img.Pix[i+1] = body[i+1]
			img.Pix[i+2] = body[i]
			img.Pix[i+3] = body[i+3]
		}
	default:
		return nil, fmt.Errorf("%w: unsupported pixel format %d", ErrFrameDecode, format)
	}
	return img, nil
}
