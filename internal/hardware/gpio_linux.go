//go:build linux

package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"oven_controller/internal/models"
)

const (
	gpioConsumer      = "oven"
	defaultChip       = "gpiochip0"
	defaultSPIDevice  = "/dev/spidev0.0"
	defaultSPISpeedHz = 1_000_000

	// spidev ioctl requests, _IOW('k', n, size).
	spiIOCWrMode       = 0x40016b01
	spiIOCWrMaxSpeedHz = 0x40046b04

	// Relays are normally open: a low line energizes the device.
	relayOn  = 0
	relayOff = 1
)

// GPIOBackend drives the relays through the GPIO character device and reads
// a MAX6675 thermocouple converter over spidev with a GPIO chip-select.
type GPIOBackend struct {
	mu      sync.Mutex
	chip    *gpiocdev.Chip
	cooling *gpiocdev.Line
	fan     *gpiocdev.Line
	light   *gpiocdev.Line
	top     *gpiocdev.Line
	bottom  *gpiocdev.Line
	back    *gpiocdev.Line
	cs      *gpiocdev.Line
	spiFD   int
}

var _ Backend = (*GPIOBackend)(nil)

// NewGPIOBackend requests every line as an output with the relay released,
// so the oven starts with everything off.
func NewGPIOBackend(cfg GPIOConfig) (*GPIOBackend, error) {
	if cfg.Chip == "" {
		cfg.Chip = defaultChip
	}
	if cfg.SPIDevice == "" {
		cfg.SPIDevice = defaultSPIDevice
	}
	if cfg.SPISpeedHz == 0 {
		cfg.SPISpeedHz = defaultSPISpeedHz
	}

	chip, err := gpiocdev.NewChip(cfg.Chip, gpiocdev.WithConsumer(gpioConsumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %q: %w", cfg.Chip, err)
	}
	b := &GPIOBackend{chip: chip, spiFD: -1}

	outputs := []struct {
		dst  **gpiocdev.Line
		pin  int
		name string
	}{
		{&b.cooling, cfg.Pins.Cooling, "cooling"},
		{&b.fan, cfg.Pins.Fan, "fan"},
		{&b.light, cfg.Pins.Light, "light"},
		{&b.top, cfg.Pins.Top, "top"},
		{&b.bottom, cfg.Pins.Bottom, "bottom"},
		{&b.back, cfg.Pins.Back, "back"},
		{&b.cs, cfg.Pins.ChipSelect, "chip select"},
	}
	for _, o := range outputs {
		l, err := chip.RequestLine(o.pin, gpiocdev.AsOutput(relayOff))
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", o.name, o.pin, err)
		}
		*o.dst = l
	}

	fd, err := openSPI(cfg.SPIDevice, cfg.SPISpeedHz)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.spiFD = fd
	return b, nil
}

func openSPI(path string, speedHz uint32) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("open spi device %q: %w", path, err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIOCWrMode, 0); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set spi mode: %w", err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIOCWrMaxSpeedHz, int(speedHz)); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set spi speed: %w", err)
	}
	return fd, nil
}

func (b *GPIOBackend) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.cs.SetValue(0); err != nil {
		return 0, fmt.Errorf("%w: assert chip select: %v", ErrSensorFault, err)
	}
	frame := make([]byte, 2)
	n, rerr := unix.Read(b.spiFD, frame)
	if err := b.cs.SetValue(1); err != nil && rerr == nil {
		rerr = err
	}
	if rerr != nil {
		return 0, fmt.Errorf("%w: spi read: %v", ErrSensorFault, rerr)
	}
	return decodeMAX6675(frame[:n])
}

func (b *GPIOBackend) Actuators() (models.Actuators, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var a models.Actuators
	for _, r := range []struct {
		line *gpiocdev.Line
		dst  *bool
	}{
		{b.cooling, &a.Cooling},
		{b.fan, &a.Fan},
		{b.light, &a.Light},
		{b.top, &a.Top},
		{b.bottom, &a.Bottom},
		{b.back, &a.Back},
	} {
		v, err := r.line.Value()
		if err != nil {
			return models.Actuators{}, fmt.Errorf("read line %d: %w", r.line.Offset(), err)
		}
		*r.dst = v == relayOn
	}
	return a, nil
}

func (b *GPIOBackend) Apply(a models.Actuators) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.applyLocked(a)
}

func (b *GPIOBackend) applyLocked(a models.Actuators) error {
	for _, w := range []struct {
		line *gpiocdev.Line
		on   bool
	}{
		{b.cooling, a.Cooling},
		{b.fan, a.Fan},
		{b.light, a.Light},
		{b.top, a.Top},
		{b.bottom, a.Bottom},
		{b.back, a.Back},
	} {
		if w.line == nil {
			continue
		}
		v := relayOff
		if w.on {
			v = relayOn
		}
		if err := w.line.SetValue(v); err != nil {
			return fmt.Errorf("set line %d: %w", w.line.Offset(), err)
		}
	}
	return nil
}

// Close releases every relay, then the lines, the SPI device and the chip.
func (b *GPIOBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if err := b.applyLocked(models.Actuators{}); err != nil {
		errs = append(errs, fmt.Errorf("release relays: %w", err))
	}
	for _, l := range []*gpiocdev.Line{b.cooling, b.fan, b.light, b.top, b.bottom, b.back, b.cs} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l.Offset(), err))
		}
	}
	if b.spiFD >= 0 {
		if err := unix.Close(b.spiFD); err != nil {
			errs = append(errs, fmt.Errorf("close spi: %w", err))
		}
		b.spiFD = -1
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
