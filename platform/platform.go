// Package platform binds drivers to the devices a platform enumerates.
//
// Matching is done on compatible strings, the same way a device-tree bus
// matches an `of_device_id` table. A driver's Probe is called when a matching
// device appears and its Remove when the device or the driver goes away.
package platform

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrNoMatch is returned when no registered driver accepts a device.
var ErrNoMatch = errors.New("no matching driver")

// Device is the handle a bus passes to the driver bound to it.
type Device struct {
	Name       string
	Compatible []string

	// Properties carries backend-specific settings, such as the path of a
	// character device node.
	Properties map[string]string

	lock       sync.Mutex
	driverData any
}

// NewDevice creates a device with the given name and compatible strings.
func NewDevice(name string, compatible ...string) *Device {
	return &Device{
		Name:       name,
		Compatible: compatible,
		Properties: make(map[string]string),
	}
}

// Property returns a property, or def if it is not set.
func (d *Device) Property(key, def string) string {
	if v, ok := d.Properties[key]; ok {
		return v
	}

	return def
}

// SetDriverData attaches driver private state to the device.
func (d *Device) SetDriverData(v any) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.driverData = v
}

// DriverData returns the state attached with SetDriverData.
func (d *Device) DriverData() any {
	d.lock.Lock()
	defer d.lock.Unlock()

	return d.driverData
}

// Driver is implemented by anything that can be bound to a device.
type Driver interface {
	// Name identifies the driver in logs.
	Name() string

	// Compatible lists the compatible strings the driver accepts.
	Compatible() []string

	// Probe starts the driver on a device. A device whose probe fails stays
	// unbound.
	Probe(dev *Device) error

	// Remove stops the driver on a device it was bound to.
	Remove(dev *Device) error
}

// Matches tells whether a driver accepts a device.
func Matches(drv Driver, dev *Device) bool {
	for _, want := range drv.Compatible() {
		for _, have := range dev.Compatible {
			if want == have {
				return true
			}
		}
	}

	return false
}

// A Bus keeps track of devices and drivers and binds them together.
type Bus struct {
	lock    sync.Mutex
	log     *logrus.Logger
	drivers []Driver
	devices []*Device
	bound   map[*Device]Driver
}

// NewBus creates an empty bus.
func NewBus(l *logrus.Logger) *Bus {
	if l == nil {
		l = logrus.StandardLogger()
	}

	return &Bus{
		log:   l,
		bound: make(map[*Device]Driver),
	}
}

// RegisterDriver adds a driver and probes every unbound matching device.
// The driver stays registered even when probing fails.
func (b *Bus) RegisterDriver(drv Driver) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, d := range b.drivers {
		if d == drv {
			return fmt.Errorf("driver %s already registered", drv.Name())
		}
	}

	b.drivers = append(b.drivers, drv)

	var errs []error
	for _, dev := range b.devices {
		if _, ok := b.bound[dev]; ok || !Matches(drv, dev) {
			continue
		}

		if err := b.probe(drv, dev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// UnregisterDriver removes a driver after unbinding it from its devices.
func (b *Bus) UnregisterDriver(drv Driver) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, dev := range b.devices {
		if b.bound[dev] == drv {
			b.remove(drv, dev)
		}
	}

	for i, d := range b.drivers {
		if d == drv {
			b.drivers = append(b.drivers[:i], b.drivers[i+1:]...)
			break
		}
	}
}

// AddDevice adds a device and binds it to the first matching driver whose
// probe succeeds.
func (b *Bus) AddDevice(dev *Device) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.devices = append(b.devices, dev)

	var errs []error
	for _, drv := range b.drivers {
		if !Matches(drv, dev) {
			continue
		}

		err := b.probe(drv, dev)
		if err == nil {
			return nil
		}

		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return fmt.Errorf("device %s: %w", dev.Name, ErrNoMatch)
	}

	return errors.Join(errs...)
}

// RemoveDevice unbinds a device and forgets it.
func (b *Bus) RemoveDevice(dev *Device) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if drv, ok := b.bound[dev]; ok {
		b.remove(drv, dev)
	}

	for i, d := range b.devices {
		if d == dev {
			b.devices = append(b.devices[:i], b.devices[i+1:]...)
			break
		}
	}
}

// BoundDriver returns the driver bound to a device, or nil.
func (b *Bus) BoundDriver(dev *Device) Driver {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.bound[dev]
}

func (b *Bus) probe(drv Driver, dev *Device) error {
	b.log.WithFields(logrus.Fields{
		"driver": drv.Name(),
		"device": dev.Name,
	}).Info("probe")

	if err := drv.Probe(dev); err != nil {
		return fmt.Errorf("probe %s on %s: %w", drv.Name(), dev.Name, err)
	}

	b.bound[dev] = drv

	return nil
}

func (b *Bus) remove(drv Driver, dev *Device) {
	b.log.WithFields(logrus.Fields{
		"driver": drv.Name(),
		"device": dev.Name,
	}).Info("remove")

	if err := drv.Remove(dev); err != nil {
		b.log.WithError(err).WithField("device", dev.Name).Warn("remove failed")
	}

	delete(b.bound, dev)
}
