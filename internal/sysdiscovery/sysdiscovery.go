// Package sysdiscovery walks sysfs to map a USB bus/address pair to its
// hidraw and evdev nodes. It is not part of the UsbPort transfer contract
// (that stays as control/interrupt/bulk transfers over the claimed
// interface), but debug tooling (diag.Session.HidrawPath) wants to locate
// the raw hidraw/evdev node a given bus/address pair surfaces as, independent of
// which vendor family it belongs to.
package sysdiscovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// HidrawNodeForUSB finds the /dev/hidrawN path for a specific USB bus and
// device address, by walking sysfs up from each hidraw node looking for
// matching busnum/devnum files.
func HidrawNodeForUSB(bus, addr int) (string, error) {
	return findNodeForUSB("/sys/class/hidraw", "hidraw", "/dev", bus, addr)
}

// EvdevNodeForUSB finds the /dev/input/eventN path for a specific USB bus
// and device address.
func EvdevNodeForUSB(bus, addr int) (string, error) {
	return findNodeForUSB("/sys/class/input", "event", "/dev/input", bus, addr)
}

func findNodeForUSB(sysBase, prefix, devBase string, bus, addr int) (string, error) {
	entries, err := os.ReadDir(sysBase)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", sysBase, err)
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		devicePath := filepath.Join(sysBase, entry.Name(), "device")
		if matchesUSBDevice(devicePath, bus, addr) {
			return filepath.Join(devBase, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no %s* node found for usb bus %d addr %d", prefix, bus, addr)
}

// matchesUSBDevice walks up the sysfs tree from startPath looking for the
// ancestor USB device's busnum/devnum files.
func matchesUSBDevice(startPath string, bus, addr int) bool {
	realPath, err := filepath.EvalSymlinks(startPath)
	if err != nil {
		return false
	}

	dir := realPath
	for i := 0; i < 6; i++ {
		busFile := filepath.Join(dir, "busnum")
		devFile := filepath.Join(dir, "devnum")
		if fileExists(busFile) && fileExists(devFile) {
			gotBus, _ := readIntFile(busFile)
			gotAddr, _ := readIntFile(devFile)
			return gotBus == bus && gotAddr == addr
		}
		dir = filepath.Clean(filepath.Join(dir, ".."))
		if dir == "/" || dir == "." {
			break
		}
	}
	return false
}

func readIntFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
