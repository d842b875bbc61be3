package probe

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// sysfsPowerPath is the base path for power supply status.
const sysfsPowerPath = "/sys/class/power_supply"

// Power reports whether the host runs on external power.
type Power struct {
	root string
}

// NewPower creates a power probe reading the kernel power supply class.
func NewPower() *Power {
	return &Power{root: sysfsPowerPath}
}

// OnExternalPower returns true if a mains or USB supply is online, or if the
// host has no battery at all. Hosts without a readable power supply class
// are treated as powered.
func (p *Power) OnExternalPower() bool {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		slog.Debug("Power supply status unavailable", "error", err)
		return true
	}

	hasBattery := false
	for _, entry := range entries {
		supplyType, err := p.readAttr(entry.Name(), "type")
		if err != nil {
			continue
		}

		switch supplyType {
		case "Mains", "USB":
			if online, err := p.readAttr(entry.Name(), "online"); err == nil && online == "1" {
				return true
			}
		case "Battery":
			hasBattery = true
		}
	}

	return !hasBattery
}

// readAttr reads a single supply attribute.
// The path is validated to ensure it stays within the probe root.
func (p *Power) readAttr(supply, attr string) (string, error) {
	root := filepath.Clean(p.root)
	cleanPath := filepath.Clean(filepath.Join(root, supply, attr))
	if !strings.HasPrefix(cleanPath, root+string(filepath.Separator)) {
		return "", errors.New("invalid power supply path: outside sysfs power directory")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path validated above
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
