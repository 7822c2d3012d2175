package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultSysfsRoot = "/sys/bus/usb/devices"

// ReaderProbe reports whether the configured USB card reader is attached.
type ReaderProbe struct {
	Detected  bool
	VendorID  string
	ProductID string
	Path      string
	Product   string
}

// ProbeReader scans sysfs for a USB device with the given vendor and product.
func ProbeReader(root, vendorID, productID string) ReaderProbe {
	probe := ReaderProbe{
		VendorID:  strings.ToLower(strings.TrimSpace(vendorID)),
		ProductID: strings.ToLower(strings.TrimSpace(productID)),
	}
	if probe.VendorID == "" || probe.ProductID == "" {
		return probe
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return probe
	}
	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		if strings.ToLower(readAttr(dir, "idVendor")) != probe.VendorID || strings.ToLower(readAttr(dir, "idProduct")) != probe.ProductID {
			continue
		}
		probe.Detected = true
		probe.Path = dir
		probe.Product = readAttr(dir, "product")
		return probe
	}
	return probe
}

func readAttr(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Detail renders a display-friendly summary for status UIs.
func (p ReaderProbe) Detail() string {
	if !p.Detected {
		return fmt.Sprintf("No reader %s:%s attached", p.VendorID, p.ProductID)
	}
	if p.Product != "" {
		return fmt.Sprintf("%s (%s:%s)", p.Product, p.VendorID, p.ProductID)
	}
	return fmt.Sprintf("%s:%s at %s", p.VendorID, p.ProductID, filepath.Base(p.Path))
}
