package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/getsolo/solo/internal/logger"
)

// ImagesFileName is the name of the per-machine image override file
// inside the config directory.
const ImagesFileName = "images.yaml"

// ImageOverrides maps backend id to a vendor-keyed image table. It is
// the on-disk shape of images.yaml.
//
// Example:
//
//	vllm:
//	  nvidia: vllm/vllm-openai:v0.8.4
//	  cpu: getsolo/vllm-cpu
type ImageOverrides map[string]map[string]string

// ApplyOverridesFile loads images.yaml from the config directory, if
// present, and applies it to the catalog. When the file does not exist
// it is created with the current image tables so users have a template
// to edit.
func (c *Catalog) ApplyOverridesFile(configDir string) error {
	path := filepath.Join(configDir, ImagesFileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c.writeOverridesTemplate(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read image overrides: %w", err)
	}

	var overrides ImageOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse %s: %w", ImagesFileName, err)
	}

	c.applyOverrides(overrides)
	return nil
}

// applyOverrides patches descriptor image tables in place. Overrides
// for unknown backends or vendors are skipped with a warning rather
// than failing startup.
func (c *Catalog) applyOverrides(overrides ImageOverrides) {
	for backend, images := range overrides {
		d, ok := c.descriptors[backend]
		if !ok {
			logger.Warn("Image override for unknown backend %q ignored", backend)
			continue
		}
		for vendor, image := range images {
			if image == "" {
				continue
			}
			if _, known := d.ImageByVendor[vendor]; !known {
				logger.Warn("Image override %s/%s ignored: unknown vendor key", backend, vendor)
				continue
			}
			logger.Debug("Image override: %s/%s -> %s", backend, vendor, image)
			d.ImageByVendor[vendor] = image
		}
	}
}

// writeOverridesTemplate writes the current image tables as an editable
// images.yaml with an explanatory header.
func (c *Catalog) writeOverridesTemplate(path string) error {
	overrides := make(ImageOverrides, len(c.descriptors))
	for id, d := range c.descriptors {
		table := make(map[string]string, len(d.ImageByVendor))
		for vendor, image := range d.ImageByVendor {
			table[vendor] = image
		}
		overrides[id] = table
	}

	data, err := yaml.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal image overrides: %w", err)
	}

	header := `# Solo container image configuration
#
# Maps each backend to the container image launched per GPU vendor.
# The "cpu" entry is the fallback when no vendor entry matches the
# detected hardware.
#
#   <backend>:
#     nvidia: <image>
#     amd: <image>
#     apple: <image>
#     cpu: <image>
#
# Edit the entries to pin versions or point at a private registry.

`

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(header+string(data)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ImagesFileName, err)
	}
	return nil
}
