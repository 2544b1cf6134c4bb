// Package platform describes the target the IR lowerer emits for: pointer
// width and target triple. It is the only environment input the lowering
// core accepts.
package platform

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Descriptor is the platform-dependent configuration the TypeMapper and
// IntrinsicEmitter need: the width of pointer-sized integers and the
// target triple written into the module header.
type Descriptor struct {
	PointerBits int    `yaml:"pointer_bits"`
	Triple      string `yaml:"triple"`
}

// PointerIRType returns the IR integer type backing isys/usys/saddr/uaddr.
func (d Descriptor) PointerIRType() string {
	if d.PointerBits == 32 {
		return "i32"
	}
	return "i64"
}

// Default64 is the platform descriptor used when no config file is given:
// a 64-bit little-endian target.
var Default64 = Descriptor{PointerBits: 64, Triple: "x86_64-unknown-linux-gnu"}

// Load reads a platform descriptor from a YAML file. Missing fields fall
// back to Default64's values.
func Load(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("reading platform descriptor: %w", err)
	}

	d := Default64
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parsing platform descriptor %s: %w", path, err)
	}
	if d.PointerBits != 32 && d.PointerBits != 64 {
		return Descriptor{}, fmt.Errorf("platform descriptor %s: unsupported pointer_bits %d", path, d.PointerBits)
	}
	return d, nil
}
