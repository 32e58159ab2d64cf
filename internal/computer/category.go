package computer

import (
	"strings"

	"codeberg.org/mutker/hwcontrol/internal/hardware"
	"codeberg.org/mutker/hwcontrol/internal/hardware/cpu"
	"codeberg.org/mutker/hwcontrol/internal/hardware/dell"
	"codeberg.org/mutker/hwcontrol/internal/hardware/gpu"
	"codeberg.org/mutker/hwcontrol/internal/hardware/memory"
	"codeberg.org/mutker/hwcontrol/internal/hardware/motherboard"
	"codeberg.org/mutker/hwcontrol/internal/logger"
	"codeberg.org/mutker/hwcontrol/internal/ring0"
)

// Category is a class of hardware that can be enabled independently.
type Category int

const (
	CategoryMotherboard Category = iota
	CategoryCPU
	CategoryMemory
	CategoryGPU
	CategoryController
)

// Categories lists every category in the order groups are added.
var Categories = []Category{CategoryMotherboard, CategoryCPU, CategoryMemory, CategoryGPU, CategoryController}

var categoryNames = [...]string{"Motherboard", "CPU", "Memory", "GPU", "Controller"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "Unknown"
	}
	return categoryNames[c]
}

// ParseCategory accepts the category name in any case.
func ParseCategory(s string) (Category, bool) {
	for i, name := range categoryNames {
		if strings.EqualFold(name, s) {
			return Category(i), true
		}
	}
	return 0, false
}

// Env is what a group factory may use while constructing its backends.
type Env struct {
	Access ring0.Access
	DMI    DMI
	Log    logger.Logger
}

// Factory builds one hardware group. An error means the group is absent
// on this machine.
type Factory func(env Env) (hardware.Group, error)

func defaultFactories() map[Category][]Factory {
	return map[Category][]Factory{
		CategoryMotherboard: {func(env Env) (hardware.Group, error) {
			return motherboard.NewGroup(env.DMI.Board(), env.Log), nil
		}},
		CategoryCPU: {func(env Env) (hardware.Group, error) {
			return cpu.NewGroup(env.Access, env.Log)
		}},
		CategoryMemory: {func(env Env) (hardware.Group, error) {
			return memory.NewGroup(env.Log), nil
		}},
		CategoryGPU: {func(env Env) (hardware.Group, error) {
			return gpu.NewGroup(env.Log)
		}},
		CategoryController: {func(env Env) (hardware.Group, error) {
			return dell.NewGroup(env.DMI.System(), env.Log), nil
		}},
	}
}
