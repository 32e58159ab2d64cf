package cpu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
)

const vendorIntel = "GenuineIntel"

// Package is one physical processor as seen through /proc/cpuinfo.
type Package struct {
	Index      int
	Vendor     string
	Name       string
	Family     int
	Model      int
	Stepping   int
	NominalMHz float64
	Flags      map[string]bool
	// Cores lists the logical CPU numbers of each core, ordered by core id.
	Cores [][]int
}

// Threads returns every logical CPU of the package.
func (p Package) Threads() []int {
	var out []int
	for _, c := range p.Cores {
		out = append(out, c...)
	}

	return out
}

// Affinity is the logical CPU used to read per-core registers of core i.
func (p Package) Affinity(core int) int {
	if core < 0 || core >= len(p.Cores) || len(p.Cores[core]) == 0 {
		return 0
	}
	return p.Cores[core][0]
}

var nominalFrequency = regexp.MustCompile(`@\s*([0-9.]+)\s*GHz`)

// packages groups logical processors by physical id and core id.
func packages(infos []cpu.InfoStat) []Package {
	type coreKey struct {
		pkg  string
		core string
	}

	byPkg := make(map[string]*Package)
	cores := make(map[coreKey][]int)
	var order []string

	for _, info := range infos {
		pkg, ok := byPkg[info.PhysicalID]
		if !ok {
			family, _ := strconv.Atoi(info.Family)
			model, _ := strconv.Atoi(info.Model)
			pkg = &Package{
				Vendor:     info.VendorID,
				Name:       cleanName(info.ModelName),
				Family:     family,
				Model:      model,
				Stepping:   int(info.Stepping),
				NominalMHz: nominalMHz(info),
				Flags:      make(map[string]bool, len(info.Flags)),
			}
			for _, f := range info.Flags {
				pkg.Flags[f] = true
			}
			byPkg[info.PhysicalID] = pkg
			order = append(order, info.PhysicalID)
		}
		k := coreKey{pkg: info.PhysicalID, core: info.CoreID}
		cores[k] = append(cores[k], int(info.CPU))
	}

	sort.Slice(order, func(i, j int) bool { return lessNumeric(order[i], order[j]) })

	out := make([]Package, 0, len(order))
	for i, id := range order {
		pkg := byPkg[id]
		pkg.Index = i

		var coreIDs []string
		for k := range cores {
			if k.pkg == id {
				coreIDs = append(coreIDs, k.core)
			}
		}
		sort.Slice(coreIDs, func(a, b int) bool { return lessNumeric(coreIDs[a], coreIDs[b]) })
		for _, c := range coreIDs {
			threads := cores[coreKey{pkg: id, core: c}]
			sort.Ints(threads)
			pkg.Cores = append(pkg.Cores, threads)
		}
		out = append(out, *pkg)
	}

	return out
}

func lessNumeric(a, b string) bool {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}

func nominalMHz(info cpu.InfoStat) float64 {
	if m := nominalFrequency.FindStringSubmatch(info.ModelName); m != nil {
		if ghz, err := strconv.ParseFloat(m[1], 64); err == nil {
			return ghz * 1000
		}
	}
	return info.Mhz
}

func cleanName(name string) string {
	name = strings.ReplaceAll(name, "(R)", "")
	name = strings.ReplaceAll(name, "(TM)", "")
	name = strings.ReplaceAll(name, "(tm)", "")
	name = strings.ReplaceAll(name, " CPU", "")
	if i := strings.Index(name, "@"); i > 0 {
		name = name[:i]
	}

	return strings.Join(strings.Fields(name), " ")
}
