package cpu

type microArchitecture int

const (
	archUnknown microArchitecture = iota
	archAirmont
	archAlderLake
	archAtom
	archBroadwell
	archCannonLake
	archCometLake
	archCore
	archGoldmont
	archGoldmontPlus
	archHaswell
	archIceLake
	archIvyBridge
	archJasperLake
	archKabyLake
	archNehalem
	archNetBurst
	archRocketLake
	archSandyBridge
	archSilvermont
	archSkylake
	archTigerLake
	archTremont
)

var archNames = map[microArchitecture]string{
	archUnknown: "Unknown", archAirmont: "Airmont", archAlderLake: "AlderLake", archAtom: "Atom",
	archBroadwell: "Broadwell", archCannonLake: "CannonLake", archCometLake: "CometLake", archCore: "Core",
	archGoldmont: "Goldmont", archGoldmontPlus: "GoldmontPlus", archHaswell: "Haswell", archIceLake: "IceLake",
	archIvyBridge: "IvyBridge", archJasperLake: "JasperLake", archKabyLake: "KabyLake", archNehalem: "Nehalem",
	archNetBurst: "NetBurst", archRocketLake: "RocketLake", archSandyBridge: "SandyBridge",
	archSilvermont: "Silvermont", archSkylake: "Skylake", archTigerLake: "TigerLake", archTremont: "Tremont",
}

func (a microArchitecture) String() string {
	return archNames[a]
}

// fixedTjMax is the TjMax of architectures that do not expose
// IA32_TEMPERATURE_TARGET. Zero means read it from the register.
func classify(family, model, stepping int) (arch microArchitecture, fixedTjMax float64) {
	switch family {
	case 0x06:
		switch model {
		case 0x0F:
			if stepping == 0x0B {
				return archCore, 100
			}
			return archCore, 95
		case 0x17:
			return archCore, 100
		case 0x1C:
			if stepping == 0x0A {
				return archAtom, 100
			}
			return archAtom, 90
		case 0x1A, 0x1E, 0x1F, 0x25, 0x2C, 0x2E, 0x2F:
			return archNehalem, 0
		case 0x2A, 0x2D:
			return archSandyBridge, 0
		case 0x3A, 0x3E:
			return archIvyBridge, 0
		case 0x3C, 0x3F, 0x45, 0x46:
			return archHaswell, 0
		case 0x3D, 0x47, 0x4F, 0x56:
			return archBroadwell, 0
		case 0x36:
			return archAtom, 0
		case 0x37, 0x4A, 0x4D, 0x5A, 0x5D:
			return archSilvermont, 0
		case 0x4E, 0x5E, 0x55:
			return archSkylake, 0
		case 0x4C:
			return archAirmont, 0
		case 0x8E, 0x9E:
			return archKabyLake, 0
		case 0x5C, 0x5F:
			return archGoldmont, 0
		case 0x7A:
			return archGoldmontPlus, 0
		case 0x66:
			return archCannonLake, 0
		case 0x7D, 0x7E, 0x6A, 0x6C:
			return archIceLake, 0
		case 0xA5, 0xA6:
			return archCometLake, 0
		case 0x86:
			return archTremont, 0
		case 0x8C, 0x8D:
			return archTigerLake, 0
		case 0x97, 0x9A:
			return archAlderLake, 0
		case 0x9C:
			return archJasperLake, 0
		case 0xA7:
			return archRocketLake, 0
		}
	case 0x0F:
		switch model {
		case 0x00, 0x01, 0x02, 0x03, 0x04, 0x06:
			return archNetBurst, 100
		}
	}

	return archUnknown, 100
}

// legacyMultiplier reports whether the bus multiplier lives in
// IA32_PERF_STATUS rather than MSR_PLATFORM_INFO.
func (a microArchitecture) legacyMultiplier() bool {
	switch a {
	case archAtom, archCore, archNetBurst:
		return true
	}
	return false
}

// hasRapl reports support for the running-average power limit counters.
func (a microArchitecture) hasRapl() bool {
	switch a {
	case archUnknown, archAtom, archCore, archNetBurst, archNehalem:
		return false
	}
	return true
}
