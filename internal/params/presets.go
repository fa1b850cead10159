package params

func floatSpec(name, units string, min, max, value *float64) Spec {
	return Spec{Name: name, Datatype: DatatypeFloat, Units: units, Min: min, Max: max, Value: value}
}

func intSpec(name, units string, min, max, value *float64) Spec {
	return Spec{Name: name, Datatype: DatatypeInt, Units: units, Min: min, Max: max, Value: value}
}

// Default returns the schema with its default bounds and values. Several
// habitability and sampling values are unset and must be supplied by the
// caller before a run can survive past the habitability stage.
func Default() *Set {
	return &Set{
		Cosmological: Cosmological{
			HubbleConstant:       floatSpec("Hubble Constant", "km/s/Mpc", Ptr(60), Ptr(75), Ptr(70)),
			CosmologicalConstant: floatSpec("Cosmological Constant", "1/s²", Ptr(1e-56), Ptr(1e-52), Ptr(1e-54)),
			BaryonToPhotonRatio:  floatSpec("Baryon-to-photon ratio", "dimensionless", Ptr(1e-10), Ptr(1e-9), Ptr(6e-10)),
		},
		Stellar: Stellar{
			Metallicity: floatSpec("Stellar metallicity", "fraction", Ptr(0.0001), Ptr(0.03), Ptr(0.014)),
			Mass:        floatSpec("Stellar mass", "Msun", Ptr(0.1), Ptr(100), Ptr(1)),
		},
		Planetary: Planetary{
			Mass:         floatSpec("Planet mass", "Mearth", Ptr(0.1), Ptr(10), Ptr(1)),
			Distance:     floatSpec("Planet distance", "AU", Ptr(0.1), Ptr(10), Ptr(1)),
			Multiplicity: intSpec("Planetary system multiplicity", "count", Ptr(1), Ptr(20), Ptr(1)),
		},
		Habitability: Habitability{
			LiquidWaterZone: floatSpec("Liquid water zone range", "AU", nil, nil, nil),
			StellarUVFlux:   floatSpec("Stellar UV flux range", "W/m²", nil, nil, nil),
			TidalLocking:    floatSpec("Tidal locking probability", "probability", Ptr(0), Ptr(1), Ptr(0.5)),
		},
		Prebiotic: Prebiotic{
			SynthesisProbability:  floatSpec("Prebiotic synthesis success probability", "probability", Ptr(0.001), Ptr(1), Ptr(0.5)),
			CatalysisEfficiency:   floatSpec("UV catalysis efficiency", "probability", Ptr(0), Ptr(1), Ptr(0.5)),
			PolymerizationFailure: floatSpec("Polymerization failure rate", "probability", Ptr(0), Ptr(1), Ptr(0.1)),
		},
		Evolutionary: Evolutionary{
			ComplexityThreshold: intSpec("Evolutionary complexity threshold", "dimensionless", Ptr(1), Ptr(10), Ptr(5)),
			FragilityMultiplier: floatSpec("Evolutionary fragility multiplier", "multiplier", Ptr(0), Ptr(1), Ptr(0.5)),
			ExtinctionFrequency: floatSpec("Mass extinction frequency", "events per 100 Myr", nil, nil, nil),
		},
		Sampling: Sampling{
			DepthLimit:        intSpec("Recursive depth limit", "count", nil, nil, Ptr(1)),
			SensitivityWindow: floatSpec("Survival corridor sensitivity window", "unitless", nil, nil, nil),
		},
	}
}

// Earth returns best-estimate values for the contemporary Earth system.
func Earth() *Set {
	s := Default()

	s.Habitability.LiquidWaterZone.Min = Ptr(0.95)
	s.Habitability.LiquidWaterZone.Max = Ptr(1.37)
	s.Habitability.LiquidWaterZone.Value = Ptr(1.0)
	s.Habitability.StellarUVFlux.Value = Ptr(1361)
	s.Habitability.TidalLocking.Value = Ptr(0)

	s.Prebiotic.SynthesisProbability.Value = Ptr(0.7)
	s.Prebiotic.CatalysisEfficiency.Value = Ptr(0.6)
	s.Prebiotic.PolymerizationFailure.Value = Ptr(0.1)

	s.Evolutionary.ComplexityThreshold.Value = Ptr(5)
	s.Evolutionary.FragilityMultiplier.Value = Ptr(0.4)
	s.Evolutionary.ExtinctionFrequency.Value = Ptr(0.5)

	s.Sampling.DepthLimit.Value = Ptr(10)
	s.Sampling.SensitivityWindow.Value = Ptr(0.1)

	return s
}

// Preset returns a named preset ("default" or "earth").
func Preset(name string) (*Set, bool) {
	switch name {
	case "", "default":
		return Default(), true
	case "earth":
		return Earth(), true
	default:
		return nil, false
	}
}
