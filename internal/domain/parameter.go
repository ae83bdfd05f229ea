package domain

import "strings"

// DataKind describes what a parameter's cells hold.
type DataKind string

const (
	KindNumeric DataKind = "numeric"
	KindText    DataKind = "text"
)

// ParameterDefinition is immutable reference data owned by the record
// store; the engine only ever reads it.
type ParameterDefinition struct {
	ID       string
	Name     string
	Unit     string
	Category string
	// PlantUnit tags which production unit the parameter belongs to.
	// Used as the fallback unit lookup when a commit does not carry an
	// explicit unit.
	PlantUnit string
	DataKind  DataKind
	Min       *float64
	Max       *float64
	// MinByUnit/MaxByUnit override the bounds for specific plant units.
	MinByUnit map[string]float64
	MaxByUnit map[string]float64
}

// BoundsFor resolves the numeric range for the given plant unit,
// preferring the unit-specific override when one exists.
func (p *ParameterDefinition) BoundsFor(unit string) (min, max *float64) {
	min, max = p.Min, p.Max
	if v, ok := p.MinByUnit[unit]; ok {
		m := v
		min = &m
	}
	if v, ok := p.MaxByUnit[unit]; ok {
		m := v
		max = &m
	}
	return min, max
}

// MaterialComponent names one of the counter-feeder materials that make
// up total production.
type MaterialComponent string

const (
	MaterialClinker   MaterialComponent = "clinker"
	MaterialGypsum    MaterialComponent = "gypsum"
	MaterialLimestone MaterialComponent = "limestone"
	MaterialTrass     MaterialComponent = "trass"
	MaterialFlyAsh    MaterialComponent = "fly_ash"
	MaterialFineTrass MaterialComponent = "fine_trass"
	MaterialCKD       MaterialComponent = "ckd"
)

// MaterialComponents lists the seven components in reporting order.
var MaterialComponents = []MaterialComponent{
	MaterialClinker, MaterialGypsum, MaterialLimestone, MaterialTrass,
	MaterialFlyAsh, MaterialFineTrass, MaterialCKD,
}

// materialKeywords matches a component inside a counter-feeder
// parameter name. Order matters: "fine trass" must win over "trass".
var materialKeywords = []struct {
	component MaterialComponent
	keyword   string
}{
	{MaterialFineTrass, "fine trass"},
	{MaterialFlyAsh, "fly ash"},
	{MaterialClinker, "clinker"},
	{MaterialGypsum, "gypsum"},
	{MaterialLimestone, "limestone"},
	{MaterialTrass, "trass"},
	{MaterialCKD, "ckd"},
}

// IsCounterFeeder reports whether the parameter is a cumulative
// counter-feeder meter, where the per-shift quantity is a first/last
// delta rather than a sum.
func IsCounterFeeder(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "counter") && strings.Contains(n, "feeder")
}

// MaterialFor maps a counter-feeder parameter name to its material
// component. The second result is false when the name matches none.
func MaterialFor(name string) (MaterialComponent, bool) {
	if !IsCounterFeeder(name) {
		return "", false
	}
	n := strings.ToLower(name)
	for _, mk := range materialKeywords {
		if strings.Contains(n, mk.keyword) {
			return mk.component, true
		}
	}
	return "", false
}

// moistureMaterials are the materials whose H2O/setpoint readings feed
// the per-hour moisture figure.
var moistureMaterials = []MaterialComponent{
	MaterialGypsum, MaterialTrass, MaterialLimestone,
}

// MoistureMaterials returns the materials participating in the moisture
// sub-calculation, in a fixed order.
func MoistureMaterials() []MaterialComponent {
	out := make([]MaterialComponent, len(moistureMaterials))
	copy(out, moistureMaterials)
	return out
}

// IsH2OParameter reports whether the parameter carries an H2O percent
// reading for one of the moisture materials.
func IsH2OParameter(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "h2o")
}

// IsSetpointFeederParameter reports whether the parameter carries a
// feeder setpoint percent reading.
func IsSetpointFeederParameter(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "setpoint") && strings.Contains(n, "feeder")
}

// IsMoistureRelevant reports whether an edit to the parameter should
// trigger a production-capacity recompute.
func IsMoistureRelevant(name string) bool {
	return IsH2OParameter(name) || IsSetpointFeederParameter(name)
}

// moistureMaterialFor finds which moisture material a parameter name
// refers to, if any.
func moistureMaterialFor(name string) (MaterialComponent, bool) {
	n := strings.ToLower(name)
	for _, mk := range materialKeywords {
		if strings.Contains(n, mk.keyword) {
			for _, m := range moistureMaterials {
				if mk.component == m {
					return m, true
				}
			}
			return "", false
		}
	}
	return "", false
}

// MoisturePair identifies the two parameters needed for one material's
// moisture contribution.
type MoisturePair struct {
	Material   MaterialComponent
	H2OID      string
	SetpointID string
}

// BuildMoisturePairs pairs H2O and setpoint-feeder parameters by
// material. Materials missing either side are left out.
func BuildMoisturePairs(defs []*ParameterDefinition) []MoisturePair {
	h2o := make(map[MaterialComponent]string)
	setpoint := make(map[MaterialComponent]string)
	for _, def := range defs {
		mat, ok := moistureMaterialFor(def.Name)
		if !ok {
			continue
		}
		switch {
		case IsH2OParameter(def.Name):
			h2o[mat] = def.ID
		case IsSetpointFeederParameter(def.Name):
			setpoint[mat] = def.ID
		}
	}

	var pairs []MoisturePair
	for _, mat := range moistureMaterials {
		h, hasH := h2o[mat]
		s, hasS := setpoint[mat]
		if hasH && hasS {
			pairs = append(pairs, MoisturePair{Material: mat, H2OID: h, SetpointID: s})
		}
	}
	return pairs
}
