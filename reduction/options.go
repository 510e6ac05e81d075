package reduction

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/reduction-engine/generic"
)

// =============================================================================
// OPTION REGISTRY - Per-month overrides
// =============================================================================

// OptionKey names a per-month override.
type OptionKey string

// OptionOvertimeHours adds hours to the month's SMIC reference.
const OptionOvertimeHours OptionKey = "heures_supplementaires"

// OptionDefinition validates an override value and binds it into the
// situation of the month.
type OptionDefinition struct {
	Key         OptionKey
	Description string
	Validate    func(v decimal.Decimal) error
	Bind        func(s generic.Situation, v decimal.Decimal)
}

var optionRegistry = map[OptionKey]OptionDefinition{
	OptionOvertimeHours: {
		Key:         OptionOvertimeHours,
		Description: "overtime and additional hours worked in the month",
		Validate: func(v decimal.Decimal) error {
			if v.IsNegative() {
				return fmt.Errorf("hours must be non-negative")
			}
			return nil
		},
		Bind: func(s generic.Situation, v decimal.Decimal) { s[InputOvertimeHours] = v },
	},
}

// LookupOption returns the definition for key.
func LookupOption(key string) (OptionDefinition, error) {
	def, ok := optionRegistry[OptionKey(key)]
	if !ok {
		return OptionDefinition{}, &generic.UnknownOptionError{Key: key}
	}
	return def, nil
}

// ListOptions returns every definition ordered by key.
func ListOptions() []OptionDefinition {
	out := make([]OptionDefinition, 0, len(optionRegistry))
	for _, def := range optionRegistry {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ValidateOption checks key and value without touching any state.
func ValidateOption(key string, value decimal.Decimal) (OptionKey, error) {
	def, err := LookupOption(key)
	if err != nil {
		return "", err
	}
	if err := def.Validate(value); err != nil {
		return "", &generic.InvalidInputError{Field: key, Reason: err.Error()}
	}
	return def.Key, nil
}

// =============================================================================
// OPTIONS - The overrides of one month
// =============================================================================

// Options holds validated overrides. The zero value is usable.
type Options map[OptionKey]decimal.Decimal

func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Keys returns the set keys in order.
func (o Options) Keys() []OptionKey {
	keys := make([]OptionKey, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// OvertimeHours is the overtime override, zero when unset.
func (o Options) OvertimeHours() decimal.Decimal {
	return o[OptionOvertimeHours]
}

// bind writes every override into the situation.
func (o Options) bind(s generic.Situation) {
	for _, k := range o.Keys() {
		optionRegistry[k].Bind(s, o[k])
	}
}

// OptionsFromMap validates a persisted option map.
func OptionsFromMap(m map[string]decimal.Decimal) (Options, error) {
	out := make(Options, len(m))
	for k, v := range m {
		key, err := ValidateOption(k, v)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// ToMap returns the persisted form of the overrides.
func (o Options) ToMap() map[string]decimal.Decimal {
	if len(o) == 0 {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(o))
	for k, v := range o {
		out[string(k)] = v
	}
	return out
}
