package registry

// ToggleState is the tri-state every per-call middleware override takes:
// unset defers to the global config's enabled flag, on enables with
// (optionally merged) settings, off disables unconditionally regardless
// of config.
type ToggleState int

const (
	ToggleUnset ToggleState = iota
	ToggleOn
	ToggleOff
)

// Toggle is one middleware's per-call override. The zero value is
// ToggleUnset — "defer to config" — so callers that don't touch a field
// on LoadOptions get exactly the global config's behavior.
type Toggle struct {
	State    ToggleState
	Settings map[string]any
}

// On builds a Toggle that force-enables a module, optionally merging
// settings over whatever the global config has for it.
func On(settings map[string]any) Toggle { return Toggle{State: ToggleOn, Settings: settings} }

// Off builds a Toggle that force-disables a module regardless of config.
func Off() Toggle { return Toggle{State: ToggleOff} }

// resolved reports whether the module should be wrapped, and the
// effective settings map to use: config's own settings, merged over by
// any ToggleOn settings, with a ToggleOff short-circuiting to false and
// a ToggleUnset falling through to configEnabled.
func (t Toggle) resolved(configEnabled bool, configSettings map[string]any) (bool, map[string]any) {
	switch t.State {
	case ToggleOff:
		return false, nil
	case ToggleOn:
		return true, mergeSettings(configSettings, t.Settings)
	default:
		return configEnabled, configSettings
	}
}

func mergeSettings(base, overlay map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
