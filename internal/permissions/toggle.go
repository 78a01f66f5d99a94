package permissions

// toggle applies the override editor's toggle to one sparse map and returns
// the resulting map. An unset key becomes the negation of base. A set key is
// removed when its negation equals base, and flipped otherwise, so the map
// only holds values that differ from base at write time.
func toggle[K comparable](overrides map[K]bool, key K, base bool) map[K]bool {
	out := cloneMap(overrides)
	if out == nil {
		out = make(map[K]bool)
	}
	current, ok := out[key]
	switch {
	case !ok:
		out[key] = !base
	case !current == base:
		delete(out, key)
	default:
		out[key] = !current
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ToggleSidebar returns o with the sidebar override for key toggled.
func ToggleSidebar(o Overrides, key SidebarKey, base bool) Overrides {
	out := o.Clone()
	out.Sidebar = toggle(o.Sidebar, key, base)
	return out
}

// ToggleRule returns o with the rule override for key toggled.
func ToggleRule(o Overrides, key RuleKey, base bool) Overrides {
	out := o.Clone()
	out.Rules = toggle(o.Rules, key, base)
	return out
}
