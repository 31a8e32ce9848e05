package systems

import (
	"strings"
)

// Tag constants
const (
	tagName = "systems"
)

// Tag modifiers
const (
	modMut      = "mut"      // Mutable access
	modOpt      = "opt"      // Leave zero if the provider cannot resolve
	modSelf     = "self"     // The system's own instance
	modSystem   = "system"   // Another system's instance
	modSkip     = "-"        // Never inject
	modProvider = "provider" // provider=<name>
)

// FieldKind represents the type of field for injection.
type FieldKind int

const (
	// FieldRef indicates a Ref[T] field
	FieldRef FieldKind = iota
	// FieldPointer indicates a *T field
	FieldPointer
	// FieldMarker indicates an InGroup, Before or After phantom field
	FieldMarker
	// FieldOptions indicates an Options phantom field
	FieldOptions
	// FieldPlain indicates a field that is left alone
	FieldPlain
)

// String returns the string representation of FieldKind.
func (k FieldKind) String() string {
	switch k {
	case FieldRef:
		return "Ref"
	case FieldPointer:
		return "Pointer"
	case FieldMarker:
		return "Marker"
	case FieldOptions:
		return "Options"
	case FieldPlain:
		return "Plain"
	default:
		return "Unknown"
	}
}

// TagInfo holds parsed tag information.
type TagInfo struct {
	Mutable  bool   // systems:"mut"
	Optional bool   // systems:"opt"
	Self     bool   // systems:"self"
	System   bool   // systems:"system"
	Skip     bool   // systems:"-"
	Provider string // systems:"provider=name"
	Data     ProviderData
	Present  bool // the field carried a systems tag at all
}

// parseTag parses a systems struct tag. Unknown key=value pairs are passed
// to the provider as ProviderData.
func parseTag(tag string) TagInfo {
	info := TagInfo{}
	if tag == "" {
		return info
	}
	info.Present = true

	parts := strings.SplitSeq(tag, ",")
	for part := range parts {
		part = strings.TrimSpace(part)
		if key, value, ok := strings.Cut(part, "="); ok {
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			if key == modProvider {
				info.Provider = value
				continue
			}
			if info.Data == nil {
				info.Data = ProviderData{}
			}
			info.Data[key] = value
			continue
		}
		switch part {
		case modMut:
			info.Mutable = true
		case modOpt:
			info.Optional = true
		case modSelf:
			info.Self = true
		case modSystem:
			info.System = true
		case modSkip:
			info.Skip = true
		}
	}

	if info.Self || info.System {
		info.Provider = SystemRefProvider{}.Name()
	}
	if info.Self {
		if info.Data == nil {
			info.Data = ProviderData{}
		}
		info.Data["self"] = "true"
	}

	return info
}
