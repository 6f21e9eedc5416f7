package gate

import (
	"github.com/wolfeidau/smartschedule/internal/permissions"
)

// Outcome is the result of a permission check.
type Outcome uint8

const (
	Deny Outcome = iota
	Allow
	Loading
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Loading:
		return "loading"
	default:
		return "deny"
	}
}

// Check decides whether the permission named by p is granted in st.
// Errors and missing snapshots deny. A snapshot resolved for another key is
// never used.
func Check(st permissions.State, p permissions.Permission) Outcome {
	if p == nil {
		return Deny
	}
	return CheckName(st, p.Name())
}

// CheckName is Check for an arbitrary permission name. Unknown names deny.
func CheckName(st permissions.State, name string) Outcome {
	snap := st.Snapshot
	if snap != nil && snap.Key != st.Key {
		snap = nil
	}

	switch {
	case st.Err != nil:
		return Deny
	case snap == nil && st.Loading:
		return Loading
	case snap == nil:
		return Deny
	case snap.HasName(name):
		return Allow
	default:
		return Deny
	}
}

// CheckAction is Check for buttons and other controls, which render nothing
// while loading.
func CheckAction(st permissions.State, p permissions.Permission) Outcome {
	if o := Check(st, p); o == Allow {
		return Allow
	}
	return Deny
}

// HasPermission reports whether p is granted in st.
func HasPermission(st permissions.State, p permissions.Permission) bool {
	return Check(st, p) == Allow
}
