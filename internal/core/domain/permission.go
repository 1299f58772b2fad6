package domain

// Permission levels derived from the employment subtype. Kept in sync with
// the user_profiles.employee_subtype column.
const (
	SubtypeIntern   = "intern"
	SubtypePartTime = "part_time"
	SubtypeFullTime = "full_time"
	SubtypeAdmin    = "admin"
)

const (
	LevelNone     = 0
	LevelIntern   = 10
	LevelPartTime = 20
	LevelFullTime = 30
	LevelAdmin    = 100
)

var permissionLevels = map[string]int{
	SubtypeIntern:   LevelIntern,
	SubtypePartTime: LevelPartTime,
	SubtypeFullTime: LevelFullTime,
	SubtypeAdmin:    LevelAdmin,
}

// LevelForSubtype maps an employment subtype onto its numeric permission
// level. Unknown or empty subtypes map to zero.
func LevelForSubtype(subtype string) int {
	if subtype == "" {
		return LevelNone
	}
	return permissionLevels[subtype]
}

// ValidSubtype reports whether the subtype names a known employment tier.
func ValidSubtype(subtype string) bool {
	_, ok := permissionLevels[subtype]
	return ok
}

// CanManage reports whether a manager at the first subtype may manage a
// target at the second. Admins manage unconditionally; everyone else must
// strictly outrank the target, so equal levels cannot manage each other.
func CanManage(managerSubtype, targetSubtype string) bool {
	managerLevel := LevelForSubtype(managerSubtype)
	if managerLevel >= LevelAdmin {
		return true
	}
	return managerLevel > LevelForSubtype(targetSubtype)
}
