package entity

// SubjectID references the entity under approval (a transfer request)
type SubjectID string

// GroupID references the security group whose members may approve a subject
type GroupID string

// UserID references an approver
type UserID string

// RoleID is a stable role identifier resolved by the role resolver.
// It is never a display name.
type RoleID string

func (s SubjectID) String() string { return string(s) }
func (g GroupID) String() string   { return string(g) }
func (u UserID) String() string    { return string(u) }
func (r RoleID) String() string    { return string(r) }

// UserIDs converts plain strings into typed user references
func UserIDs(ids ...string) []UserID {
	out := make([]UserID, 0, len(ids))
	for _, id := range ids {
		out = append(out, UserID(id))
	}
	return out
}
