package access

// Role is the standing a user holds on an event or playlist.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleEditor   Role = "editor"
	RoleListener Role = "listener"
)

// Roles lists the assignable roles, highest first.
var Roles = []Role{RoleOwner, RoleEditor, RoleListener}

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleListener:
		return true
	}
	return false
}

// InviteRole is the standing offered by a pending invitation. It turns
// into a Role once the invitation is accepted.
type InviteRole string

const (
	InviteOrganizer    InviteRole = "organizer"
	InviteManager      InviteRole = "manager"
	InviteAttendee     InviteRole = "attendee"
	InviteCollaborator InviteRole = "collaborator"
)

// DefaultInviteRole is assumed for invitations stored without a role.
const DefaultInviteRole = InviteAttendee

// EventInviteRoles are the roles an event invitation may offer.
var EventInviteRoles = []InviteRole{InviteOrganizer, InviteManager, InviteAttendee}

// ValidForEvent reports whether r may be offered on an event.
func (r InviteRole) ValidForEvent() bool {
	switch r {
	case InviteOrganizer, InviteManager, InviteAttendee:
		return true
	}
	return false
}

// Grants returns the role a user receives when accepting r.
func (r InviteRole) Grants() Role {
	switch r {
	case InviteOrganizer:
		return RoleOwner
	case InviteManager, InviteCollaborator:
		return RoleEditor
	default:
		return RoleListener
	}
}

// Action returns the invite action that gates offering r.
func (r InviteRole) Action() Action {
	switch r {
	case InviteOrganizer:
		return ActionInviteOrganizers
	case InviteManager:
		return ActionInviteManagers
	case InviteAttendee:
		return ActionInviteAttendees
	default:
		return ActionInviteUsers
	}
}
