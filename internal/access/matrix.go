package access

// Action is something a user may attempt on an entity.
type Action string

const (
	ActionView              Action = "view"
	ActionEdit              Action = "edit"
	ActionDelete            Action = "delete"
	ActionAddTracks         Action = "add_tracks"
	ActionRemoveTracks      Action = "remove_tracks"
	ActionManageUsers       Action = "manage_users"
	ActionInviteUsers       Action = "invite_users"
	ActionInviteOrganizers  Action = "invite_organizers"
	ActionInviteManagers    Action = "invite_managers"
	ActionInviteAttendees   Action = "invite_attendees"
	ActionVoteTracks        Action = "vote_tracks"
	ActionTransferOwnership Action = "transfer_ownership"
)

// Actions is the complete action vocabulary.
var Actions = []Action{
	ActionView, ActionEdit, ActionDelete, ActionAddTracks, ActionRemoveTracks,
	ActionManageUsers, ActionInviteUsers, ActionInviteOrganizers,
	ActionInviteManagers, ActionInviteAttendees, ActionVoteTracks,
	ActionTransferOwnership,
}

// Matrix maps a role to the set of actions it allows.
type Matrix map[Role]map[Action]bool

func (m Matrix) Allows(role Role, a Action) bool {
	return m[role][a]
}

func allow(actions ...Action) map[Action]bool {
	out := make(map[Action]bool, len(actions))
	for _, a := range actions {
		out[a] = true
	}
	return out
}

var EventMatrix = Matrix{
	RoleOwner:    allow(Actions...),
	RoleEditor:   allow(ActionEdit, ActionAddTracks, ActionRemoveTracks, ActionInviteAttendees),
	RoleListener: allow(ActionVoteTracks),
}

// PlaylistMatrix gives editors (collaborators) full edit capability,
// including inviting further collaborators.
var PlaylistMatrix = Matrix{
	RoleOwner:    allow(Actions...),
	RoleEditor:   allow(ActionEdit, ActionAddTracks, ActionRemoveTracks, ActionInviteUsers, ActionInviteAttendees),
	RoleListener: allow(ActionVoteTracks),
}

// Relation is a user's resolved standing toward one entity.
type Relation struct {
	Role    Role // empty when the user has no standing
	IsOwner bool // structural owner reference, independent of Role
	Public  bool
}

// publicView lets anyone see a public entity.
func publicView(rel Relation) bool { return rel.Public }

// memberView lets anyone with a resolved standing see a private entity.
// The role table itself never lists view.
func memberView(rel Relation) bool { return rel.IsOwner || rel.Role != "" }

// CanPerform evaluates action a for rel against m. It never mutates
// anything and denies everything but public view to users without a role.
func CanPerform(m Matrix, rel Relation, a Action) bool {
	switch a {
	case ActionView:
		return publicView(rel) || memberView(rel)
	case ActionDelete:
		return rel.IsOwner
	}
	if rel.IsOwner {
		return true
	}
	if rel.Role == "" {
		return false
	}
	return m.Allows(rel.Role, a)
}

// CanInviteWithRole applies the invite sub-rule: organizer and manager
// offers need the structural owner, attendee offers need owner or
// editor, and the matching invite action must be allowed.
func CanInviteWithRole(m Matrix, rel Relation, offered InviteRole) bool {
	switch offered {
	case InviteOrganizer, InviteManager:
		if !rel.IsOwner {
			return false
		}
	case InviteAttendee:
		if !rel.IsOwner && rel.Role != RoleEditor {
			return false
		}
	case InviteCollaborator:
	default:
		return false
	}
	return CanPerform(m, rel, offered.Action())
}
