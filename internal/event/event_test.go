package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicroom/internal/access"
)

var t0 = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func TestResolveEffectiveRole_ExplicitMapWins(t *testing.T) {
	e := New("e1", "olga", "Party", t0)
	e.Managers = []string{"mia"}
	e.Attendees = []string{"mia", "leo"}

	// structural fields say editor, the registry says listener
	e.UserRoles["mia"] = access.RoleListener
	assert.Equal(t, access.RoleListener, e.ResolveEffectiveRole("mia"))

	delete(e.UserRoles, "mia")
	assert.Equal(t, access.RoleEditor, e.ResolveEffectiveRole("mia"))
	assert.Equal(t, access.RoleListener, e.ResolveEffectiveRole("leo"))
	assert.Equal(t, access.RoleOwner, e.ResolveEffectiveRole("olga"))
	assert.Equal(t, access.Role(""), e.ResolveEffectiveRole("stranger"))
	assert.Equal(t, access.Role(""), e.ResolveEffectiveRole(""))

	delete(e.UserRoles, "olga")
	assert.Equal(t, access.RoleOwner, e.ResolveEffectiveRole("olga"))
}

func TestAssignRole_Idempotent(t *testing.T) {
	e := New("e1", "olga", "Party", t0)
	require.True(t, e.AssignRole("mia", access.RoleEditor))
	require.True(t, e.AssignRole("mia", access.RoleEditor))

	assert.Len(t, e.UserRoles, 2)
	assert.Equal(t, []string{"mia"}, e.UsersWithRole(access.RoleEditor))

	assert.False(t, e.AssignRole("mia", access.Role("dj")))
	assert.False(t, e.AssignRole("", access.RoleEditor))
	r, _ := e.Role("mia")
	assert.Equal(t, access.RoleEditor, r)
}

func TestListenerCannotEdit(t *testing.T) {
	e := New("e1", "olga", "Party", t0)
	e.AddAttendee("ben")

	assert.False(t, e.Can("ben", access.ActionEdit))
	assert.True(t, e.Can("ben", access.ActionVoteTracks))
	assert.True(t, e.Can("stranger", access.ActionView))
	assert.False(t, e.Can("stranger", access.ActionVoteTracks))

	e.IsPublic = false
	assert.False(t, e.Can("stranger", access.ActionView))
	assert.True(t, e.Can("ben", access.ActionView))
}

func TestApplyAcceptance(t *testing.T) {
	t.Run("manager", func(t *testing.T) {
		e := New("e1", "olga", "Party", t0)
		e.ApplyAcceptance("mia", access.InviteManager)

		assert.Contains(t, e.Managers, "mia")
		assert.Contains(t, e.Attendees, "mia")
		assert.Equal(t, access.RoleEditor, e.ResolveEffectiveRole("mia"))
	})

	t.Run("attendee", func(t *testing.T) {
		e := New("e1", "olga", "Party", t0)
		e.ApplyAcceptance("leo", access.InviteAttendee)

		assert.Equal(t, []string{"leo"}, e.Attendees)
		assert.Empty(t, e.Managers)
		assert.Equal(t, access.RoleListener, e.ResolveEffectiveRole("leo"))
	})

	t.Run("organizer", func(t *testing.T) {
		e := New("e1", "olga", "Party", t0)
		e.ApplyAcceptance("mia", access.InviteManager)
		e.ApplyAcceptance("mia", access.InviteOrganizer)

		assert.Equal(t, "mia", e.OrganizerID)
		assert.Equal(t, access.RoleOwner, e.ResolveEffectiveRole("mia"))
		assert.Equal(t, access.RoleEditor, e.ResolveEffectiveRole("olga"))
		assert.Contains(t, e.Managers, "olga")
		assert.NotContains(t, e.Managers, "mia")
		assert.Contains(t, e.Attendees, "mia")
		assert.Equal(t, []string{"mia"}, e.Owners())
	})
}

func TestTransferOwnership(t *testing.T) {
	e := New("e1", "olga", "Party", t0)
	e.AddAttendee("mia")

	assert.False(t, e.TransferOwnership("mia", "mia"))
	assert.False(t, e.TransferOwnership("leo", "mia"))
	assert.False(t, e.TransferOwnership("", "olga"))

	require.True(t, e.TransferOwnership("mia", "olga"))
	assert.Equal(t, "mia", e.OrganizerID)
	assert.Equal(t, []string{"mia"}, e.Owners())
	assert.Equal(t, access.RoleEditor, e.ResolveEffectiveRole("olga"))

	// a stale owner entry in the registry is demoted on the next transfer
	e.UserRoles["ghost"] = access.RoleOwner
	require.True(t, e.TransferOwnership("leo", "mia"))
	assert.Equal(t, []string{"leo"}, e.Owners())
	assert.Equal(t, access.RoleEditor, e.ResolveEffectiveRole("ghost"))
}

func TestSingleOwnerAcrossSequences(t *testing.T) {
	e := New("e1", "u0", "Party", t0)
	steps := []func(){
		func() { e.ApplyAcceptance("u1", access.InviteOrganizer) },
		func() { e.ApplyAcceptance("u2", access.InviteManager) },
		func() { e.TransferOwnership("u2", "u1") },
		func() { e.ApplyAcceptance("u0", access.InviteOrganizer) },
		func() { e.TransferOwnership("u3", "u0") },
		func() { e.ApplyAcceptance("u1", access.InviteOrganizer) },
	}
	for i, step := range steps {
		step()
		assert.Len(t, e.Owners(), 1, "after step %d", i)
		assert.Equal(t, e.OrganizerID, e.Owners()[0], "after step %d", i)
	}
}

func TestMembership(t *testing.T) {
	e := New("e1", "olga", "Party", t0)

	assert.True(t, e.AddAttendee("ben"))
	assert.False(t, e.AddAttendee("ben"))

	e.AssignEditorRole("mia")
	e.AddAttendee("mia")
	assert.Equal(t, access.RoleEditor, e.ResolveEffectiveRole("mia"), "joining keeps an explicit role")

	assert.True(t, e.IsMember("olga"))
	assert.True(t, e.IsMember("mia"))
	assert.False(t, e.IsMember("leo"))

	assert.False(t, e.RemoveAttendee("olga"))
	e.AddTrack("t1")
	e.Vote("ben", "t1")
	assert.True(t, e.RemoveAttendee("ben"))
	assert.False(t, e.IsMember("ben"))
	assert.Equal(t, 0, e.VoteCount("t1"))
	assert.False(t, e.RemoveAttendee("ben"))
}

func TestTracksAndVotes(t *testing.T) {
	e := New("e1", "olga", "Party", t0)

	assert.False(t, e.Vote("ben", "t1"), "cannot vote for a track outside the queue")
	assert.True(t, e.AddTrack("t1"))
	assert.False(t, e.AddTrack("t1"))

	assert.True(t, e.Vote("ben", "t1"))
	assert.False(t, e.Vote("ben", "t1"))
	assert.True(t, e.Vote("leo", "t1"))
	assert.Equal(t, 2, e.VoteCount("t1"))
	assert.True(t, e.HasVoted("ben", "t1"))

	assert.True(t, e.Unvote("ben", "t1"))
	assert.False(t, e.Unvote("ben", "t1"))
	assert.False(t, e.Unvote("ben", "t9"))

	assert.True(t, e.RemoveTrack("t1"))
	assert.False(t, e.RemoveTrack("t1"))
	assert.Equal(t, 0, e.VoteCount("t1"))
}

func TestCanInviteWithRole(t *testing.T) {
	e := New("e1", "olga", "Party", t0)
	e.ApplyAcceptance("mia", access.InviteManager)
	e.ApplyAcceptance("leo", access.InviteAttendee)

	assert.True(t, e.CanInviteWithRole("olga", access.InviteOrganizer))
	assert.True(t, e.CanInviteWithRole("olga", access.InviteManager))
	assert.True(t, e.CanInviteWithRole("mia", access.InviteAttendee))
	assert.False(t, e.CanInviteWithRole("mia", access.InviteManager))
	assert.False(t, e.CanInviteWithRole("mia", access.InviteOrganizer))
	assert.False(t, e.CanInviteWithRole("leo", access.InviteAttendee))
}
