package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musicroom/internal/access"
)

func TestCanEdit(t *testing.T) {
	p := New("p1", "olga", "Mix", t0)
	p.Collaborators = []string{"ben"}
	p.CouldEdit = []string{"mia"}
	p.Followers = []string{"leo"}

	assert.True(t, p.CanEdit("olga"))
	assert.True(t, p.CanEdit("ben"))
	assert.True(t, p.CanEdit("mia"))
	assert.False(t, p.CanEdit("leo"))
	assert.False(t, p.CanEdit(""))

	assert.Equal(t, access.RoleOwner, p.ResolveEffectiveRole("olga"))
	assert.Equal(t, access.RoleEditor, p.ResolveEffectiveRole("ben"))
	assert.Equal(t, access.RoleEditor, p.ResolveEffectiveRole("mia"))
	assert.Equal(t, access.RoleListener, p.ResolveEffectiveRole("leo"))
	assert.Equal(t, access.Role(""), p.ResolveEffectiveRole("stranger"))
}

func TestPermissions(t *testing.T) {
	p := New("p1", "olga", "Mix", t0)
	p.Collaborators = []string{"ben"}
	p.Followers = []string{"leo"}

	assert.True(t, p.Can("ben", access.ActionAddTracks))
	assert.True(t, p.CanInvite("ben"))
	assert.False(t, p.Can("ben", access.ActionManageUsers))
	assert.False(t, p.Can("ben", access.ActionDelete))
	assert.False(t, p.CanInvite("leo"))
	assert.True(t, p.Can("stranger", access.ActionView))

	p.IsPublic = false
	assert.False(t, p.Can("stranger", access.ActionView))
	assert.True(t, p.Can("leo", access.ActionView))
	assert.True(t, p.Can("olga", access.ActionDelete))
}

func TestFollowGrantsEdit(t *testing.T) {
	p := New("p1", "olga", "Mix", t0)

	assert.False(t, p.Follow("olga"))
	require.True(t, p.Follow("ben"))
	assert.False(t, p.Follow("ben"))
	assert.True(t, p.CanEdit("ben"))

	require.True(t, p.Unfollow("ben"))
	assert.False(t, p.IsCollaborator("ben"))
	assert.False(t, p.CanEdit("ben"))
	assert.False(t, p.Unfollow("ben"))
}

func TestApplyAcceptance(t *testing.T) {
	p := New("p1", "olga", "Mix", t0)
	p.ApplyAcceptance("ann")
	p.ApplyAcceptance("ann")

	assert.Equal(t, []string{"ann"}, p.Collaborators)
	assert.Equal(t, []string{"ann"}, p.Followers)
	assert.True(t, p.CanEdit("ann"))
}

func TestCollaboratorsAndGrants(t *testing.T) {
	p := New("p1", "olga", "Mix", t0)

	assert.False(t, p.AddCollaborator("olga"))
	assert.True(t, p.AddCollaborator("ben"))
	assert.False(t, p.AddCollaborator("ben"))
	assert.True(t, p.RemoveCollaborator("ben"))
	assert.False(t, p.RemoveCollaborator("ben"))

	assert.False(t, p.GrantEdit("olga"))
	assert.Empty(t, p.CouldEdit)
	assert.True(t, p.GrantEdit("mia"))
	assert.False(t, p.GrantEdit("mia"))
	assert.True(t, p.RevokeEdit("mia"))
	assert.False(t, p.RevokeEdit("mia"))
}

func TestReorder(t *testing.T) {
	p := New("p1", "olga", "Mix", t0)
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, p.AddTrack(id))
	}
	assert.False(t, p.AddTrack("a"))

	assert.False(t, p.Reorder([]string{"c", "b"}))
	assert.False(t, p.Reorder([]string{"c", "b", "b"}))
	assert.False(t, p.Reorder([]string{"c", "b", "x"}))
	assert.Equal(t, []string{"a", "b", "c"}, p.Tracks)

	require.True(t, p.Reorder([]string{"c", "a", "b"}))
	assert.Equal(t, []string{"c", "a", "b"}, p.Tracks)

	assert.True(t, p.RemoveTrack("a"))
	assert.False(t, p.RemoveTrack("a"))
	assert.Equal(t, []string{"c", "b"}, p.Tracks)
}
