package playlist

import (
	"context"
	"errors"
	"strings"
	"time"

	"musicroom/internal/access"
	"musicroom/internal/apperr"
	"musicroom/internal/notify"
	"musicroom/internal/users"
)

type InviteResult struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// Invite offers collaboration on playlist id to target. The owner and
// collaborators may invite; the ledger entry and the inbox entry, keyed
// by playlist and inviter, are written together.
func (s *Service) Invite(ctx context.Context, actor, id, target string) (*InviteResult, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, apperr.NewValidation("user_id is required")
	}

	var (
		entry     notify.Entry
		recipient notify.Recipient
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.LockPlaylist(ctx, id)
		if err != nil {
			return err
		}
		if !p.CanInvite(actor) {
			s.metrics.Denied(entityKind, string(access.ActionInviteUsers))
			return apperr.NewForbidden("Only owner or collaborators can invite users")
		}
		u, err := tx.LockUser(ctx, target)
		if err != nil {
			return err
		}
		if p.IsOwner(target) || p.IsCollaborator(target) {
			return apperr.NewConflict("user is already a collaborator")
		}
		now := s.now()
		if !p.PendingInvites.Add(target, access.InviteCollaborator, actor, now) {
			return apperr.NewConflict("already has a pending invite")
		}

		inviterName := actor
		if inviter, err := tx.LoadUser(ctx, actor); err == nil {
			inviterName = inviter.DisplayName()
		} else if !errors.Is(err, users.ErrNotFound) {
			return err
		}

		entry = notify.Entry{
			EntityID:    p.ID,
			EntityName:  p.Name,
			InviterID:   actor,
			InviterName: inviterName,
			OfferedRole: string(access.InviteCollaborator),
			CreatedAt:   now,
			Message:     notify.PlaylistInviteMessage(inviterName, p.Name),
		}
		u.PlaylistNotifications.Put(notify.PlaylistKey(p.ID, actor), entry)
		recipient = notify.Recipient{ID: u.ID, Email: u.Email}
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		p.UpdatedAt = now
		return tx.SavePlaylist(ctx, p)
	})
	if err != nil {
		return nil, mapErr(err)
	}

	s.metrics.Transition(entityKind, "invited")
	s.dispatch.Invited(ctx, recipient, entityKind, entry)
	return &InviteResult{Message: "Invitation sent successfully", UserID: target}, nil
}

type ResponseResult struct {
	Message string `json:"message"`
}

// resolve consumes actor's pending invitation under the playlist row
// lock. Inbox entries for the playlist are cleared whichever inviter
// wrote them.
func (s *Service) resolve(ctx context.Context, actor, id string, apply func(p *Playlist)) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		p, err := tx.LockPlaylist(ctx, id)
		if err != nil {
			return err
		}
		if !p.PendingInvites.Remove(actor) {
			return apperr.NewConflict("no pending invite found")
		}
		if err := clearInbox(ctx, tx, p, actor); err != nil {
			return err
		}
		if apply != nil {
			apply(p)
		}
		p.UpdatedAt = s.now()
		return tx.SavePlaylist(ctx, p)
	})
	return mapErr(err)
}

// Accept makes the actor a collaborator and a follower.
func (s *Service) Accept(ctx context.Context, actor, id string) (*ResponseResult, error) {
	if err := s.resolve(ctx, actor, id, func(p *Playlist) { p.ApplyAcceptance(actor) }); err != nil {
		return nil, err
	}
	s.metrics.Transition(entityKind, "accepted")
	s.dispatch.Resolved(ctx, actor, entityKind, id, "accepted")
	s.dispatch.Broadcast(ctx, "playlist.members_changed", map[string]any{"id": id, "user_id": actor, "change": "accepted"})
	return &ResponseResult{Message: "Invitation accepted successfully"}, nil
}

func (s *Service) Decline(ctx context.Context, actor, id string) (*ResponseResult, error) {
	if err := s.resolve(ctx, actor, id, nil); err != nil {
		return nil, err
	}
	s.metrics.Transition(entityKind, "declined")
	s.dispatch.Resolved(ctx, actor, entityKind, id, "declined")
	return &ResponseResult{Message: "Invitation declined"}, nil
}

func (s *Service) RevokeInvite(ctx context.Context, actor, id, target string) error {
	_, _, err := s.mutate(ctx, id, func(tx Tx, p *Playlist) (bool, error) {
		if err := s.require(p, actor, access.ActionManageUsers, "You don't have permission to manage invitations"); err != nil {
			return false, err
		}
		if !p.PendingInvites.Has(target) {
			return false, apperr.NewNotFound("no pending invite found")
		}
		return true, dropPendingFor(ctx, tx, p, target)
	})
	if err != nil {
		return err
	}
	s.metrics.Transition(entityKind, "revoked")
	s.dispatch.Resolved(ctx, target, entityKind, id, "revoked")
	return nil
}

type PendingInvite struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	InvitedAt time.Time `json:"invited_at"`
	InvitedBy string    `json:"invited_by,omitempty"`
}

func (s *Service) PendingInvites(ctx context.Context, actor, id string) ([]PendingInvite, error) {
	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := s.require(p, actor, access.ActionManageUsers, "You don't have permission to view pending invites"); err != nil {
		return nil, err
	}
	ids := make([]string, len(p.PendingInvites))
	for i, inv := range p.PendingInvites {
		ids[i] = inv.UserID
	}
	names, err := s.store.UserNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]PendingInvite, 0, len(ids))
	for _, inv := range p.PendingInvites {
		name := names[inv.UserID]
		if name == "" {
			name = inv.UserID
		}
		out = append(out, PendingInvite{UserID: inv.UserID, Name: name, InvitedAt: inv.InvitedAt, InvitedBy: inv.InvitedBy})
	}
	return out, nil
}
