package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"musicroom/internal/access"
	"musicroom/internal/apperr"
	"musicroom/internal/notify"
	"musicroom/internal/users"
)

func invalidRoleError() error {
	names := make([]string, len(access.EventInviteRoles))
	for i, r := range access.EventInviteRoles {
		names[i] = string(r)
	}
	return apperr.NewValidation("Invalid role. Must be one of: " + strings.Join(names, ", "))
}

type InviteResult struct {
	Message string            `json:"message"`
	UserID  string            `json:"user_id"`
	Role    access.InviteRole `json:"role"`
}

// Invite offers role on event id to target. Preconditions are checked in
// order: role tag, inviter authority, target exists, target not already a
// member, no pending invitation. The ledger entry and the target's inbox
// entry are written in one transaction.
func (s *Service) Invite(ctx context.Context, actor, id, target string, role access.InviteRole) (*InviteResult, error) {
	if role == "" {
		role = access.DefaultInviteRole
	}
	if !role.ValidForEvent() {
		return nil, invalidRoleError()
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, apperr.NewValidation("user_id is required")
	}

	var (
		entry     notify.Entry
		recipient notify.Recipient
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		if !e.CanInviteWithRole(actor, role) {
			s.metrics.Denied(entityKind, string(role.Action()))
			if role == access.InviteOrganizer && actor != e.OrganizerID {
				return apperr.NewForbidden("only the current owner can invite an organizer")
			}
			return apperr.NewForbidden(fmt.Sprintf("You don't have permission to invite users as %s", role))
		}

		u, err := tx.LockUser(ctx, target)
		if err != nil {
			return err
		}
		if e.IsMember(target) {
			return apperr.NewConflict("user already attending")
		}
		now := s.now()
		if !e.PendingInvites.Add(target, role, actor, now) {
			return apperr.NewConflict("already has a pending invite")
		}

		inviterName := actor
		if inviter, err := tx.LoadUser(ctx, actor); err == nil {
			inviterName = inviter.DisplayName()
		} else if !errors.Is(err, users.ErrNotFound) {
			return err
		}

		entry = notify.Entry{
			EntityID:    e.ID,
			EntityName:  e.Title,
			InviterID:   actor,
			InviterName: inviterName,
			OfferedRole: string(role),
			CreatedAt:   now,
			Message:     notify.EventInviteMessage(inviterName, e.Title, string(role)),
		}
		u.EventNotifications.Put(notify.EventKey(e.ID), entry)
		recipient = notify.Recipient{ID: u.ID, Email: u.Email}

		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		e.UpdatedAt = now
		return tx.SaveEvent(ctx, e)
	})
	if err != nil {
		return nil, mapErr(err)
	}

	s.metrics.Transition(entityKind, "invited")
	s.dispatch.Invited(ctx, recipient, entityKind, entry)
	return &InviteResult{
		Message: fmt.Sprintf("Invitation sent successfully for %s role", role),
		UserID:  target,
		Role:    role,
	}, nil
}

type ResponseResult struct {
	Message string      `json:"message"`
	Role    access.Role `json:"role,omitempty"`
}

// resolve removes actor's pending invitation and inbox entry and hands
// the invitation to apply, all under the event row lock. Two concurrent
// responses serialize on that lock; the loser finds no invitation.
func (s *Service) resolve(ctx context.Context, actor, id string, apply func(e *Event, role access.InviteRole)) (access.InviteRole, error) {
	var role access.InviteRole
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		inv, ok := e.PendingInvites.Get(actor)
		if !ok {
			return apperr.NewConflict("no pending invite found")
		}
		role = inv.Role

		u, err := tx.LockUser(ctx, actor)
		switch {
		case errors.Is(err, users.ErrNotFound):
		case err != nil:
			return err
		default:
			if u.EventNotifications.Remove(notify.EventKey(e.ID)) {
				if err := tx.SaveUser(ctx, u); err != nil {
					return err
				}
			}
		}

		if apply != nil {
			apply(e, role)
		}
		e.PendingInvites.Remove(actor)
		if apply != nil && role == access.InviteOrganizer {
			if err := dropOwnerOffers(ctx, tx, e); err != nil {
				return err
			}
		}
		e.UpdatedAt = s.now()
		return tx.SaveEvent(ctx, e)
	})
	return role, mapErr(err)
}

// Accept applies the pending invitation for actor. Accepting an organizer
// offer transfers ownership; the previous owner stays on as an editor.
func (s *Service) Accept(ctx context.Context, actor, id string) (*ResponseResult, error) {
	role, err := s.resolve(ctx, actor, id, func(e *Event, role access.InviteRole) {
		e.ApplyAcceptance(actor, role)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(entityKind, "accepted")
	s.dispatch.Resolved(ctx, actor, entityKind, id, "accepted")
	s.dispatch.Broadcast(ctx, "event.members_changed", map[string]any{"id": id, "user_id": actor, "change": "accepted"})
	return &ResponseResult{Message: "Invitation accepted successfully", Role: role.Grants()}, nil
}

// Decline drops the invitation without touching membership.
func (s *Service) Decline(ctx context.Context, actor, id string) (*ResponseResult, error) {
	if _, err := s.resolve(ctx, actor, id, nil); err != nil {
		return nil, err
	}
	s.metrics.Transition(entityKind, "declined")
	s.dispatch.Resolved(ctx, actor, entityKind, id, "declined")
	return &ResponseResult{Message: "Invitation declined"}, nil
}

// RevokeInvite withdraws a pending invitation on the inviter's side.
func (s *Service) RevokeInvite(ctx context.Context, actor, id, target string) error {
	err := s.store.InTx(ctx, func(tx Tx) error {
		e, err := tx.LockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.require(e, actor, access.ActionManageUsers, "You don't have permission to manage invitations"); err != nil {
			return err
		}
		if !e.PendingInvites.Has(target) {
			return apperr.NewNotFound("no pending invite found")
		}
		if err := dropPendingFor(ctx, tx, e, target); err != nil {
			return err
		}
		e.UpdatedAt = s.now()
		return tx.SaveEvent(ctx, e)
	})
	if err != nil {
		return mapErr(err)
	}
	s.metrics.Transition(entityKind, "revoked")
	s.dispatch.Resolved(ctx, target, entityKind, id, "revoked")
	return nil
}

type PendingInvite struct {
	UserID    string            `json:"user_id"`
	Name      string            `json:"name"`
	Role      access.InviteRole `json:"role"`
	InvitedAt time.Time         `json:"invited_at"`
	InvitedBy string            `json:"invited_by,omitempty"`
}

func (s *Service) PendingInvites(ctx context.Context, actor, id string) ([]PendingInvite, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := s.require(e, actor, access.ActionManageUsers, "You don't have permission to view pending invites"); err != nil {
		return nil, err
	}
	ids := make([]string, len(e.PendingInvites))
	for i, inv := range e.PendingInvites {
		ids[i] = inv.UserID
	}
	names, err := s.store.UserNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]PendingInvite, 0, len(e.PendingInvites))
	for _, inv := range e.PendingInvites {
		name := names[inv.UserID]
		if name == "" {
			name = inv.UserID
		}
		out = append(out, PendingInvite{
			UserID:    inv.UserID,
			Name:      name,
			Role:      inv.Role,
			InvitedAt: inv.InvitedAt,
			InvitedBy: inv.InvitedBy,
		})
	}
	return out, nil
}
