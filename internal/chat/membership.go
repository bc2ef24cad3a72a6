package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/sitechat/sitechat/internal/database"
)

// MembershipManager is the sole authority over who belongs to a room and in
// what state. Leaving never deletes a membership row, it flips active off;
// rejoining flips it back and refreshes joined_at. That is what keeps the
// (room, user) pair unique across any number of leave/rejoin cycles, and
// what lets a private room remember a departed participant for history
// display.
type MembershipManager struct {
	log *log.Logger
	db  database.ChatRepository
}

func NewMembershipManager(logger *log.Logger, db database.ChatRepository) *MembershipManager {
	return &MembershipManager{
		log: logger,
		db:  db,
	}
}

// IsActiveParticipant is the authorization gate run before any read or write
// on a room.
func (mm *MembershipManager) IsActiveParticipant(roomId, accountId int) (bool, error) {
	m, err := mm.db.GetMembership(roomId, accountId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return m.Active, nil
}

func (mm *MembershipManager) ListActive(roomId int) ([]database.Membership, error) {
	return mm.db.ListActiveMemberships(roomId)
}

func (mm *MembershipManager) ListAll(roomId int) ([]database.Membership, error) {
	return mm.db.ListAllMemberships(roomId)
}

// ReactivationTargets applies the implicit rejoin rule: a private room one
// side left is revived the moment the other side writes into it. Returns the
// account ids of every inactive membership other than the sender's. It only
// decides; the store flips the memberships active inside the message insert
// transaction, so a failed send leaves them untouched. Group rooms are never
// implicitly rejoined.
func (mm *MembershipManager) ReactivationTargets(room database.Room, senderId int) ([]int, error) {
	if room.Kind != database.RoomKindPrivate {
		return nil, nil
	}

	memberships, err := mm.db.ListAllMemberships(room.Id)
	if err != nil {
		return nil, err
	}

	var targets []int
	for _, m := range memberships {
		if m.AccountId == senderId || m.Active {
			continue
		}
		targets = append(targets, m.AccountId)
	}

	return targets, nil
}

// Leave flips the member's active flag off and returns the membership as it
// was, so the caller can broadcast a leave notice with the member's name.
func (mm *MembershipManager) Leave(room database.Room, accountId int) (database.Membership, error) {
	m, err := mm.db.GetMembership(room.Id, accountId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Membership{}, ErrNotParticipant
		}
		return database.Membership{}, err
	}

	if !m.Active {
		return database.Membership{}, ErrNotParticipant
	}

	if err := mm.db.SetMembershipActive(room.Id, accountId, false); err != nil {
		return database.Membership{}, err
	}

	return m, nil
}

// Invite adds the targets to a group room: an existing inactive membership is
// reactivated, a missing one is created, an already-active one is skipped.
// The inviter is never a target of their own invite. Returns the account ids
// actually added; ErrNoUsersToAdd when that set is empty.
//
// Private rooms are deliberately not handled here: a third participant must
// never be attached to a private room. The room service forks a new group
// room instead.
func (mm *MembershipManager) Invite(room database.Room, inviterId int, targetIds []int) ([]int, error) {
	if room.Kind != database.RoomKindGroup {
		return nil, fmt.Errorf("invite into %s room %q", room.Kind, room.ExternalId)
	}

	var added []int
	for _, accountId := range dedup(targetIds) {
		if accountId == inviterId {
			continue
		}

		m, err := mm.db.GetMembership(room.Id, accountId)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}

			if _, err := mm.db.CreateMembership(room.Id, accountId); err != nil {
				return nil, fmt.Errorf("create membership: %w", err)
			}
			added = append(added, accountId)
			continue
		}

		if m.Active {
			continue
		}

		if err := mm.db.SetMembershipActive(room.Id, accountId, true); err != nil {
			return nil, fmt.Errorf("reactivate membership: %w", err)
		}
		added = append(added, accountId)
	}

	if len(added) == 0 {
		return nil, ErrNoUsersToAdd
	}

	return added, nil
}

func dedup(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	var out []int
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
