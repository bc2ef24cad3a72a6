package chat

import (
	"database/sql"
	"testing"

	"github.com/sitechat/sitechat/internal/database"
	"github.com/sitechat/sitechat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsActiveParticipant(t *testing.T) {
	t.Run("active member", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetMembership", 10, 1).Return(database.Membership{Active: true}, nil)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		active, err := mm.IsActiveParticipant(10, 1)
		require.NoError(t, err)
		assert.True(t, active)
	})

	t.Run("no membership row", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetMembership", 10, 1).Return(database.Membership{}, sql.ErrNoRows)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		active, err := mm.IsActiveParticipant(10, 1)
		require.NoError(t, err)
		assert.False(t, active)
	})
}

func TestReactivationTargets(t *testing.T) {
	privateRoom := database.Room{Id: 10, ExternalId: "ext-10", Kind: database.RoomKindPrivate}

	t.Run("group rooms are never implicitly rejoined", func(t *testing.T) {
		db := &database.MockChatRepository{}
		mm := NewMembershipManager(testutil.TestLogger(t), db)

		targets, err := mm.ReactivationTargets(database.Room{Id: 10, Kind: database.RoomKindGroup}, 1)
		require.NoError(t, err)
		assert.Empty(t, targets)
		db.AssertNotCalled(t, "ListAllMemberships", 10)
	})

	t.Run("names the departed side", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("ListAllMemberships", 10).Return([]database.Membership{
			{AccountId: 1, Active: true},
			{AccountId: 2, Active: false},
		}, nil)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		targets, err := mm.ReactivationTargets(privateRoom, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, targets)
		// deciding must not write; the store flips these inside the insert tx
		db.AssertNotCalled(t, "SetMembershipActive", 10, 2, true)
	})

	t.Run("empty when everyone is active", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("ListAllMemberships", 10).Return([]database.Membership{
			{AccountId: 1, Active: true},
			{AccountId: 2, Active: true},
		}, nil)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		targets, err := mm.ReactivationTargets(privateRoom, 1)
		require.NoError(t, err)
		assert.Empty(t, targets)
	})

	t.Run("never targets the sender", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("ListAllMemberships", 10).Return([]database.Membership{
			{AccountId: 1, Active: false},
			{AccountId: 2, Active: true},
		}, nil)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		targets, err := mm.ReactivationTargets(privateRoom, 1)
		require.NoError(t, err)
		assert.Empty(t, targets)
	})
}

func TestMembershipLeave(t *testing.T) {
	room := database.Room{Id: 10, ExternalId: "ext-10", Kind: database.RoomKindGroup}

	t.Run("flips active off and returns the membership", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetMembership", 10, 1).Return(database.Membership{AccountId: 1, Username: "alice", Active: true}, nil)
		db.On("SetMembershipActive", 10, 1, false).Return(nil)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		m, err := mm.Leave(room, 1)
		require.NoError(t, err)
		assert.Equal(t, "alice", m.Username)
		db.AssertExpectations(t)
	})

	t.Run("never a member", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetMembership", 10, 1).Return(database.Membership{}, sql.ErrNoRows)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		_, err := mm.Leave(room, 1)
		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("already left", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetMembership", 10, 1).Return(database.Membership{AccountId: 1, Active: false}, nil)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		_, err := mm.Leave(room, 1)
		assert.ErrorIs(t, err, ErrNotParticipant)
		db.AssertNotCalled(t, "SetMembershipActive", 10, 1, false)
	})
}

func TestMembershipInvite(t *testing.T) {
	room := database.Room{Id: 10, ExternalId: "ext-10", Kind: database.RoomKindGroup}

	t.Run("creates, reactivates and skips", func(t *testing.T) {
		db := &database.MockChatRepository{}
		// 2 is new, 3 left earlier, 4 is already in
		db.On("GetMembership", 10, 2).Return(database.Membership{}, sql.ErrNoRows)
		db.On("CreateMembership", 10, 2).Return(database.Membership{AccountId: 2}, nil)
		db.On("GetMembership", 10, 3).Return(database.Membership{AccountId: 3, Active: false}, nil)
		db.On("SetMembershipActive", 10, 3, true).Return(nil)
		db.On("GetMembership", 10, 4).Return(database.Membership{AccountId: 4, Active: true}, nil)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		added, err := mm.Invite(room, 1, []int{2, 3, 4, 2})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 3}, added)
		db.AssertNumberOfCalls(t, "CreateMembership", 1)
	})

	t.Run("inviter cannot invite themselves", func(t *testing.T) {
		db := &database.MockChatRepository{}
		mm := NewMembershipManager(testutil.TestLogger(t), db)

		_, err := mm.Invite(room, 1, []int{1})
		assert.ErrorIs(t, err, ErrNoUsersToAdd)
		db.AssertNotCalled(t, "CreateMembership", 10, 1)
	})

	t.Run("everyone already in", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetMembership", 10, 2).Return(database.Membership{AccountId: 2, Active: true}, nil)

		mm := NewMembershipManager(testutil.TestLogger(t), db)
		_, err := mm.Invite(room, 1, []int{2})
		assert.ErrorIs(t, err, ErrNoUsersToAdd)
	})

	t.Run("refuses private rooms", func(t *testing.T) {
		db := &database.MockChatRepository{}
		mm := NewMembershipManager(testutil.TestLogger(t), db)

		_, err := mm.Invite(database.Room{Id: 10, Kind: database.RoomKindPrivate}, 1, []int{2})
		assert.Error(t, err)
	})
}
