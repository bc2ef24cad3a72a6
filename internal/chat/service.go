package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sitechat/sitechat/internal/database"
	"github.com/sitechat/sitechat/internal/directory"
	"github.com/sitechat/sitechat/internal/notify"
	"github.com/sitechat/sitechat/internal/stats"
	"github.com/sitechat/sitechat/internal/types"
)

const (
	messagesSentMetric = "MessagesSent"
	roomsCreatedMetric = "RoomsCreated"
)

// MessagePayload is an inbound message as submitted by a client.
type MessagePayload struct {
	Kind     types.MessageKind `json:"kind"`
	Content  string            `json:"content"`
	FileName string            `json:"file_name,omitempty"`
	FileUrl  string            `json:"file_url,omitempty"`
	FileSize int64             `json:"file_size,omitempty"`
}

// Service orchestrates room creation, message sends, read receipts and
// invites. Every mutation commits inside a single repository call; the
// notification fan-out runs strictly after that call returns, so a rolled
// back write can never produce a push and no transaction is ever held open
// across a publish.
type Service struct {
	log      *log.Logger
	db       database.ChatRepository
	dir      directory.Directory
	members  *MembershipManager
	notifier *notify.Notifier
	stats    stats.StatsProvider
	files    FilePolicy
}

func NewService(logger *log.Logger, db database.ChatRepository, dir directory.Directory,
	notifier *notify.Notifier, sp stats.StatsProvider, files FilePolicy) *Service {
	sp.RegisterMetric(messagesSentMetric)
	sp.RegisterMetric(roomsCreatedMetric)

	return &Service{
		log:      logger,
		db:       db,
		dir:      dir,
		members:  NewMembershipManager(logger, db),
		notifier: notifier,
		stats:    sp,
		files:    files,
	}
}

func (s *Service) Memberships() *MembershipManager {
	return s.members
}

// GetOrCreatePrivateRoom returns the private room for the caller and the
// other user, creating it if the pair never chatted. A concurrent create
// from the other side is absorbed by the pair uniqueness constraint: on
// conflict the existing room is re-read once and returned. A caller who
// previously left the room gets their own membership reactivated by
// reopening it.
func (s *Service) GetOrCreatePrivateRoom(callerId, otherId int) (types.Room, error) {
	if callerId == otherId {
		return types.Room{}, ErrSelfTarget
	}

	if err := s.requireActiveUser(otherId); err != nil {
		return types.Room{}, err
	}

	room, err := s.db.FindPrivateRoomForPair(callerId, otherId)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return types.Room{}, err
		}

		room, err = s.db.CreatePrivateRoom(uuid.NewString(), callerId, otherId)
		if err != nil {
			if !errors.Is(err, database.ErrDuplicatePrivateRoom) {
				return types.Room{}, err
			}

			// lost the race to the other side; the room exists now
			room, err = s.db.FindPrivateRoomForPair(callerId, otherId)
			if err != nil {
				return types.Room{}, err
			}
		} else {
			s.stats.Incr(roomsCreatedMetric)
			s.notifier.RoomCreated(room, []int{callerId, otherId})
		}

		return s.roomView(room, callerId)
	}

	membership, err := s.db.GetMembership(room.Id, callerId)
	if err != nil {
		return types.Room{}, err
	}
	if !membership.Active {
		if err := s.db.SetMembershipActive(room.Id, callerId, true); err != nil {
			return types.Room{}, err
		}
	}

	return s.roomView(room, callerId)
}

// CreateGroupRoom creates a group room with the creator plus the
// deduplicated participants. An empty participant list is allowed: the
// creator gets a solo group they can invite into later.
func (s *Service) CreateGroupRoom(creatorId int, name string, participantIds []int) (types.Room, error) {
	memberIds := []int{creatorId}
	for _, id := range dedup(participantIds) {
		if id == creatorId {
			continue
		}
		if err := s.requireActiveUser(id); err != nil {
			return types.Room{}, err
		}
		memberIds = append(memberIds, id)
	}

	room, err := s.db.CreateGroupRoom(uuid.NewString(), name, memberIds)
	if err != nil {
		return types.Room{}, err
	}

	s.stats.Incr(roomsCreatedMetric)
	s.notifier.RoomCreated(room, memberIds)

	return s.roomView(room, creatorId)
}

// SendMessage validates, persists and fans out one message. Validation and
// authorization run before any write; the implicit private-room rejoin
// commits in the same transaction as the insert, so a failed send cannot
// leave a departed member revived.
func (s *Service) SendMessage(roomExternalId string, senderId int, payload MessagePayload) (types.Message, error) {
	room, err := s.roomByExternalId(roomExternalId)
	if err != nil {
		return types.Message{}, err
	}

	active, err := s.members.IsActiveParticipant(room.Id, senderId)
	if err != nil {
		return types.Message{}, err
	}
	if !active {
		return types.Message{}, ErrNotParticipant
	}

	if err := s.validatePayload(payload); err != nil {
		return types.Message{}, err
	}

	var reactivated []int
	if room.Kind == database.RoomKindPrivate {
		reactivated, err = s.members.ReactivationTargets(room, senderId)
		if err != nil {
			return types.Message{}, err
		}
	}

	params := database.CreateMessageParams{
		RoomId:        room.Id,
		SenderId:      senderId,
		Kind:          string(payload.Kind),
		Content:       payload.Content,
		Preview:       previewFor(payload),
		ReactivateIds: reactivated,
	}
	if payload.Kind == types.MessageImage || payload.Kind == types.MessageFile {
		params.FileName = sql.NullString{String: payload.FileName, Valid: true}
		params.FileUrl = sql.NullString{String: payload.FileUrl, Valid: true}
		params.FileSize = sql.NullInt64{Int64: payload.FileSize, Valid: true}
	}

	msg, err := s.db.CreateMessage(params)
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	senderName, err := s.dir.GetDisplayName(senderId)
	if err != nil {
		s.log.Println("resolve sender display name:", err)
	}

	s.stats.Incr(messagesSentMetric)
	s.notifier.MessageSent(room, msg, senderName, reactivated)

	return types.Message{
		Id:         msg.Id,
		RoomId:     room.ExternalId,
		SenderId:   senderId,
		SenderName: senderName,
		Kind:       payload.Kind,
		Content:    payload.Content,
		FileName:   payload.FileName,
		FileUrl:    payload.FileUrl,
		FileSize:   payload.FileSize,
		Timestamp:  msg.CreatedAt,
	}, nil
}

// MarkRead moves the member's read position to now. It only affects the
// member's own unread counts, so there is no fan-out.
func (s *Service) MarkRead(roomExternalId string, accountId int) error {
	room, err := s.roomByExternalId(roomExternalId)
	if err != nil {
		return err
	}

	if _, err := s.db.GetMembership(room.Id, accountId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotParticipant
		}
		return err
	}

	return s.db.UpdateLastReadAt(room.Id, accountId, time.Now().UTC())
}

// RenameRoom renames a group room. Private rooms have no name to rename:
// their label is always the peer's display name.
func (s *Service) RenameRoom(roomExternalId string, actorId int, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return ErrEmptyRoomName
	}

	room, err := s.roomByExternalId(roomExternalId)
	if err != nil {
		return err
	}
	if room.Kind != database.RoomKindGroup {
		return ErrPrivateRoomRename
	}

	active, err := s.members.IsActiveParticipant(room.Id, actorId)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotParticipant
	}

	if err := s.db.RenameRoom(room.Id, newName); err != nil {
		return err
	}

	actorName, err := s.dir.GetDisplayName(actorId)
	if err != nil {
		s.log.Println("resolve actor display name:", err)
	}

	room.Name = sql.NullString{String: newName, Valid: true}
	s.notifier.RoomRenamed(room, actorName)

	return nil
}

// InviteToRoom adds users to a group room, or forks a private room into a
// brand-new group room containing the private room's all-time participants
// plus the invitees. The private room itself is never touched: it keeps its
// two memberships and its history, and stays reachable.
func (s *Service) InviteToRoom(roomExternalId string, inviterId int, targetIds []int, groupName string) (types.Room, error) {
	room, err := s.roomByExternalId(roomExternalId)
	if err != nil {
		return types.Room{}, err
	}

	active, err := s.members.IsActiveParticipant(room.Id, inviterId)
	if err != nil {
		return types.Room{}, err
	}
	if !active {
		return types.Room{}, ErrNotParticipant
	}

	targets := make([]int, 0, len(targetIds))
	for _, id := range dedup(targetIds) {
		if id == inviterId {
			continue
		}
		if err := s.requireActiveUser(id); err != nil {
			return types.Room{}, err
		}
		targets = append(targets, id)
	}
	if len(targets) == 0 {
		return types.Room{}, ErrNoUsersToAdd
	}

	if room.Kind == database.RoomKindGroup {
		added, err := s.members.Invite(room, inviterId, targets)
		if err != nil {
			return types.Room{}, err
		}

		s.notifier.MembersAdded(room, added)
		return s.roomView(room, inviterId)
	}

	return s.forkPrivateRoom(room, inviterId, targets, groupName)
}

// forkPrivateRoom creates the group room that supersedes a private room for
// a widened audience: all-time private participants plus the invitees.
func (s *Service) forkPrivateRoom(room database.Room, inviterId int, targets []int, groupName string) (types.Room, error) {
	memberships, err := s.db.ListAllMemberships(room.Id)
	if err != nil {
		return types.Room{}, err
	}

	memberIds := make([]int, 0, len(memberships)+len(targets))
	names := make([]string, 0, len(memberships)+len(targets))
	seen := make(map[int]struct{})
	for _, m := range memberships {
		memberIds = append(memberIds, m.AccountId)
		names = append(names, m.Username)
		seen[m.AccountId] = struct{}{}
	}
	for _, id := range targets {
		if _, ok := seen[id]; ok {
			continue
		}

		name, err := s.dir.GetDisplayName(id)
		if err != nil {
			return types.Room{}, fmt.Errorf("resolve display name: %w", err)
		}
		memberIds = append(memberIds, id)
		names = append(names, name)
	}

	if groupName == "" {
		groupName = strings.Join(names, ", ")
	}

	newRoom, err := s.db.CreateGroupRoom(uuid.NewString(), groupName, memberIds)
	if err != nil {
		return types.Room{}, err
	}

	s.stats.Incr(roomsCreatedMetric)
	s.notifier.RoomCreated(newRoom, memberIds)

	return s.roomView(newRoom, inviterId)
}

// Leave flips the caller's membership inactive and broadcasts the departure.
// The membership row survives, so a private room can be revived later by the
// remaining side writing into it.
func (s *Service) Leave(roomExternalId string, accountId int) error {
	room, err := s.roomByExternalId(roomExternalId)
	if err != nil {
		return err
	}

	membership, err := s.members.Leave(room, accountId)
	if err != nil {
		return err
	}

	s.notifier.MemberLeft(room, membership.Username)
	return nil
}

// ListRoomsForUser returns the caller's rooms most recently written first
// (rooms with no messages last), each carrying its participant list and the
// caller's unread count.
func (s *Service) ListRoomsForUser(accountId int) ([]types.Room, error) {
	rooms, err := s.db.FindRoomsForUser(accountId)
	if err != nil {
		return nil, err
	}

	views := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		view, err := s.roomView(room, accountId)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	return views, nil
}

// GetRoom returns a single room as seen by the caller.
func (s *Service) GetRoom(roomExternalId string, accountId int) (types.Room, error) {
	room, err := s.roomByExternalId(roomExternalId)
	if err != nil {
		return types.Room{}, err
	}

	active, err := s.members.IsActiveParticipant(room.Id, accountId)
	if err != nil {
		return types.Room{}, err
	}
	if !active {
		return types.Room{}, ErrNotParticipant
	}

	return s.roomView(room, accountId)
}

// ListMessages returns a page of room history, newest first.
func (s *Service) ListMessages(roomExternalId string, accountId, offset, limit int) ([]types.Message, error) {
	room, err := s.roomByExternalId(roomExternalId)
	if err != nil {
		return nil, err
	}

	active, err := s.members.IsActiveParticipant(room.Id, accountId)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrNotParticipant
	}

	dbMessages, err := s.db.GetMessages(room.Id, offset, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, msg := range dbMessages {
		messages = append(messages, types.Message{
			Id:         msg.Id,
			RoomId:     room.ExternalId,
			SenderId:   msg.SenderId,
			SenderName: msg.SenderName,
			Kind:       types.MessageKind(msg.Kind),
			Content:    msg.Content,
			FileName:   msg.FileName.String,
			FileUrl:    msg.FileUrl.String,
			FileSize:   msg.FileSize.Int64,
			Timestamp:  msg.CreatedAt,
		})
	}

	return messages, nil
}

func (s *Service) roomByExternalId(externalId string) (database.Room, error) {
	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, ErrRoomNotFound
		}
		return database.Room{}, err
	}
	return room, nil
}

func (s *Service) requireActiveUser(accountId int) error {
	active, err := s.dir.IsUserActive(accountId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if !active {
		return ErrUserNotFound
	}
	return nil
}

// roomView renders the room for one member. Private rooms are labeled with
// the peer's display name since they carry no name of their own.
func (s *Service) roomView(room database.Room, accountId int) (types.Room, error) {
	view, err := s.notifier.Snapshot(room, accountId)
	if err != nil {
		return types.Room{}, err
	}

	if view.Kind == types.RoomPrivate {
		for _, p := range view.Participants {
			if p.Id != accountId {
				view.Name = p.Username
				break
			}
		}
	}

	return view, nil
}

func (s *Service) validatePayload(payload MessagePayload) error {
	switch payload.Kind {
	case types.MessageText:
		if strings.TrimSpace(payload.Content) == "" {
			return ErrEmptyMessage
		}
	case types.MessageImage, types.MessageFile:
		return s.files.CheckAttachment(payload.FileName, payload.FileSize)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, payload.Kind)
	}

	return nil
}

// previewFor renders the room-list preview: the text itself for text
// messages, a bracketed kind label otherwise.
func previewFor(payload MessagePayload) string {
	switch payload.Kind {
	case types.MessageText:
		return payload.Content
	case types.MessageImage:
		return "[IMAGE]"
	case types.MessageFile:
		return "[FILE]"
	default:
		return "[" + strings.ToUpper(string(payload.Kind)) + "]"
	}
}
