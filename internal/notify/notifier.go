package notify

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/sitechat/sitechat/internal/database"
	"github.com/sitechat/sitechat/internal/stats"
	"github.com/sitechat/sitechat/internal/types"
)

const (
	// GroupRoomFallbackLabel is shown when a group room has no name.
	GroupRoomFallbackLabel = "Group chat"

	notificationsPublishedMetric = "NotificationsPublished"
)

// Notifier computes the fan-out for committed state changes. It must only be
// invoked after the corresponding store write has returned successfully:
// every store mutation commits inside the repository, so by the time a
// Notifier method runs there is no open transaction to hold across the
// publish.
type Notifier struct {
	log   *log.Logger
	db    database.ChatRepository
	pub   Publisher
	stats stats.StatsProvider
}

func NewNotifier(logger *log.Logger, db database.ChatRepository, pub Publisher, sp stats.StatsProvider) *Notifier {
	sp.RegisterMetric(notificationsPublishedMetric)

	return &Notifier{
		log:   logger,
		db:    db,
		pub:   pub,
		stats: sp,
	}
}

func (n *Notifier) publish(topic string, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	n.pub.Publish(topic, event)
	n.stats.Incr(notificationsPublishedMetric)
}

// MessageSent fans out a persisted message: a new-message and a recomputed
// unread-delta to every other active participant's personal topic, and a
// full room snapshot to every participant the send implicitly reactivated.
func (n *Notifier) MessageSent(room database.Room, msg database.Message, senderName string, reactivated []int) {
	members, err := n.db.ListActiveMemberships(room.Id)
	if err != nil {
		n.log.Println("notify: list active memberships:", err)
		return
	}

	label := RoomLabel(room, senderName)
	apiMsg := messageToApi(room, msg, senderName)

	for _, m := range members {
		if m.AccountId == msg.SenderId {
			continue
		}

		topic := PersonalTopic(m.AccountId)
		n.publish(topic, &Event{NewMessage: &NewMessage{
			RoomId:    room.ExternalId,
			RoomLabel: label,
			Message:   apiMsg,
		}})

		count, err := n.db.CountUnreadMessages(room.Id, m.AccountId, nullableTime(m.LastReadAt))
		if err != nil {
			n.log.Println("notify: count unread:", err)
			continue
		}
		n.publish(topic, &Event{UnreadDelta: &UnreadDelta{
			RoomId:      room.ExternalId,
			UnreadCount: count,
		}})
	}

	for _, accountId := range reactivated {
		n.roomSnapshotTo(room, accountId)
	}
}

// RoomCreated sends the room snapshot to each initial member.
func (n *Notifier) RoomCreated(room database.Room, memberIds []int) {
	for _, accountId := range memberIds {
		n.roomSnapshotTo(room, accountId)
	}
}

// MembersAdded broadcasts the refreshed participant list and a join notice to
// the room topic, and sends the room snapshot to each added member.
func (n *Notifier) MembersAdded(room database.Room, addedIds []int) {
	participants, err := n.participants(room)
	if err != nil {
		n.log.Println("notify: list participants:", err)
		return
	}

	n.publish(RoomTopic(room.ExternalId), &Event{Participants: &ParticipantChange{
		RoomId:       room.ExternalId,
		Participants: participants,
	}})

	added := make(map[int]struct{}, len(addedIds))
	for _, id := range addedIds {
		added[id] = struct{}{}
	}
	for _, p := range participants {
		if _, ok := added[p.Id]; ok {
			n.publish(RoomTopic(room.ExternalId), &Event{System: &SystemNotice{
				RoomId: room.ExternalId,
				Text:   fmt.Sprintf("%s joined", p.Username),
			}})
		}
	}

	for _, accountId := range addedIds {
		n.roomSnapshotTo(room, accountId)
	}
}

// MemberLeft broadcasts the refreshed participant list and a leave notice.
func (n *Notifier) MemberLeft(room database.Room, username string) {
	participants, err := n.participants(room)
	if err != nil {
		n.log.Println("notify: list participants:", err)
		return
	}

	n.publish(RoomTopic(room.ExternalId), &Event{Participants: &ParticipantChange{
		RoomId:       room.ExternalId,
		Participants: participants,
	}})
	n.publish(RoomTopic(room.ExternalId), &Event{System: &SystemNotice{
		RoomId: room.ExternalId,
		Text:   fmt.Sprintf("%s left", username),
	}})
}

// RoomRenamed broadcasts the rename as a system notice.
func (n *Notifier) RoomRenamed(room database.Room, actorName string) {
	n.publish(RoomTopic(room.ExternalId), &Event{System: &SystemNotice{
		RoomId: room.ExternalId,
		Text:   fmt.Sprintf("%s renamed the room to %q", actorName, room.Name.String),
	}})
}

func (n *Notifier) roomSnapshotTo(room database.Room, accountId int) {
	snapshot, err := n.Snapshot(room, accountId)
	if err != nil {
		n.log.Println("notify: room snapshot:", err)
		return
	}

	n.publish(PersonalTopic(accountId), &Event{NewRoom: &NewRoom{Room: snapshot}})
}

// Snapshot renders the room as the given member sees it: participant list
// (all-time for private rooms, active-only for groups) and their own unread
// count.
func (n *Notifier) Snapshot(room database.Room, accountId int) (types.Room, error) {
	participants, err := n.participants(room)
	if err != nil {
		return types.Room{}, err
	}

	snapshot := types.Room{
		Id:                 room.Id,
		ExternalId:         room.ExternalId,
		Kind:               types.RoomKind(room.Kind),
		Name:               room.Name.String,
		LastMessagePreview: room.LastMessagePreview,
		Participants:       participants,
		CreatedAt:          room.CreatedAt,
		UpdatedAt:          room.UpdatedAt,
	}
	if room.LastMessageAt.Valid {
		t := room.LastMessageAt.Time
		snapshot.LastMessageAt = &t
	}

	membership, err := n.db.GetMembership(room.Id, accountId)
	if err != nil {
		return types.Room{}, err
	}

	count, err := n.db.CountUnreadMessages(room.Id, accountId, nullableTime(membership.LastReadAt))
	if err != nil {
		return types.Room{}, err
	}
	snapshot.UnreadCount = count

	return snapshot, nil
}

func (n *Notifier) participants(room database.Room) ([]types.Participant, error) {
	var memberships []database.Membership
	var err error
	if room.Kind == database.RoomKindPrivate {
		// departed private-room participants still render in history
		memberships, err = n.db.ListAllMemberships(room.Id)
	} else {
		memberships, err = n.db.ListActiveMemberships(room.Id)
	}
	if err != nil {
		return nil, err
	}

	participants := make([]types.Participant, len(memberships))
	for i, m := range memberships {
		participants[i] = types.Participant{
			Id:       m.AccountId,
			Username: m.Username,
			Active:   m.Active,
		}
	}
	return participants, nil
}

// RoomLabel is the conversation title shown with a message notification.
func RoomLabel(room database.Room, senderName string) string {
	if room.Kind == database.RoomKindPrivate {
		return senderName
	}
	if room.Name.Valid && room.Name.String != "" {
		return room.Name.String
	}
	return GroupRoomFallbackLabel
}

func messageToApi(room database.Room, msg database.Message, senderName string) types.Message {
	return types.Message{
		Id:         msg.Id,
		RoomId:     room.ExternalId,
		SenderId:   msg.SenderId,
		SenderName: senderName,
		Kind:       types.MessageKind(msg.Kind),
		Content:    msg.Content,
		FileName:   msg.FileName.String,
		FileUrl:    msg.FileUrl.String,
		FileSize:   msg.FileSize.Int64,
		Timestamp:  msg.CreatedAt,
	}
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	tm := t.Time
	return &tm
}
