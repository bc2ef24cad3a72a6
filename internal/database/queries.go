package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	sqlStr, args, err := psql.Insert("accounts").
		Columns("username", "email", "password_hash", "created_at", "updated_at").
		Values(params.Username, params.EmailAddress, params.PasswordHash, time.Now().UTC(), time.Now().UTC()).
		Suffix("RETURNING id, username, email").
		ToSql()
	if err != nil {
		return User{}, err
	}

	var u User
	err = db.conn.QueryRow(sqlStr, args...).Scan(&u.Id, &u.Username, &u.EmailAddress)
	return u, err
}

func (db *PgChatRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	sqlStr, args, err := psql.Update("accounts").
		Set("username", params.Username).
		Set("password_hash", params.PasswordHash).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": params.UserId}).
		Suffix("RETURNING id, username, email").
		ToSql()
	if err != nil {
		return User{}, err
	}

	var u User
	err = db.conn.QueryRow(sqlStr, args...).Scan(&u.Id, &u.Username, &u.EmailAddress)
	return u, err
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	sqlStr, args, err := psql.Select("id", "username", "email", "active", "created_at", "updated_at").
		From("accounts").
		Where(squirrel.Eq{"id": accountId}).
		Limit(1).
		ToSql()
	if err != nil {
		return User{}, err
	}

	var u User
	err = db.conn.QueryRow(sqlStr, args...).Scan(&u.Id, &u.Username, &u.EmailAddress, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	sqlStr, args, err := psql.Select("id", "username", "email", "password_hash", "active", "created_at", "updated_at").
		From("accounts").
		Where(squirrel.Eq{"email": email}).
		Limit(1).
		ToSql()
	if err != nil {
		return User{}, err
	}

	var u User
	err = db.conn.QueryRow(sqlStr, args...).Scan(&u.Id, &u.Username, &u.EmailAddress, &u.PasswordHash, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const roomColumns = "id, external_id, kind, name, pair_key, last_message_preview, last_message_at, created_at, updated_at"

func scanRoom(row squirrel.RowScanner) (Room, error) {
	var r Room
	err := row.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Kind,
		&r.Name,
		&r.PairKey,
		&r.LastMessagePreview,
		&r.LastMessageAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (db *PgChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	sqlStr, args, err := psql.Select(roomColumns).
		From("rooms").
		Where(squirrel.Eq{"external_id": externalId}).
		Limit(1).
		ToSql()
	if err != nil {
		return Room{}, err
	}

	return scanRoom(db.conn.QueryRow(sqlStr, args...))
}

func (db *PgChatRepository) FindPrivateRoomForPair(userA, userB int) (Room, error) {
	sqlStr, args, err := psql.Select(roomColumns).
		From("rooms").
		Where(squirrel.Eq{"pair_key": PairKey(userA, userB)}).
		Limit(1).
		ToSql()
	if err != nil {
		return Room{}, err
	}

	return scanRoom(db.conn.QueryRow(sqlStr, args...))
}

// FindRoomsForUser returns the rooms the user is an active member of, most
// recently written first; rooms with no messages sort last.
func (db *PgChatRepository) FindRoomsForUser(accountId int) ([]Room, error) {
	sqlStr, args, err := psql.Select(
		"r.id", "r.external_id", "r.kind", "r.name", "r.pair_key",
		"r.last_message_preview", "r.last_message_at", "r.created_at", "r.updated_at").
		From("rooms r").
		Join("memberships m ON m.room_id = r.id").
		Where(squirrel.Eq{"m.account_id": accountId, "m.active": true}).
		OrderBy("r.last_message_at DESC NULLS LAST", "r.id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *PgChatRepository) CreatePrivateRoom(externalId string, userA, userB int) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	sqlStr, args, err := psql.Insert("rooms").
		Columns("external_id", "kind", "pair_key", "created_at", "updated_at").
		Values(externalId, RoomKindPrivate, PairKey(userA, userB), time.Now().UTC(), time.Now().UTC()).
		Suffix("RETURNING " + roomColumns).
		ToSql()
	if err != nil {
		return Room{}, err
	}

	var room Room
	room, err = scanRoom(tx.QueryRow(sqlStr, args...))
	if err != nil {
		if isUniqueViolation(err) {
			return Room{}, ErrDuplicatePrivateRoom
		}
		return Room{}, err
	}

	for _, accountId := range []int{userA, userB} {
		if err = insertMembership(tx, room.Id, accountId); err != nil {
			return Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) CreateGroupRoom(externalId, name string, memberIds []int) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	sqlStr, args, err := psql.Insert("rooms").
		Columns("external_id", "kind", "name", "created_at", "updated_at").
		Values(externalId, RoomKindGroup, name, time.Now().UTC(), time.Now().UTC()).
		Suffix("RETURNING " + roomColumns).
		ToSql()
	if err != nil {
		return Room{}, err
	}

	var room Room
	room, err = scanRoom(tx.QueryRow(sqlStr, args...))
	if err != nil {
		return Room{}, err
	}

	for _, accountId := range memberIds {
		if err = insertMembership(tx, room.Id, accountId); err != nil {
			return Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func insertMembership(tx *sql.Tx, roomId, accountId int) error {
	sqlStr, args, err := psql.Insert("memberships").
		Columns("room_id", "account_id", "active", "joined_at", "created_at", "updated_at").
		Values(roomId, accountId, true, time.Now().UTC(), time.Now().UTC(), time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}

	_, err = tx.Exec(sqlStr, args...)
	return err
}

func (db *PgChatRepository) RenameRoom(roomId int, name string) error {
	sqlStr, args, err := psql.Update("rooms").
		Set("name", name).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": roomId}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := db.conn.Exec(sqlStr, args...)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

const membershipColumns = "m.id, m.room_id, m.account_id, a.username, m.active, m.joined_at, m.last_read_at, m.created_at, m.updated_at"

func scanMembership(row squirrel.RowScanner) (Membership, error) {
	var m Membership
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.AccountId,
		&m.Username,
		&m.Active,
		&m.JoinedAt,
		&m.LastReadAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

func (db *PgChatRepository) GetMembership(roomId, accountId int) (Membership, error) {
	sqlStr, args, err := psql.Select(membershipColumns).
		From("memberships m").
		Join("accounts a ON a.id = m.account_id").
		Where(squirrel.Eq{"m.room_id": roomId, "m.account_id": accountId}).
		Limit(1).
		ToSql()
	if err != nil {
		return Membership{}, err
	}

	return scanMembership(db.conn.QueryRow(sqlStr, args...))
}

func (db *PgChatRepository) listMemberships(roomId int, activeOnly bool) ([]Membership, error) {
	q := psql.Select(membershipColumns).
		From("memberships m").
		Join("accounts a ON a.id = m.account_id").
		Where(squirrel.Eq{"m.room_id": roomId}).
		OrderBy("m.id")
	if activeOnly {
		q = q.Where(squirrel.Eq{"m.active": true})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}

	return memberships, rows.Err()
}

func (db *PgChatRepository) ListActiveMemberships(roomId int) ([]Membership, error) {
	return db.listMemberships(roomId, true)
}

func (db *PgChatRepository) ListAllMemberships(roomId int) ([]Membership, error) {
	return db.listMemberships(roomId, false)
}

func (db *PgChatRepository) CreateMembership(roomId, accountId int) (Membership, error) {
	sqlStr, args, err := psql.Insert("memberships").
		Columns("room_id", "account_id", "active", "joined_at", "created_at", "updated_at").
		Values(roomId, accountId, true, time.Now().UTC(), time.Now().UTC(), time.Now().UTC()).
		Suffix("RETURNING id, room_id, account_id, active, joined_at, created_at, updated_at").
		ToSql()
	if err != nil {
		return Membership{}, err
	}

	var m Membership
	err = db.conn.QueryRow(sqlStr, args...).Scan(
		&m.Id, &m.RoomId, &m.AccountId, &m.Active, &m.JoinedAt, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// SetMembershipActive flips the active flag; activation also refreshes
// joined_at so a rejoined member sorts as a fresh arrival.
func (db *PgChatRepository) SetMembershipActive(roomId, accountId int, active bool) error {
	q := psql.Update("memberships").
		Set("active", active).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"room_id": roomId, "account_id": accountId})
	if active {
		q = q.Set("joined_at", time.Now().UTC())
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}

	res, err := db.conn.Exec(sqlStr, args...)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

func (db *PgChatRepository) UpdateLastReadAt(roomId, accountId int, readAt time.Time) error {
	sqlStr, args, err := psql.Update("memberships").
		Set("last_read_at", readAt.UTC()).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"room_id": roomId, "account_id": accountId}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := db.conn.Exec(sqlStr, args...)
	if err != nil {
		return err
	}

	return requireRowsAffected(res)
}

// lastMessageUpdate builds the room's preview update for one new message.
// Message ids are assigned at insert time, before the room row lock, so a
// later message can commit first; the guard keeps last_message_at monotonic
// by letting the older writer match zero rows instead of overwriting.
func lastMessageUpdate(roomId int, preview string, at time.Time) squirrel.UpdateBuilder {
	return psql.Update("rooms").
		Set("last_message_preview", preview).
		Set("last_message_at", at).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": roomId}).
		Where(squirrel.Expr("(last_message_at IS NULL OR last_message_at <= ?)", at))
}

// CreateMessage persists the message, updates the room's last-message
// preview and flips the ReactivateIds memberships active, all in a single
// transaction. A failed insert therefore rolls back the implicit rejoin
// along with everything else.
func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	sqlStr, args, err := psql.Insert("messages").
		Columns("room_id", "sender_id", "kind", "content", "file_name", "file_url", "file_size", "created_at").
		Values(params.RoomId, params.SenderId, params.Kind, params.Content,
			params.FileName, params.FileUrl, params.FileSize, time.Now().UTC()).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		RoomId:   params.RoomId,
		SenderId: params.SenderId,
		Kind:     params.Kind,
		Content:  params.Content,
		FileName: params.FileName,
		FileUrl:  params.FileUrl,
		FileSize: params.FileSize,
	}
	err = tx.QueryRow(sqlStr, args...).Scan(&msg.Id, &msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}

	sqlStr, args, err = lastMessageUpdate(params.RoomId, params.Preview, msg.CreatedAt).ToSql()
	if err != nil {
		return Message{}, err
	}

	// zero rows matched means a newer message already holds the preview
	_, err = tx.Exec(sqlStr, args...)
	if err != nil {
		return Message{}, err
	}

	for _, accountId := range params.ReactivateIds {
		sqlStr, args, err = psql.Update("memberships").
			Set("active", true).
			Set("joined_at", time.Now().UTC()).
			Set("updated_at", time.Now().UTC()).
			Where(squirrel.Eq{"room_id": params.RoomId, "account_id": accountId}).
			ToSql()
		if err != nil {
			return Message{}, err
		}

		if _, err = tx.Exec(sqlStr, args...); err != nil {
			return Message{}, fmt.Errorf("reactivate membership: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *PgChatRepository) GetMessages(roomId, offset, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	sqlStr, args, err := psql.Select(
		"m.id", "m.room_id", "m.sender_id", "a.username", "m.kind", "m.content",
		"m.file_name", "m.file_url", "m.file_size", "m.created_at").
		From("messages m").
		Join("accounts a ON a.id = m.sender_id").
		Where(squirrel.Eq{"m.room_id": roomId}).
		OrderBy("m.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		err := rows.Scan(
			&msg.Id, &msg.RoomId, &msg.SenderId, &msg.SenderName, &msg.Kind, &msg.Content,
			&msg.FileName, &msg.FileUrl, &msg.FileSize, &msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CountUnreadMessages counts other-authored messages newer than since. A nil
// since means the member has never read the room and every other-authored
// message counts.
func (db *PgChatRepository) CountUnreadMessages(roomId, accountId int, since *time.Time) (int, error) {
	q := psql.Select("COUNT(*)").
		From("messages").
		Where(squirrel.Eq{"room_id": roomId}).
		Where(squirrel.NotEq{"sender_id": accountId})
	if since != nil {
		q = q.Where(squirrel.Gt{"created_at": since.UTC()})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	err = db.conn.QueryRow(sqlStr, args...).Scan(&count)
	return count, err
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
