package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"

	selectRoomColumns = "id, code, name, is_public, max_users, language, is_active, created_at, expires_at"

	selectRoomForUpdateQuery = "SELECT " + selectRoomColumns + " FROM rooms " +
		"WHERE code = $1 FOR UPDATE"
	countActiveMembersQuery = "SELECT COUNT(*) FROM room_members " +
		"WHERE room_id = $1 AND is_active"
	insertMemberQuery = "INSERT INTO room_members (room_id, account_id, is_host, is_active, created_at) " +
		"VALUES ($1, $2, $3, TRUE, $4) RETURNING id, room_id, account_id, is_host, is_active, created_at"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func scanRoom(row *sql.Row) (Room, error) {
	var room Room
	err := row.Scan(
		&room.Id,
		&room.Code,
		&room.Name,
		&room.IsPublic,
		&room.MaxUsers,
		&room.Language,
		&room.IsActive,
		&room.CreatedAt,
		&room.ExpiresAt,
	)

	return room, err
}

func (db *PgOnlinexRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, is_temporary, created_at, updated_at) "+
			"VALUES ($1, $2, $3, FALSE, $4, $4) RETURNING id, username, email",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
	)

	return a, err
}

func (db *PgOnlinexRepository) CreateTempAccount(username string, expiresAt time.Time) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, is_temporary, temp_expires_at, created_at, updated_at) "+
			"VALUES ($1, TRUE, $2, $3, $3) RETURNING id, username, is_temporary, temp_expires_at",
		username,
		expiresAt.UTC(),
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.Username,
		&a.IsTemporary,
		&a.TempExpiresAt,
	)

	return a, err
}

func (db *PgOnlinexRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, COALESCE(email, ''), COALESCE(password_hash, ''), is_temporary, temp_expires_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.IsTemporary,
		&a.TempExpiresAt,
	)

	return a, err
}

func (db *PgOnlinexRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, COALESCE(email, ''), COALESCE(password_hash, ''), is_temporary, temp_expires_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.Username,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.IsTemporary,
		&a.TempExpiresAt,
	)

	return a, err
}

// CreateRoomWithHost inserts the room and its host membership in one
// transaction, so no caller can observe a room with zero members. A code
// collision surfaces as ErrDuplicateCode for the caller to retry with a
// fresh code.
func (db *PgOnlinexRepository) CreateRoomWithHost(params CreateRoomParams, hostId int) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var elsewhere int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM room_members WHERE account_id = $1 AND is_active",
		hostId,
	).Scan(&elsewhere)
	if err != nil {
		return Room{}, err
	}
	if elsewhere > 0 {
		err = ErrAlreadyElsewhere
		return Room{}, err
	}

	now := time.Now().UTC()
	res := tx.QueryRow(
		"INSERT INTO rooms (code, name, is_public, max_users, language, is_active, created_at, expires_at) "+
			"VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7) RETURNING "+selectRoomColumns,
		params.Code,
		params.Name,
		params.IsPublic,
		params.MaxUsers,
		params.Language,
		now,
		now.Add(params.Lifetime),
	)

	var room Room
	err = res.Scan(
		&room.Id,
		&room.Code,
		&room.Name,
		&room.IsPublic,
		&room.MaxUsers,
		&room.Language,
		&room.IsActive,
		&room.CreatedAt,
		&room.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrDuplicateCode
		}
		return Room{}, err
	}

	_, err = tx.Exec(insertMemberQuery, room.Id, hostId, true, now)
	if err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgOnlinexRepository) GetRoomByCode(code string) (Room, error) {
	room, err := scanRoom(db.conn.QueryRow(
		"SELECT "+selectRoomColumns+" FROM rooms WHERE code = $1 LIMIT 1",
		code,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}

	return room, err
}

func (db *PgOnlinexRepository) CountActiveMembers(roomId int) (int, error) {
	var count int
	err := db.conn.QueryRow(countActiveMembersQuery, roomId).Scan(&count)

	return count, err
}

// JoinRoom runs the full join state machine under a row lock on the room, so
// two concurrent joins against the same room are serialized and cannot both
// observe a free slot.
func (db *PgOnlinexRepository) JoinRoom(code string, accountId int) (Room, RoomMember, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, RoomMember{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	room, err := scanRoom(tx.QueryRow(selectRoomForUpdateQuery, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrRoomNotFound
		}
		return Room{}, RoomMember{}, err
	}

	if !room.IsActive || !time.Now().UTC().Before(room.ExpiresAt) {
		err = ErrRoomClosed
		return Room{}, RoomMember{}, err
	}

	var count int
	if err = tx.QueryRow(countActiveMembersQuery, room.Id).Scan(&count); err != nil {
		return Room{}, RoomMember{}, err
	}
	if count >= room.MaxUsers {
		err = ErrRoomFull
		return Room{}, RoomMember{}, err
	}

	var existing int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM room_members WHERE room_id = $1 AND account_id = $2 AND is_active",
		room.Id, accountId,
	).Scan(&existing)
	if err != nil {
		return Room{}, RoomMember{}, err
	}
	if existing > 0 {
		err = ErrAlreadyMember
		return Room{}, RoomMember{}, err
	}

	var elsewhere int
	err = tx.QueryRow(
		"SELECT COUNT(*) FROM room_members WHERE account_id = $1 AND is_active",
		accountId,
	).Scan(&elsewhere)
	if err != nil {
		return Room{}, RoomMember{}, err
	}
	if elsewhere > 0 {
		err = ErrAlreadyElsewhere
		return Room{}, RoomMember{}, err
	}

	var member RoomMember
	err = tx.QueryRow(insertMemberQuery, room.Id, accountId, false, time.Now().UTC()).Scan(
		&member.Id,
		&member.RoomId,
		&member.AccountId,
		&member.IsHost,
		&member.IsActive,
		&member.CreatedAt,
	)
	if err != nil {
		return Room{}, RoomMember{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, RoomMember{}, err
	}

	return room, member, nil
}

// LeaveRoom flips the membership inactive and, when the leaver held the host
// flag, promotes the earliest-joined remaining active member or deactivates
// the room if nobody remains. All of it happens under the room row lock.
func (db *PgOnlinexRepository) LeaveRoom(code string, accountId int) (Room, LeaveResult, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, LeaveResult{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	room, err := scanRoom(tx.QueryRow(selectRoomForUpdateQuery, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrRoomNotFound
		}
		return Room{}, LeaveResult{}, err
	}

	var member RoomMember
	err = tx.QueryRow(
		"SELECT id, room_id, account_id, is_host, is_active, created_at FROM room_members "+
			"WHERE room_id = $1 AND account_id = $2 AND is_active LIMIT 1",
		room.Id, accountId,
	).Scan(
		&member.Id,
		&member.RoomId,
		&member.AccountId,
		&member.IsHost,
		&member.IsActive,
		&member.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotAMember
		}
		return Room{}, LeaveResult{}, err
	}

	_, err = tx.Exec(
		"UPDATE room_members SET is_active = FALSE, is_host = FALSE WHERE id = $1",
		member.Id,
	)
	if err != nil {
		return Room{}, LeaveResult{}, err
	}

	result := LeaveResult{WasHost: member.IsHost}
	if member.IsHost {
		var nextId, nextAccountId int
		err = tx.QueryRow(
			"SELECT id, account_id FROM room_members "+
				"WHERE room_id = $1 AND is_active ORDER BY created_at, id LIMIT 1",
			room.Id,
		).Scan(&nextId, &nextAccountId)
		switch {
		case err == nil:
			if _, err = tx.Exec("UPDATE room_members SET is_host = TRUE WHERE id = $1", nextId); err != nil {
				return Room{}, LeaveResult{}, err
			}
			result.NewHostId = nextAccountId
		case errors.Is(err, sql.ErrNoRows):
			err = nil
			if _, err = tx.Exec("UPDATE rooms SET is_active = FALSE WHERE id = $1", room.Id); err != nil {
				return Room{}, LeaveResult{}, err
			}
			result.Deactivated = true
		default:
			return Room{}, LeaveResult{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, LeaveResult{}, err
	}

	return room, result, nil
}

func (db *PgOnlinexRepository) FindJoinableRoom(language string) (Room, error) {
	room, err := scanRoom(db.conn.QueryRow(
		"SELECT "+selectRoomColumns+" FROM rooms r "+
			"WHERE r.language = $1 AND r.is_public AND r.is_active AND r.expires_at > $2 "+
			"AND (SELECT COUNT(*) FROM room_members m WHERE m.room_id = r.id AND m.is_active) < r.max_users "+
			"ORDER BY r.created_at LIMIT 1",
		language,
		time.Now().UTC(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}

	return room, err
}

// GetActiveMember returns the caller's active membership row in the room, or
// ErrNotAMember when there is none. Reconnecting members are recognized with
// this lookup instead of re-running the join state machine.
func (db *PgOnlinexRepository) GetActiveMember(roomId, accountId int) (RoomMember, error) {
	var member RoomMember
	err := db.conn.QueryRow(
		"SELECT id, room_id, account_id, is_host, is_active, created_at FROM room_members "+
			"WHERE room_id = $1 AND account_id = $2 AND is_active LIMIT 1",
		roomId, accountId,
	).Scan(
		&member.Id,
		&member.RoomId,
		&member.AccountId,
		&member.IsHost,
		&member.IsActive,
		&member.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RoomMember{}, ErrNotAMember
	}

	return member, err
}

func (db *PgOnlinexRepository) CreateRoomMessage(msg RoomMessage) (RoomMessage, error) {
	res := db.conn.QueryRow(
		"INSERT INTO room_messages (room_id, sender_name, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, room_id, sender_name, content, created_at",
		msg.RoomId,
		msg.Sender,
		msg.Content,
		time.Now().UTC(),
	)

	var saved RoomMessage
	err := res.Scan(
		&saved.Id,
		&saved.RoomId,
		&saved.Sender,
		&saved.Content,
		&saved.CreatedAt,
	)

	return saved, err
}

func (db *PgOnlinexRepository) GetRoomMessages(roomId, limit int) ([]RoomMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, room_id, sender_name, content, created_at FROM room_messages "+
			"WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		roomId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]RoomMessage, 0, limit)
	for rows.Next() {
		var msg RoomMessage
		if err = rows.Scan(&msg.Id, &msg.RoomId, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GetOrCreateConversation returns the existing conversation for the
// (account, agent) pair or creates one with a fresh external id.
func (db *PgOnlinexRepository) GetOrCreateConversation(accountId int, agentName string) (Conversation, error) {
	var conv Conversation
	err := db.conn.QueryRow(
		"SELECT id, external_id, account_id, agent_name, created_at FROM conversations "+
			"WHERE account_id = $1 AND agent_name = $2 LIMIT 1",
		accountId, agentName,
	).Scan(&conv.Id, &conv.ExternalId, &conv.AccountId, &conv.AgentName, &conv.CreatedAt)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, err
	}

	err = db.conn.QueryRow(
		"INSERT INTO conversations (external_id, account_id, agent_name, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, external_id, account_id, agent_name, created_at",
		uuid.NewString(),
		accountId,
		agentName,
		time.Now().UTC(),
	).Scan(&conv.Id, &conv.ExternalId, &conv.AccountId, &conv.AgentName, &conv.CreatedAt)

	return conv, err
}

func (db *PgOnlinexRepository) GetConversationByExternalId(externalId string) (Conversation, error) {
	var conv Conversation
	err := db.conn.QueryRow(
		"SELECT id, external_id, account_id, agent_name, created_at FROM conversations "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	).Scan(&conv.Id, &conv.ExternalId, &conv.AccountId, &conv.AgentName, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}

	return conv, err
}

func (db *PgOnlinexRepository) CreateMemorySummary(conversationId int, summary string) (MemorySummary, error) {
	res := db.conn.QueryRow(
		"INSERT INTO memory_summaries (conversation_id, summary, created_at) "+
			"VALUES ($1, $2, $3) RETURNING id, conversation_id, summary, created_at",
		conversationId,
		summary,
		time.Now().UTC(),
	)

	var ms MemorySummary
	err := res.Scan(&ms.Id, &ms.ConversationId, &ms.Summary, &ms.CreatedAt)

	return ms, err
}

func (db *PgOnlinexRepository) GetMemorySummaries(conversationId int) ([]MemorySummary, error) {
	rows, err := db.conn.Query(
		"SELECT id, conversation_id, summary, created_at FROM memory_summaries "+
			"WHERE conversation_id = $1 ORDER BY created_at, id",
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []MemorySummary
	for rows.Next() {
		var ms MemorySummary
		if err = rows.Scan(&ms.Id, &ms.ConversationId, &ms.Summary, &ms.CreatedAt); err != nil {
			return nil, err
		}

		summaries = append(summaries, ms)
	}

	return summaries, rows.Err()
}

func (db *PgOnlinexRepository) GetExpiredRooms(now time.Time) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT "+selectRoomColumns+" FROM rooms WHERE expires_at <= $1",
		now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		err = rows.Scan(
			&room.Id,
			&room.Code,
			&room.Name,
			&room.IsPublic,
			&room.MaxUsers,
			&room.Language,
			&room.IsActive,
			&room.CreatedAt,
			&room.ExpiresAt,
		)
		if err != nil {
			return nil, err
		}

		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// DeleteRoom removes the room's memberships and messages before the room
// itself, all in one transaction.
func (db *PgOnlinexRepository) DeleteRoom(roomId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM room_members WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM room_messages WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM rooms WHERE id = $1", roomId)
	if err != nil {
		return err
	}

	return tx.Commit()
}
