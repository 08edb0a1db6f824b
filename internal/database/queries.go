package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	userColumns    = "id, name, email, role, password_hash, created_at, updated_at"
	roomColumns    = "id, pair_key, participant_a, participant_b, COALESCE(last_message_id, ''), last_activity, created_at"
	messageColumns = "id, room_id, sender_id, receiver_id, content, type, is_read, is_edited, edited_at, created_at"

	incrUnreadQuery = "INSERT INTO room_unread (room_id, account_id, count) VALUES ($1, $2, 1) " +
		"ON CONFLICT (room_id, account_id) DO UPDATE SET count = room_unread.count + 1"
)

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.EmailAddress,
		&u.Role,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}

	return u, err
}

func scanRoom(row rowScanner) (Room, error) {
	var r Room
	err := row.Scan(
		&r.Id,
		&r.PairKey,
		&r.Participants[0],
		&r.Participants[1],
		&r.LastMessageId,
		&r.LastActivity,
		&r.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	r.UnreadCount = make(map[string]int)

	return r, err
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		m        Message
		editedAt sql.NullTime
	)
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.SenderId,
		&m.ReceiverId,
		&m.Content,
		&m.Type,
		&m.IsRead,
		&m.IsEdited,
		&editedAt,
		&m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if editedAt.Valid {
		t := editedAt.Time
		m.EditedAt = &t
	}

	return m, err
}

func (db *PgChatRepository) GetUser(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	return scanUser(row)
}

// AddUser inserts u or replaces the account with the same id.
func (db *PgChatRepository) AddUser(ctx context.Context, u User) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO accounts (id, name, email, role, password_hash) VALUES ($1, $2, $3, $4, $5) "+
			"ON CONFLICT (id) DO UPDATE SET name = $2, email = $3, role = $4, password_hash = $5, updated_at = NOW()",
		u.Id, u.Name, u.EmailAddress, u.Role, u.PasswordHash,
	)

	return err
}

func (db *PgChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanUser(row)
}

func (db *PgChatRepository) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+userColumns+" FROM accounts WHERE id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// loadUnread fills in the unread counters for the given rooms in place.
func (db *PgChatRepository) loadUnread(ctx context.Context, rooms []Room) error {
	if len(rooms) == 0 {
		return nil
	}

	ids := make([]string, len(rooms))
	index := make(map[string]int, len(rooms))
	for i, r := range rooms {
		ids[i] = r.Id
		index[r.Id] = i
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT room_id, account_id, count FROM room_unread WHERE room_id = ANY($1)",
		pq.Array(ids),
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			roomId, accountId string
			count             int
		)
		if err := rows.Scan(&roomId, &accountId, &count); err != nil {
			return fmt.Errorf("scan unread: %w", err)
		}
		if i, ok := index[roomId]; ok {
			rooms[i].UnreadCount[accountId] = count
		}
	}

	return rows.Err()
}

func (db *PgChatRepository) getRoomWhere(ctx context.Context, where string, arg any) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE "+where+" LIMIT 1",
		arg,
	)

	room, err := scanRoom(row)
	if err != nil {
		return Room{}, err
	}

	rooms := []Room{room}
	if err := db.loadUnread(ctx, rooms); err != nil {
		return Room{}, fmt.Errorf("load unread: %w", err)
	}

	return rooms[0], nil
}

func (db *PgChatRepository) FindRoomByPair(ctx context.Context, pairKey string) (Room, error) {
	return db.getRoomWhere(ctx, "pair_key = $1", pairKey)
}

func (db *PgChatRepository) GetRoom(ctx context.Context, id string) (Room, error) {
	return db.getRoomWhere(ctx, "id = $1", id)
}

func (db *PgChatRepository) CreateRoom(ctx context.Context, room Room) (Room, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO rooms (id, pair_key, participant_a, participant_b, last_activity, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (pair_key) DO NOTHING RETURNING "+roomColumns,
		room.Id,
		room.PairKey,
		room.Participants[0],
		room.Participants[1],
		room.LastActivity,
		room.CreatedAt,
	)

	created, err := scanRoom(row)
	if errors.Is(err, ErrNotFound) || isUniqueViolation(err) {
		return Room{}, ErrDuplicateRoom
	}

	return created, err
}

func (db *PgChatRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE participant_a = $1 OR participant_b = $1 "+
			"ORDER BY last_activity DESC, id DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := db.loadUnread(ctx, rooms); err != nil {
		return nil, fmt.Errorf("load unread: %w", err)
	}

	return rooms, nil
}

// CreateMessage inserts the message and updates the owning room's last
// message, activity timestamp and the receiver's unread counter in one
// transaction.
func (db *PgChatRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		"INSERT INTO messages (id, room_id, sender_id, receiver_id, content, type, is_read, is_edited, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE, $7) RETURNING "+messageColumns,
		msg.Id,
		msg.RoomId,
		msg.SenderId,
		msg.ReceiverId,
		msg.Content,
		msg.Type,
		msg.CreatedAt,
	)

	var created Message
	created, err = scanMessage(row)
	if err != nil {
		return Message{}, err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		"UPDATE rooms SET last_message_id = $2, last_activity = $3 WHERE id = $1",
		msg.RoomId,
		created.Id,
		created.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = ErrNotFound
		return Message{}, err
	}

	if _, err = tx.ExecContext(ctx, incrUnreadQuery, msg.RoomId, msg.ReceiverId); err != nil {
		return Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return created, nil
}

func (db *PgChatRepository) GetMessage(ctx context.Context, id string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) ListMessages(ctx context.Context, roomId string) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE room_id = $1 ORDER BY created_at ASC, id ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgChatRepository) UpdateMessageContent(ctx context.Context, id, senderId, content string, editedAt time.Time) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE messages SET content = $3, is_edited = TRUE, edited_at = $4 "+
			"WHERE id = $1 AND sender_id = $2 RETURNING "+messageColumns,
		id,
		senderId,
		content,
		editedAt,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) DeleteMessage(ctx context.Context, id, senderId string) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"DELETE FROM messages WHERE id = $1 AND sender_id = $2 RETURNING "+messageColumns,
		id,
		senderId,
	)

	return scanMessage(row)
}

// MarkMessageRead flips is_read for a message addressed to receiverId. The
// returned bool is false when the message was already read.
func (db *PgChatRepository) MarkMessageRead(ctx context.Context, id, receiverId string) (Message, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		"UPDATE messages SET is_read = TRUE WHERE id = $1 AND receiver_id = $2 AND is_read = FALSE "+
			"RETURNING "+messageColumns,
		id,
		receiverId,
	)

	msg, err := scanMessage(row)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Message{}, false, err
	}

	row = db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 AND receiver_id = $2 LIMIT 1",
		id,
		receiverId,
	)

	msg, err = scanMessage(row)
	if err != nil {
		return Message{}, false, err
	}

	return msg, false, nil
}

func (db *PgChatRepository) DecrementUnread(ctx context.Context, roomId, userId string) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE room_unread SET count = GREATEST(count - 1, 0) WHERE room_id = $1 AND account_id = $2",
		roomId,
		userId,
	)

	return err
}

func (db *PgChatRepository) CountUnread(ctx context.Context, roomId, userId string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE room_id = $1 AND receiver_id = $2 AND is_read = FALSE",
		roomId,
		userId,
	).Scan(&count)

	return count, err
}

func (db *PgChatRepository) SetUnread(ctx context.Context, roomId, userId string, count int) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO room_unread (room_id, account_id, count) VALUES ($1, $2, $3) "+
			"ON CONFLICT (room_id, account_id) DO UPDATE SET count = EXCLUDED.count",
		roomId,
		userId,
		count,
	)

	return err
}
