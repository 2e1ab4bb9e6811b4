package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(_ context.Context) queryable { return r.pool }

const roomCols = `id, service_request_id, status, last_message_preview, last_message_at, created_at, updated_at`

func (r *repoPG) scanRoom(row pgx.Row) (*Room, error) {
	var room Room
	err := row.Scan(&room.ID, &room.ServiceRequestID, &room.Status,
		&room.LastMessagePreview, &room.LastMessageAt, &room.CreatedAt, &room.UpdatedAt)
	return &room, err
}

func (r *repoPG) CreateRoom(ctx context.Context, room *Room) error {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	if _, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chat_room (id, service_request_id, status)
		VALUES ($1,$2,$3)`,
		room.ID, room.ServiceRequestID, room.Status); err != nil {
		return err
	}
	for _, p := range room.Participants {
		p.RoomID = room.ID
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO chat_participant (room_id, actor_id, role, display_name, avatar)
			VALUES ($1,$2,$3,$4,$5)`,
			p.RoomID, p.ActorID, p.Role, p.DisplayName, p.Avatar); err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) loadParticipants(ctx context.Context, room *Room) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT room_id, actor_id, role, display_name, avatar, unread_count, joined_at
		FROM chat_participant WHERE room_id = $1 ORDER BY joined_at`, room.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.RoomID, &p.ActorID, &p.Role, &p.DisplayName, &p.Avatar, &p.UnreadCount, &p.JoinedAt); err != nil {
			return err
		}
		room.Participants = append(room.Participants, &p)
	}
	return rows.Err()
}

func (r *repoPG) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	room, err := r.scanRoom(r.conn(ctx).QueryRow(ctx, `SELECT `+roomCols+` FROM chat_room WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadParticipants(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *repoPG) GetRoomByRequest(ctx context.Context, requestID uuid.UUID) (*Room, error) {
	room, err := r.scanRoom(r.conn(ctx).QueryRow(ctx,
		`SELECT `+roomCols+` FROM chat_room WHERE service_request_id = $1`, requestID))
	if err != nil {
		return nil, err
	}
	if err := r.loadParticipants(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

func (r *repoPG) SetRoomStatus(ctx context.Context, id uuid.UUID, status RoomStatus) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE chat_room SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) ListRoomsFor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*Room, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM chat_room cr
		JOIN chat_participant cp ON cp.room_id = cr.id
		WHERE cp.actor_id = $1`, actorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT cr.id, cr.service_request_id, cr.status, cr.last_message_preview, cr.last_message_at, cr.created_at, cr.updated_at
		FROM chat_room cr
		JOIN chat_participant cp ON cp.room_id = cr.id
		WHERE cp.actor_id = $1
		ORDER BY cr.last_message_at DESC NULLS LAST
		LIMIT $2 OFFSET $3`, actorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var rooms []*Room
	for rows.Next() {
		room, err := r.scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, room := range rooms {
		if err := r.loadParticipants(ctx, room); err != nil {
			return nil, 0, err
		}
	}
	return rooms, total, nil
}

const messageCols = `id, room_id, sender_id, type, content, attachment_url, latitude, longitude,
	status, deleted, created_at, read_at`

func (r *repoPG) scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Type, &m.Content, &m.AttachmentURL,
		&m.Latitude, &m.Longitude, &m.Status, &m.Deleted, &m.CreatedAt, &m.ReadAt)
	return &m, err
}

func (r *repoPG) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO chat_message (id, room_id, sender_id, type, content, attachment_url, latitude, longitude, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.RoomID, m.SenderID, m.Type, m.Content, m.AttachmentURL, m.Latitude, m.Longitude, m.Status)
	return err
}

func (r *repoPG) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	return r.scanMessage(r.conn(ctx).QueryRow(ctx, `SELECT `+messageCols+` FROM chat_message WHERE id = $1`, id))
}

func (r *repoPG) ListMessages(ctx context.Context, roomID uuid.UUID, limit int, before *time.Time) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+messageCols+` FROM chat_message
		WHERE room_id = $1 AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC LIMIT $2`, roomID, limit, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *repoPG) MarkRead(ctx context.Context, roomID, readerID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE chat_message SET status=$4, read_at=NOW()
		WHERE room_id = $1 AND id = ANY($2) AND sender_id <> $3 AND status <> $4
		RETURNING id`,
		roomID, messageIDs, readerID, StatusRead)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var updated []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		updated = append(updated, id)
	}
	return updated, rows.Err()
}

func (r *repoPG) SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE chat_message SET deleted=TRUE, content=NULL, attachment_url=NULL
		WHERE id = $1 AND sender_id = $2 AND deleted = FALSE`,
		messageID, senderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// IncrementUnread bumps every other participant's counter in one statement;
// the per-row increment is atomic under concurrent senders.
func (r *repoPG) IncrementUnread(ctx context.Context, roomID, exceptActorID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE chat_participant SET unread_count = unread_count + 1
		WHERE room_id = $1 AND actor_id <> $2`,
		roomID, exceptActorID)
	return err
}

func (r *repoPG) ResetUnread(ctx context.Context, roomID, actorID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE chat_participant SET unread_count = 0
		WHERE room_id = $1 AND actor_id = $2`,
		roomID, actorID)
	return err
}

func (r *repoPG) SetLastMessage(ctx context.Context, roomID uuid.UUID, preview string, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE chat_room SET last_message_preview=$2, last_message_at=$3, updated_at=NOW()
		WHERE id = $1`,
		roomID, preview, at)
	return err
}
