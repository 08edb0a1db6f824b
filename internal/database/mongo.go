package database

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection    = "users"
	roomsCollection    = "rooms"
	messagesCollection = "messages"
)

type userDoc struct {
	Id           string    `bson:"_id"`
	Name         string    `bson:"name"`
	EmailAddress string    `bson:"email"`
	Role         string    `bson:"role"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (d userDoc) user() User {
	return User(d)
}

type roomDoc struct {
	Id            string         `bson:"_id"`
	PairKey       string         `bson:"pairKey"`
	Participants  []string       `bson:"participants"`
	LastMessageId string         `bson:"lastMessageId,omitempty"`
	LastActivity  time.Time      `bson:"lastActivity"`
	UnreadCount   map[string]int `bson:"unreadCount"`
	CreatedAt     time.Time      `bson:"createdAt"`
}

func (d roomDoc) room() Room {
	r := Room{
		Id:            d.Id,
		PairKey:       d.PairKey,
		LastMessageId: d.LastMessageId,
		LastActivity:  d.LastActivity,
		UnreadCount:   decodeUnread(d.UnreadCount),
		CreatedAt:     d.CreatedAt,
	}
	copy(r.Participants[:], d.Participants)
	return r
}

type messageDoc struct {
	Id         string     `bson:"_id"`
	RoomId     string     `bson:"roomId"`
	SenderId   string     `bson:"senderId"`
	ReceiverId string     `bson:"receiverId"`
	Content    string     `bson:"content"`
	Type       string     `bson:"type"`
	IsRead     bool       `bson:"isRead"`
	IsEdited   bool       `bson:"isEdited"`
	EditedAt   *time.Time `bson:"editedAt,omitempty"`
	CreatedAt  time.Time  `bson:"createdAt"`
}

func (d messageDoc) message() Message {
	return Message(d)
}

// MongoChatRepository stores chat data in three collections of a MongoDB
// database. Room bookkeeping after a message insert is a separate write and
// may fail independently, see ErrRoomNotUpdated.
type MongoChatRepository struct {
	client   *mongo.Client
	users    *mongo.Collection
	rooms    *mongo.Collection
	messages *mongo.Collection
}

func NewMongoChatRepository(ctx context.Context, uri, dbName string) (*MongoChatRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(dbName)
	repo := &MongoChatRepository{
		client:   client,
		users:    db.Collection(usersCollection),
		rooms:    db.Collection(roomsCollection),
		messages: db.Collection(messagesCollection),
	}

	if err := repo.EnsureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	return repo, nil
}

// EnsureIndexes creates the indexes the queries rely on. The unique index
// on pairKey enforces one room per participant pair.
func (db *MongoChatRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := db.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}

	if _, err := db.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "lastActivity", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("rooms indexes: %w", err)
	}

	if _, err := db.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "isRead", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("messages indexes: %w", err)
	}

	return nil
}

func (db *MongoChatRepository) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, readpref.Primary())
}

func (db *MongoChatRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return db.client.Disconnect(ctx)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

// AddUser upserts a user document. It backs the demo seed and tests.
func (db *MongoChatRepository) AddUser(ctx context.Context, u User) error {
	_, err := db.users.ReplaceOne(ctx,
		bson.M{"_id": u.Id},
		userDoc(u),
		options.Replace().SetUpsert(true),
	)
	return err
}

func (db *MongoChatRepository) GetUser(ctx context.Context, id string) (User, error) {
	var doc userDoc
	if err := db.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return User{}, notFound(err)
	}

	return doc.user(), nil
}

func (db *MongoChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var doc userDoc
	if err := db.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc); err != nil {
		return User{}, notFound(err)
	}

	return doc.user(), nil
}

func (db *MongoChatRepository) GetUsers(ctx context.Context, ids []string) ([]User, error) {
	cur, err := db.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]User, 0, len(docs))
	for _, d := range docs {
		users = append(users, d.user())
	}

	return users, nil
}

func (db *MongoChatRepository) findRoom(ctx context.Context, filter bson.M) (Room, error) {
	var doc roomDoc
	if err := db.rooms.FindOne(ctx, filter).Decode(&doc); err != nil {
		return Room{}, notFound(err)
	}

	return doc.room(), nil
}

func (db *MongoChatRepository) FindRoomByPair(ctx context.Context, pairKey string) (Room, error) {
	return db.findRoom(ctx, bson.M{"pairKey": pairKey})
}

func (db *MongoChatRepository) GetRoom(ctx context.Context, id string) (Room, error) {
	return db.findRoom(ctx, bson.M{"_id": id})
}

func (db *MongoChatRepository) CreateRoom(ctx context.Context, room Room) (Room, error) {
	unread := copyUnread(room.UnreadCount)
	for _, p := range room.Participants {
		if _, ok := unread[p]; !ok {
			unread[p] = 0
		}
	}

	doc := roomDoc{
		Id:           room.Id,
		PairKey:      room.PairKey,
		Participants: room.Participants[:],
		LastActivity: room.LastActivity,
		UnreadCount:  encodeUnread(unread),
		CreatedAt:    room.CreatedAt,
	}

	if _, err := db.rooms.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Room{}, ErrDuplicateRoom
		}
		return Room{}, err
	}

	return doc.room(), nil
}

func (db *MongoChatRepository) ListRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastActivity", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := db.rooms.Find(ctx, bson.M{"participants": userId}, opts)
	if err != nil {
		return nil, err
	}

	var docs []roomDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}

	rooms := make([]Room, 0, len(docs))
	for _, d := range docs {
		rooms = append(rooms, d.room())
	}

	return rooms, nil
}

// unreadKey hex encodes a user id so ids containing '.' or '$' stay a
// single field name inside the unreadCount document.
func unreadKey(userId string) string {
	return hex.EncodeToString([]byte(userId))
}

func unreadField(userId string) string {
	return "unreadCount." + unreadKey(userId)
}

func encodeUnread(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for userId, n := range src {
		dst[unreadKey(userId)] = n
	}
	return dst
}

func decodeUnread(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for key, n := range src {
		userId, err := hex.DecodeString(key)
		if err != nil {
			continue
		}
		dst[string(userId)] = n
	}
	return dst
}

// CreateMessage inserts the message and then updates the room. If the room
// update fails the stored message is returned along with ErrRoomNotUpdated.
func (db *MongoChatRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	doc := messageDoc(msg)
	doc.IsRead = false
	doc.IsEdited = false
	doc.EditedAt = nil

	if n, err := db.rooms.CountDocuments(ctx, bson.M{"_id": msg.RoomId}); err != nil {
		return Message{}, err
	} else if n == 0 {
		return Message{}, ErrNotFound
	}

	if _, err := db.messages.InsertOne(ctx, doc); err != nil {
		return Message{}, err
	}

	res, err := db.rooms.UpdateOne(ctx,
		bson.M{"_id": msg.RoomId},
		bson.M{
			"$set": bson.M{"lastMessageId": doc.Id, "lastActivity": doc.CreatedAt},
			"$inc": bson.M{unreadField(doc.ReceiverId): 1},
		},
	)
	if err != nil {
		return doc.message(), fmt.Errorf("%w: %w", ErrRoomNotUpdated, err)
	}
	if res.MatchedCount == 0 {
		return doc.message(), ErrRoomNotUpdated
	}

	return doc.message(), nil
}

func (db *MongoChatRepository) GetMessage(ctx context.Context, id string) (Message, error) {
	var doc messageDoc
	if err := db.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return Message{}, notFound(err)
	}

	return doc.message(), nil
}

func (db *MongoChatRepository) ListMessages(ctx context.Context, roomId string) ([]Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := db.messages.Find(ctx, bson.M{"roomId": roomId}, opts)
	if err != nil {
		return nil, err
	}

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	messages := make([]Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, d.message())
	}

	return messages, nil
}

func (db *MongoChatRepository) UpdateMessageContent(ctx context.Context, id, senderId, content string, editedAt time.Time) (Message, error) {
	var doc messageDoc
	err := db.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "senderId": senderId},
		bson.M{"$set": bson.M{"content": content, "isEdited": true, "editedAt": editedAt}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return Message{}, notFound(err)
	}

	return doc.message(), nil
}

func (db *MongoChatRepository) DeleteMessage(ctx context.Context, id, senderId string) (Message, error) {
	var doc messageDoc
	err := db.messages.FindOneAndDelete(ctx, bson.M{"_id": id, "senderId": senderId}).Decode(&doc)
	if err != nil {
		return Message{}, notFound(err)
	}

	return doc.message(), nil
}

func (db *MongoChatRepository) MarkMessageRead(ctx context.Context, id, receiverId string) (Message, bool, error) {
	var doc messageDoc
	err := db.messages.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "receiverId": receiverId, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.message(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return Message{}, false, err
	}

	if err := db.messages.FindOne(ctx, bson.M{"_id": id, "receiverId": receiverId}).Decode(&doc); err != nil {
		return Message{}, false, notFound(err)
	}

	return doc.message(), false, nil
}

func (db *MongoChatRepository) DecrementUnread(ctx context.Context, roomId, userId string) error {
	field := unreadField(userId)
	_, err := db.rooms.UpdateOne(ctx,
		bson.M{"_id": roomId, field: bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{field: -1}},
	)

	return err
}

func (db *MongoChatRepository) CountUnread(ctx context.Context, roomId, userId string) (int, error) {
	n, err := db.messages.CountDocuments(ctx, bson.M{
		"roomId":     roomId,
		"receiverId": userId,
		"isRead":     false,
	})

	return int(n), err
}

func (db *MongoChatRepository) SetUnread(ctx context.Context, roomId, userId string, count int) error {
	if count < 0 {
		count = 0
	}

	res, err := db.rooms.UpdateOne(ctx,
		bson.M{"_id": roomId},
		bson.M{"$set": bson.M{unreadField(userId): count}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}
