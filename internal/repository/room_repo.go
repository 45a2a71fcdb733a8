package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medchat/internal/model"
)

// RoomRepo persists rooms together with their embedded message history.
// It never emits realtime events; callers compose that on top.
type RoomRepo interface {
	Create(ctx context.Context, room *model.Room) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	FindByMember(ctx context.Context, username string) ([]*model.Room, error)
	FindActiveDoctorPatient(ctx context.Context, doctorID, patientID string) (*model.Room, error)
	FindActiveByPatient(ctx context.Context, patientID, patientUsername string) (*model.Room, error)
	AppendMessage(ctx context.Context, roomID string, msg *model.Message) error
	AddMember(ctx context.Context, roomID, username, memberID string) (*model.Room, error)
	RemoveMember(ctx context.Context, roomID, username string) (*model.Room, error)
	UpdateMembers(ctx context.Context, roomID string, members []string) error
	UpdateConsultationStatus(ctx context.Context, roomID string, from, to model.ConsultationStatus) (*model.Room, error)
	Delete(ctx context.Context, roomID string) error
}

// MongoRoomRepo stores rooms as documents in the "rooms" collection
type MongoRoomRepo struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewRoomRepo creates a Mongo backed room repository
func NewRoomRepo(db *mongo.Database) *MongoRoomRepo {
	return &MongoRoomRepo{
		collection: db.Collection("rooms"),
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes creates the lookup indexes. The partial unique index backs the
// one-active-consultation-per-pair check against concurrent creates.
func (r *MongoRoomRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "members", Value: 1}}},
		{
			Keys: bson.D{
				{Key: "doctorPatientInfo.doctorId", Value: 1},
				{Key: "doctorPatientInfo.patientId", Value: 1},
			},
			Options: options.Index().
				SetName("active_consultation_pair").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"roomType":                 model.RoomDoctorPatient,
					"doctorPatientInfo.status": model.ConsultationActive,
				}),
		},
	})
	return err
}

func (r *MongoRoomRepo) Create(ctx context.Context, room *model.Room) error {
	if room.IsActiveConsultation() {
		existing, err := r.FindActiveDoctorPatient(ctx, room.DoctorPatientInfo.DoctorID, room.DoctorPatientInfo.PatientID)
		if err == nil {
			return &DuplicateConsultationError{RoomID: existing.ID}
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	now := r.now()
	room.CreatedAt = now
	room.UpdatedAt = now
	// $push needs real arrays, never null
	if room.Members == nil {
		room.Members = []string{}
	}
	if room.MemberIDs == nil {
		room.MemberIDs = []string{}
	}
	if room.Messages == nil {
		room.Messages = []model.Message{}
	}

	_, err := r.collection.InsertOne(ctx, room)
	if mongo.IsDuplicateKeyError(err) && room.IsActiveConsultation() {
		existing, findErr := r.FindActiveDoctorPatient(ctx, room.DoctorPatientInfo.DoctorID, room.DoctorPatientInfo.PatientID)
		if findErr != nil {
			return err
		}
		return &DuplicateConsultationError{RoomID: existing.ID}
	}
	return err
}

func (r *MongoRoomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRoomRepo) FindByMember(ctx context.Context, username string) ([]*model.Room, error) {
	opts := options.Find().
		SetProjection(bson.M{"messages": 0}).
		SetSort(bson.D{{Key: "updatedAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"members": username}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rooms := []*model.Room{}
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *MongoRoomRepo) FindActiveDoctorPatient(ctx context.Context, doctorID, patientID string) (*model.Room, error) {
	return r.findOne(ctx, bson.M{
		"roomType":                    model.RoomDoctorPatient,
		"doctorPatientInfo.doctorId":  doctorID,
		"doctorPatientInfo.patientId": patientID,
		"doctorPatientInfo.status":    model.ConsultationActive,
	})
}

func (r *MongoRoomRepo) FindActiveByPatient(ctx context.Context, patientID, patientUsername string) (*model.Room, error) {
	return r.findOne(ctx, bson.M{
		"roomType":                    model.RoomDoctorPatient,
		"doctorPatientInfo.patientId": patientID,
		"doctorPatientInfo.status":    model.ConsultationActive,
		"members":                     patientUsername,
	})
}

// AppendMessage pushes onto the embedded array in a single update so
// concurrent senders never overwrite each other. User messages only match
// while the author is still a member; a retried clientMsgId matches nothing.
func (r *MongoRoomRepo) AppendMessage(ctx context.Context, roomID string, msg *model.Message) error {
	filter := bson.M{"_id": roomID}
	if msg.Type == model.MessageUser {
		filter["members"] = msg.Username
	}
	if msg.ClientMsgID != "" {
		filter["messages"] = bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"username":    msg.Username,
			"clientMsgId": msg.ClientMsgID,
		}}}
	}

	res, err := r.collection.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updatedAt": r.now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	return r.appendMiss(ctx, roomID, msg)
}

// appendMiss explains why AppendMessage matched no document
func (r *MongoRoomRepo) appendMiss(ctx context.Context, roomID string, msg *model.Message) error {
	if msg.Type != model.MessageUser {
		if msg.ClientMsgID == "" {
			return ErrNotFound
		}
		return r.missOr(ctx, roomID, ErrDuplicateMessage)
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": roomID, "members": msg.Username}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missOr(ctx, roomID, ErrNotMember)
	}
	return ErrDuplicateMessage
}

func (r *MongoRoomRepo) AddMember(ctx context.Context, roomID, username, memberID string) (*model.Room, error) {
	update := bson.M{
		"$push": bson.M{"members": username},
		"$set":  bson.M{"updatedAt": r.now()},
	}
	if memberID != "" {
		update["$addToSet"] = bson.M{"memberIds": memberID}
	}

	room, err := r.findOneAndUpdate(ctx, bson.M{"_id": roomID, "members": bson.M{"$ne": username}}, update)
	if errors.Is(err, ErrNotFound) {
		return nil, r.missOr(ctx, roomID, ErrAlreadyMember)
	}
	return room, err
}

func (r *MongoRoomRepo) RemoveMember(ctx context.Context, roomID, username string) (*model.Room, error) {
	update := bson.M{
		"$pull": bson.M{"members": username},
		"$set":  bson.M{"updatedAt": r.now()},
	}

	room, err := r.findOneAndUpdate(ctx, bson.M{"_id": roomID, "members": username}, update)
	if errors.Is(err, ErrNotFound) {
		return nil, r.missOr(ctx, roomID, ErrNotMember)
	}
	return room, err
}

func (r *MongoRoomRepo) UpdateMembers(ctx context.Context, roomID string, members []string) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{
		"$set": bson.M{"members": uniqueMembers(members), "updatedAt": r.now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRoomRepo) UpdateConsultationStatus(ctx context.Context, roomID string, from, to model.ConsultationStatus) (*model.Room, error) {
	filter := bson.M{
		"_id":                      roomID,
		"roomType":                 model.RoomDoctorPatient,
		"doctorPatientInfo.status": from,
	}
	update := bson.M{"$set": bson.M{
		"doctorPatientInfo.status": to,
		"updatedAt":                r.now(),
	}}

	room, err := r.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, ErrNotFound) {
		return nil, r.missOr(ctx, roomID, ErrStatusConflict)
	}
	return room, err
}

// Delete removes the room and its history in one operation. Missing rooms are not an error.
func (r *MongoRoomRepo) Delete(ctx context.Context, roomID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": roomID})
	return err
}

func (r *MongoRoomRepo) findOne(ctx context.Context, filter bson.M) (*model.Room, error) {
	var room model.Room
	err := r.collection.FindOne(ctx, filter).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// findOneAndUpdate returns the updated room without its message history
func (r *MongoRoomRepo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*model.Room, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"messages": 0})

	var room model.Room
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &room, nil
}

// missOr tells a missing room apart from a failed update precondition
func (r *MongoRoomRepo) missOr(ctx context.Context, roomID string, precondition error) error {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": roomID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return precondition
}
