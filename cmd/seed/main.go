package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"medchat/internal/config"
	"medchat/internal/logging"
	"medchat/internal/repository"
	"medchat/internal/service"
)

// Demo accounts used by the frontend during local development
const (
	doctorID        = "doc_1001"
	doctorUsername  = "dr.house"
	patientID       = "pat_2001"
	patientUsername = "jane.patient"
)

func main() {
	cfg := config.Load()
	logger := logging.New("seed", true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongodb")
	}
	defer client.Disconnect(ctx)

	repo := repository.NewRoomRepo(client.Database(cfg.MongoDatabase))
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to create room indexes")
	}
	rooms := service.NewRoomService(repo)

	consultation, err := rooms.CreateDoctorPatientRoom(ctx, service.CreateConsultationInput{
		DoctorID:        doctorID,
		PatientID:       patientID,
		DoctorUsername:  doctorUsername,
		PatientUsername: patientUsername,
	})
	var conflict *service.ConflictError
	switch {
	case errors.As(err, &conflict):
		logger.Info().Str("room_id", conflict.RoomID).Msg("consultation already seeded")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to seed consultation")
	default:
		seedMessages(ctx, logger, rooms, consultation.ID, []service.SendMessageInput{
			{Sender: doctorID, Username: doctorUsername, Text: "Good morning, how are you feeling today?"},
			{Sender: patientID, Username: patientUsername, Text: "Better than yesterday, the fever is gone."},
		})
		logger.Info().Str("room_id", consultation.ID).Msg("seeded consultation")
	}

	lounge, err := rooms.CreateGeneralRoom(ctx, doctorUsername, "Staff lounge")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed general room")
	}
	// Bulk membership without join announcements
	if err := repo.UpdateMembers(ctx, lounge.ID, []string{doctorUsername, "dr.cuddy", "dr.wilson"}); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed room members")
	}
	seedMessages(ctx, logger, rooms, lounge.ID, []service.SendMessageInput{
		{Sender: "dr.cuddy", Username: "dr.cuddy", Text: "Clinic duty rota is posted."},
	})
	logger.Info().Str("room_id", lounge.ID).Msg("seeded general room")
}

func seedMessages(ctx context.Context, logger zerolog.Logger, rooms *service.RoomService, roomID string, msgs []service.SendMessageInput) {
	for _, m := range msgs {
		m.RoomID = roomID
		if _, err := rooms.SendMessage(ctx, m); err != nil {
			logger.Warn().Err(err).Str("room_id", roomID).Msg("failed to seed message")
		}
	}
}
