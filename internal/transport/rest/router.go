package rest

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"medchat/internal/relay"
	"medchat/internal/service"
	"medchat/internal/transport/rest/handler"
	"medchat/internal/transport/rest/middleware"
	"medchat/internal/transport/ws"
)

// Container holds all dependencies for the chat router
type Container struct {
	ChatService    *service.ChatService
	WSHandler      *ws.Handler
	Logger         zerolog.Logger
	AllowedOrigins string
	RequestTimeout time.Duration
}

// NewRouter creates the chat service router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	roomHandler := handler.NewRoomHandler(c.ChatService, c.Logger)
	messageHandler := handler.NewMessageHandler(c.ChatService, c.Logger)
	consultationHandler := handler.NewConsultationHandler(c.ChatService, c.Logger)

	r.Use(chimw.RequestID, chimw.Recoverer)
	r.Use(middleware.Logger(c.Logger), middleware.Metrics("chat"))
	r.Use(cors(c.AllowedOrigins))

	registerOps(r)
	r.HandleFunc("/ws", c.WSHandler.ServeWS).Methods("GET")

	chat := r.PathPrefix("/chat").Subrouter()
	chat.Use(middleware.Timeout(c.RequestTimeout))

	chat.HandleFunc("/test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"Chat Service is running."}`))
	}).Methods("GET")

	// Rooms and membership
	chat.HandleFunc("/createRoom", roomHandler.Create).Methods("POST", "OPTIONS")
	chat.HandleFunc("/joinRoom", roomHandler.Join).Methods("POST", "OPTIONS")
	chat.HandleFunc("/leaveRoom", roomHandler.Leave).Methods("POST", "OPTIONS")
	chat.HandleFunc("/deleteRoom", roomHandler.Delete).Methods("POST", "OPTIONS")
	chat.HandleFunc("/rooms", roomHandler.List).Methods("GET", "OPTIONS")

	// Messages
	chat.HandleFunc("/messages", messageHandler.Send).Methods("POST", "OPTIONS")
	chat.HandleFunc("/room/{roomId}", messageHandler.List).Methods("GET", "OPTIONS")

	// Doctor-patient consultations
	chat.HandleFunc("/doctor-patient/create", consultationHandler.Create).Methods("POST", "OPTIONS")
	chat.HandleFunc("/doctor-patient/room", consultationHandler.Get).Methods("GET", "OPTIONS")
	chat.HandleFunc("/patient/room", consultationHandler.PatientRoom).Methods("GET", "OPTIONS")
	chat.HandleFunc("/consultation/complete", consultationHandler.Complete).Methods("POST", "OPTIONS")

	return r
}

// NotifierContainer holds the notification gateway's dependencies
type NotifierContainer struct {
	Gateway        *relay.Gateway
	WSHandler      *ws.NotifyHandler
	Logger         zerolog.Logger
	AllowedOrigins string
	RequestTimeout time.Duration
}

// NewNotifierRouter creates the notification gateway router
func NewNotifierRouter(c *NotifierContainer) http.Handler {
	r := mux.NewRouter()

	notificationHandler := handler.NewNotificationHandler(c.Gateway, c.Logger)

	r.Use(chimw.RequestID, chimw.Recoverer)
	r.Use(middleware.Logger(c.Logger), middleware.Metrics("notifier"))
	r.Use(cors(c.AllowedOrigins))

	registerOps(r)
	r.HandleFunc("/ws", c.WSHandler.ServeWS).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(middleware.Timeout(c.RequestTimeout))
	api.HandleFunc("/notification/send", notificationHandler.Send).Methods("POST", "OPTIONS")
	api.HandleFunc("/send", notificationHandler.Send).Methods("POST", "OPTIONS")
	api.HandleFunc("/notifications/pending", notificationHandler.Pending).Methods("GET", "OPTIONS")

	return r
}

// registerOps mounts health check and metrics
func registerOps(r *mux.Router) {
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

func cors(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
