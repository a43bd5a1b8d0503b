package httpserver

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"mchat/internal/config"
	"mchat/internal/domain"
	"mchat/internal/realtime"
	"mchat/internal/security"
	"mchat/internal/service"
	"mchat/internal/store/postgres"
	"mchat/internal/store/sqlite"
)

// repos bundles the store-specific repository implementations behind the
// domain interfaces.
type repos struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	resets        domain.PasswordResetRepository
}

func buildRepos(driver string, db *sql.DB) repos {
	if driver == "sqlite" {
		return repos{
			users:         sqlite.NewUserRepo(db),
			conversations: sqlite.NewConversationRepo(db),
			participants:  sqlite.NewParticipantRepo(db),
			messages:      sqlite.NewMessageRepo(db),
			resets:        sqlite.NewPasswordResetRepo(db),
		}
	}
	return repos{
		users:         postgres.NewUserRepo(db),
		conversations: postgres.NewConversationRepo(db),
		participants:  postgres.NewParticipantRepo(db),
		messages:      postgres.NewMessageRepo(db),
		resets:        postgres.NewPasswordResetRepo(db),
	}
}

// NewRouter constructs the main HTTP router and wires routes, services, and
// middleware.
func NewRouter(
	cfg *config.Config,
	db *sql.DB,
	log zerolog.Logger,
	tokenSvc *security.TokenService,
	passwordHasher *security.PasswordHasher,
	encryptor *security.Encryptor,
	publisher realtime.Publisher,
	mailer service.ResetMailer,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	rp := buildRepos(cfg.DBDriver, db)

	authSvc := service.NewAuthService(
		rp.users, rp.resets, tokenSvc, passwordHasher, mailer,
		log, cfg.FrontendBaseURL, time.Duration(cfg.ResetTokenMinutes)*time.Minute,
	)
	userSvc := service.NewUserService(rp.users)
	convSvc := service.NewConversationService(rp.conversations, rp.participants, rp.users, publisher, log)
	msgSvc := service.NewMessageService(
		rp.conversations, rp.participants, rp.messages, rp.users,
		encryptor, publisher, log, cfg.MaxMessagesPerConversation,
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		// No auth required.
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
			r.Post("/forgot-password", handleForgotPassword(authSvc))
			r.Post("/reset-password", handleResetPassword(authSvc))
		})

		// Authenticated routes.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, authSvc))

			r.Post("/auth/logout", handleLogout(authSvc))
			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(userSvc))
				r.Get("/online", handleListOnlineUsers(userSvc))
				r.Get("/{userID}", handleGetUser(userSvc))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", handleCreateConversation(convSvc))
				r.Get("/", handleListConversations(convSvc))

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", handleGetConversation(convSvc))
					r.Patch("/", handleUpdateConversation(convSvc))
					r.Delete("/", handleDeleteConversation(convSvc))

					r.Post("/leave", handleLeaveConversation(convSvc))
					r.Post("/read", handleMarkConversationRead(msgSvc))

					r.Route("/participants", func(r chi.Router) {
						r.Post("/", handleAddParticipants(convSvc))
						r.Delete("/{userID}", handleRemoveParticipant(convSvc))
						r.Put("/{userID}/role", handleUpdateParticipantRole(convSvc))
						r.Put("/{userID}/mute", handleSetMuteStatus(convSvc))
					})

					r.Route("/messages", func(r chi.Router) {
						r.Get("/", handleListMessages(msgSvc))
						r.Post("/", handleCreateMessage(msgSvc))
						r.Put("/{messageID}", handleUpdateMessage(msgSvc))
						r.Delete("/{messageID}", handleDeleteMessage(msgSvc))
					})
				})
			})

			r.Mount("/uploads", UploadRoutes(cfg))

			if pp, ok := publisher.(*realtime.PusherPublisher); ok {
				r.Post("/pusher/auth", handlePusherAuth(pp, convSvc))
			}
		})
	})

	return r
}
