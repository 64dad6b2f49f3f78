package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/calendar"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/config"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/database"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/flashcards"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/organizer"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/progress"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/server"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/sessions"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/settings"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/study"
	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "studyflow-api",
		Short: "StudyFlow backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "PostgreSQL connection string")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("session-cookie-name", defaults.GetString("session.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().Bool("session-cookie-secure", defaults.GetBool("session.cookie_secure"), "Mark the session cookie Secure")
	cmd.PersistentFlags().Int("bcrypt-cost", defaults.GetInt("auth.bcrypt_cost"), "bcrypt cost for password hashes")
	cmd.PersistentFlags().StringSlice("cors-allowed-origins", nil, "Origins allowed to call the API with credentials")
	cmd.PersistentFlags().String("assistant-api-key", "", "Anthropic API key (overrides env)")
	cmd.PersistentFlags().String("assistant-model", defaults.GetString("assistant.model"), "Assistant model name")
	cmd.PersistentFlags().Int("assistant-max-tokens", defaults.GetInt("assistant.max_tokens"), "Assistant reply token limit")
	cmd.PersistentFlags().String("stream-ticket-secret", "", "HMAC secret for notification stream tickets (random per process when empty)")
	cmd.PersistentFlags().Duration("stream-ticket-ttl", defaults.GetDuration("realtime.ticket_ttl"), "Lifetime of notification stream tickets")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "session.cookie_name", "session-cookie-name")
	bindFlag(cmd, "session.cookie_secure", "session-cookie-secure")
	bindFlag(cmd, "auth.bcrypt_cost", "bcrypt-cost")
	bindFlag(cmd, "cors.allowed_origins", "cors-allowed-origins")
	bindFlag(cmd, "assistant.api_key", "assistant-api-key")
	bindFlag(cmd, "assistant.model", "assistant-model")
	bindFlag(cmd, "assistant.max_tokens", "assistant-max-tokens")
	bindFlag(cmd, "realtime.ticket_secret", "stream-ticket-secret")
	bindFlag(cmd, "realtime.ticket_ttl", "stream-ticket-ttl")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	deps, err := buildDependencies(db, appConfig, logger)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildDependencies(db *gorm.DB, appConfig config.AppConfig, logger *zap.Logger) (server.Dependencies, error) {
	idProvider := ids.NewUUIDProvider()

	sessionStore, err := sessions.NewStore(sessions.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	directory, err := users.NewDirectory(db)
	if err != nil {
		return server.Dependencies{}, err
	}

	dispatcher := notifications.NewDispatcher()
	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	organizerService, err := organizer.NewService(organizer.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Directory:  directory,
		Notifier:   notificationService,
		Logger:     logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	calendarService, err := calendar.NewService(calendar.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Directory:  directory,
		Notifier:   notificationService,
		Reminders:  organizerService,
		Logger:     logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	flashcardService, err := flashcards.NewService(flashcards.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	progressService, err := progress.NewService(progress.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Notifier:   notificationService,
		Logger:     logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	studyService, err := study.NewService(study.ServiceConfig{
		Database:         db,
		Clock:            time.Now,
		IDProvider:       idProvider,
		SubjectDetachers: []study.SubjectDetacher{notesService, calendarService, flashcardService},
		Completions:      progressService,
		Reminders:        organizerService,
		Logger:           logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	settingsService, err := settings.NewService(settings.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	var responder assistant.Responder
	if appConfig.AssistantAPIKey != "" {
		anthropicResponder, err := assistant.NewAnthropicResponder(
			appConfig.AssistantAPIKey,
			appConfig.AssistantModel,
			int64(appConfig.AssistantMaxTokens),
		)
		if err != nil {
			return server.Dependencies{}, err
		}
		responder = anthropicResponder
	} else {
		logger.Warn("assistant api key not configured; chat replies use the fallback message")
	}

	assistantService, err := assistant.NewService(assistant.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Responder:  responder,
		Sources: assistant.ContextSources{
			Users:      directory,
			Study:      studyService,
			Flashcards: flashcardService,
			Events:     calendarService,
		},
		Logger: logger,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	hasher, err := users.NewBcryptHasher(appConfig.BcryptCost)
	if err != nil {
		return server.Dependencies{}, err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database:        db,
		Clock:           time.Now,
		IDProvider:      idProvider,
		Hasher:          hasher,
		Logger:          logger,
		InviteResolvers: []users.InviteResolver{notesService, calendarService},
		AccountPurgers: []users.AccountPurger{
			sessionStore,
			notesService,
			calendarService,
			notificationService,
			organizerService,
			flashcardService,
			progressService,
			studyService,
			settingsService,
			assistantService,
		},
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	ticketSecret := []byte(appConfig.StreamTicketSecret)
	if len(ticketSecret) == 0 {
		ticketSecret, err = auth.GenerateSecret()
		if err != nil {
			return server.Dependencies{}, err
		}
		logger.Info("stream ticket secret not configured; generated an ephemeral one")
	}
	tickets, err := auth.NewTicketIssuer(auth.TicketIssuerConfig{
		SigningSecret: ticketSecret,
		Issuer:        "studyflow-api",
		Audience:      "studyflow-stream",
		TicketTTL:     appConfig.StreamTicketTTL,
		Clock:         time.Now,
	})
	if err != nil {
		return server.Dependencies{}, err
	}

	return server.Dependencies{
		Users:          userService,
		Sessions:       sessionStore,
		Notes:          notesService,
		Calendar:       calendarService,
		Notifications:  notificationService,
		Realtime:       dispatcher,
		Organizer:      organizerService,
		Flashcards:     flashcardService,
		Progress:       progressService,
		Study:          studyService,
		Settings:       settingsService,
		Assistant:      assistantService,
		Tickets:        tickets,
		CookieName:     appConfig.SessionCookieName,
		CookieSecure:   appConfig.SessionCookieSecure,
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		Logger:         logger,
	}, nil
}
