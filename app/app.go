package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"enrolltrack/analytics"
	C "enrolltrack/config"
	"enrolltrack/handler"
	"enrolltrack/handoff"
	"enrolltrack/model/store"
	"enrolltrack/model/store/memsql"
	"enrolltrack/task"
)

func main() {
	env := flag.String("env", C.DEVELOPMENT, "")
	port := flag.Int("port", 8090, "")

	dbHost := flag.String("db_host", "localhost", "")
	dbPort := flag.Int("db_port", 3306, "")
	dbUser := flag.String("db_user", "autometa", "")
	dbName := flag.String("db_name", "autometa", "")
	dbPass := flag.String("db_pass", "@ut0me7a", "")
	autoMigrate := flag.Bool("auto_migrate", false,
		"Run schema auto migration on boot.")

	sentryDSN := flag.String("sentry_dsn", "", "Sentry DSN")

	handoffTTLHours := flag.Int("handoff_ttl_hours", 72,
		"Hours after which an open handoff counts as expired.")
	completionLookbackDays := flag.Int("completion_lookback_days", 30,
		"Fuzzy match window for imported completions.")
	minMatchConfidence := flag.Float64("min_match_confidence", 0.5,
		"Matches below this confidence are left unmatched.")
	timeDecayHalfLife := flag.Float64("time_decay_half_life_hours", 168,
		"Half life used by the time_decay attribution model.")
	attributionLookbackDays := flag.Int("attribution_lookback_days", 0,
		"Touches older than this carry no credit. 0 disables the bound.")

	flag.Parse()

	conf := &C.Configuration{
		Env:     *env,
		Port:    *port,
		AppName: "enrolltrack",
		DBInfo: C.DBConf{
			Host:     *dbHost,
			Port:     *dbPort,
			User:     *dbUser,
			Name:     *dbName,
			Password: *dbPass,
		},
		SentryDSN:               *sentryDSN,
		HandoffTTLHours:         *handoffTTLHours,
		CompletionLookbackDays:  *completionLookbackDays,
		MinMatchConfidence:      *minMatchConfidence,
		TimeDecayHalfLifeHours:  *timeDecayHalfLife,
		AttributionLookbackDays: *attributionLookbackDays,
	}

	if err := C.Init(conf); err != nil {
		log.WithError(err).Fatal("Failed to initialize config.")
	}
	defer C.SafeFlushAllCollectors()

	db := C.GetServices().Db
	defer db.Close()

	if *autoMigrate {
		if err := memsql.New(db).AutoMigrate(); err != nil {
			log.WithError(err).Fatal("Failed to auto migrate schema.")
		}
	}

	appStore := store.GetStore(db)
	lifecycle := handoff.NewLifecycle(appStore,
		time.Duration(conf.HandoffTTLHours)*time.Hour)
	importer := task.NewCompletionImporter(appStore, lifecycle,
		task.ImportConfig{
			LookbackDays:       conf.CompletionLookbackDays,
			MinMatchConfidence: conf.MinMatchConfidence,
		})
	attributionConf := &analytics.Config{
		LookbackDays:           conf.AttributionLookbackDays,
		TimeDecayHalfLifeHours: conf.TimeDecayHalfLifeHours,
	}

	if !C.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	handler.InitAppRoutes(r, &handler.API{
		Store:           appStore,
		Lifecycle:       lifecycle,
		Importer:        importer,
		AttributionConf: attributionConf,
	})

	log.WithFields(log.Fields{"port": conf.Port, "env": conf.Env}).
		Info("Starting enrolltrack server.")
	if err := r.Run(fmt.Sprintf(":%d", conf.Port)); err != nil {
		log.WithError(err).Fatal("Server exited.")
	}
}
