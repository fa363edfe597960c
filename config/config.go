package config

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	U "enrolltrack/util"
)

const (
	DEVELOPMENT = "development"
	STAGING     = "staging"
	PRODUCTION  = "production"
)

type DBConf struct {
	Host     string
	Port     int
	User     string
	Name     string
	Password string

	MaxOpenConnections     int
	MaxIdleConnections     int
	UseExactConnFromConfig bool
}

// Configuration holds everything the app needs to boot. Built from flags
// in the main and handed to Init before any service is used.
type Configuration struct {
	Env     string
	Port    int
	AppName string

	DBInfo    DBConf
	SentryDSN string

	// Reconciliation engine policy knobs.
	HandoffTTLHours         int
	CompletionLookbackDays  int
	MinMatchConfidence      float64
	TimeDecayHalfLifeHours  float64
	AttributionLookbackDays int
}

// Services holds clients initialized on Init.
type Services struct {
	Db *gorm.DB
}

var configuration *Configuration
var services *Services = &Services{}

func GetConfig() *Configuration {
	return configuration
}

func GetServices() *Services {
	return services
}

func IsDevelopment() bool {
	return configuration.Env == DEVELOPMENT
}

func InitConf(conf *Configuration) {
	configuration = conf
	if configuration.AppName == "" {
		configuration.AppName = "enrolltrack"
	}
}

// Init initializes logging and the db connection from the configuration.
func Init(conf *Configuration) error {
	InitConf(conf)

	initLogging()

	err := initDB(conf.DBInfo)
	if err != nil {
		return errors.Wrap(err, "failed to initialize db")
	}

	return nil
}

func initLogging() {
	log.SetFormatter(&log.JSONFormatter{})
	if IsDevelopment() {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	if configuration.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         configuration.SentryDSN,
			Environment: configuration.Env,
			ServerName:  configuration.AppName,
		})
		if err != nil {
			log.WithError(err).Error("Failed to initialize sentry.")
			return
		}
		log.AddHook(&U.SentryHook{})
	}
}

func initDB(dbConf DBConf) error {
	connStr := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		dbConf.User, dbConf.Password, dbConf.Host, dbConf.Port, dbConf.Name)

	db, err := gorm.Open("mysql", connStr)
	if err != nil {
		return errors.Wrap(err, "failed to connect to db")
	}

	if IsDevelopment() {
		db.LogMode(true)
	}

	maxOpen, maxIdle := 50, 10
	if dbConf.UseExactConnFromConfig {
		maxOpen, maxIdle = dbConf.MaxOpenConnections, dbConf.MaxIdleConnections
	}
	db.DB().SetMaxOpenConns(maxOpen)
	db.DB().SetMaxIdleConns(maxIdle)
	db.DB().SetConnMaxLifetime(30 * time.Minute)

	services.Db = db
	return nil
}

// SafeFlushAllCollectors drains sentry before shutdown.
func SafeFlushAllCollectors() {
	sentry.Flush(2 * time.Second)
}
