package util

import (
	"time"

	"github.com/jinzhu/now"
	log "github.com/sirupsen/logrus"
)

// Datetime related utility functions.
// General convention for date functions - suffix Z if utc based, In if timezone is passed.
const (
	DATETIME_FORMAT_YYYYMMDD_HYPHEN string = "2006-01-02"
	DATETIME_FORMAT_DB              string = "2006-01-02 15:04:05"
)

// TimeNowZ Return current time in UTC. Should be used everywhere to avoid local timezone.
func TimeNowZ() time.Time {
	return time.Now().UTC()
}

func TimeNowUnix() int64 {
	return TimeNowZ().Unix()
}

// GetTimeLocationFor Returns time.Location object for given timezone.
// Falls back to UTC on empty or invalid timezone.
func GetTimeLocationFor(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.WithField("timezone", timezone).Error("Invalid timezone. Using UTC.")
		return time.UTC
	}
	return loc
}

// DateRangeIn expands inclusive calendar dates (YYYY-MM-DD) to a
// midnight-to-midnight unix range in the given timezone.
func DateRangeIn(fromDate, toDate string, timezone string) (int64, int64, error) {
	loc := GetTimeLocationFor(timezone)

	from, err := time.ParseInLocation(DATETIME_FORMAT_YYYYMMDD_HYPHEN, fromDate, loc)
	if err != nil {
		return 0, 0, err
	}
	to, err := time.ParseInLocation(DATETIME_FORMAT_YYYYMMDD_HYPHEN, toDate, loc)
	if err != nil {
		return 0, 0, err
	}

	fromUnix := now.New(from).BeginningOfDay().Unix()
	toUnix := now.New(to).EndOfDay().Unix()
	return fromUnix, toUnix, nil
}

// HoursBetween returns fractional hours between two unix timestamps.
func HoursBetween(fromUnix, toUnix int64) float64 {
	return float64(toUnix-fromUnix) / float64(SECONDS_IN_AN_HOUR)
}
