package log

import (
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCache *cache.Cache
var defaultLoggerCacheExpiry = 6 * time.Hour

func init() {
	loggerCache = cache.New(defaultLoggerCacheExpiry, 10*time.Minute)
}

// AddContext permanently attaches key/value context to the logger for a video.
// All future logging for this video ID will include it.
func AddContext(videoID string, keyvals ...interface{}) {
	_ = loggerCache.Add(videoID, kitlog.With(getLogger(videoID), keyvals...), defaultLoggerCacheExpiry)
}

func Log(videoID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(videoID), "msg", message).Log(keyvals...)
}

// LogNoVideoID logs in situations where no video is in scope (startup,
// queue polling). Should be used sparingly and with as much context inserted
// into the message as possible.
func LogNoVideoID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(keyvals...)
}

func LogError(videoID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(videoID), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(keyvals...)
}

func getLogger(videoID string) kitlog.Logger {
	logger, found := loggerCache.Get(videoID)
	if found {
		return logger.(kitlog.Logger)
	}

	videoLogger := kitlog.With(newLogger(), "video_id", videoID)
	err := loggerCache.Add(videoID, videoLogger, defaultLoggerCacheExpiry)
	if err != nil {
		_ = videoLogger.Log("msg", "error adding logger to cache", "video_id", videoID)
	}
	return videoLogger
}

func newLogger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}
