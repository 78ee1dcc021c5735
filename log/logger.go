package log

import (
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

// Loggers are cached per video UUID so that context added early in a job
// (queue name, source path) sticks to every later log line for that video.
var loggerCache *cache.Cache
var defaultLoggerCacheExpiry = 6 * time.Hour

// Swappable for tests.
var logDestination io.Writer = os.Stderr

func init() {
	loggerCache = cache.New(defaultLoggerCacheExpiry, 10*time.Minute)
}

// Permanently add context to the logger. Any future logging for this video UUID will include this context
func AddContext(videoID string, keyvals ...interface{}) {
	_ = loggerCache.Add(videoID, kitlog.With(getLogger(videoID), redactKeyvals(keyvals...)...), defaultLoggerCacheExpiry)
}

func Log(videoID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(videoID), "msg", message).Log(redactKeyvals(keyvals...)...)
}

// Log in situations where we don't have a video UUID to hand.
// Should be used sparingly and with as much context inserted into the message as possible
func LogNoVideoID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogError(videoID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(videoID), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(redactKeyvals(keyvals...)...)
}

// RedactURL strips the userinfo (AMQP or object store credentials) from a URL
// before it hits the logs
func RedactURL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		// Fully redact URLs we can't parse, in case the secret part survives
		return "REDACTED"
	}
	return u.Redacted()
}

func redactKeyvals(keyvals ...interface{}) []interface{} {
	out := make([]interface{}, 0, len(keyvals))
	for i, kv := range keyvals {
		if i%2 == 1 {
			if s, ok := kv.(string); ok {
				out = append(out, RedactURL(s))
				continue
			}
		}
		out = append(out, kv)
	}
	return out
}

func getLogger(videoID string) kitlog.Logger {
	logger, found := loggerCache.Get(videoID)
	if found {
		return logger.(kitlog.Logger)
	}

	newLogger := kitlog.With(newLogger(), "video_id", videoID)
	err := loggerCache.Add(videoID, newLogger, defaultLoggerCacheExpiry)
	if err != nil {
		_ = newLogger.Log("msg", "error adding logger to cache", "video_id", videoID)
	}
	return newLogger
}

func newLogger() kitlog.Logger {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(logDestination))
	return kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
}
