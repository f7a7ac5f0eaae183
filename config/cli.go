package config

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

var Version string

// Cli holds the worker configuration. Every field maps to a flag in main.go
// and can also be set through the VODFLOW_ environment prefix.
type Cli struct {
	HTTPAddress string
	PromPort    int
	APIToken    string

	DatabaseURL string

	// Object store
	OSEndpoint      string
	OSAccessKey     string
	OSSecretKey     string
	OSUseTLS        bool
	RawBucket       string
	ThumbnailBucket string
	ProcessedBucket string

	// Task broker
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	JobQueue      string

	TempDir        string
	EncoderThreads int

	Ladder Ladder

	Retries RetryPolicies
}

func (c Cli) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// RetryPolicy is the per-stage retry configuration: how many attempts a stage
// gets in total and the fixed delay between them.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

type RetryPolicies struct {
	Prepare   RetryPolicy
	Transcode RetryPolicy
	Segment   RetryPolicy
	Manifest  RetryPolicy
	Upload    RetryPolicy
	Finalize  RetryPolicy
}

func DefaultRetryPolicies() RetryPolicies {
	return RetryPolicies{
		Prepare:   RetryPolicy{MaxAttempts: 3, Backoff: 60 * time.Second},
		Transcode: RetryPolicy{MaxAttempts: 2, Backoff: 60 * time.Second},
		Segment:   RetryPolicy{MaxAttempts: 2, Backoff: 60 * time.Second},
		Manifest:  RetryPolicy{MaxAttempts: 2, Backoff: 60 * time.Second},
		Upload:    RetryPolicy{MaxAttempts: 3, Backoff: 60 * time.Second},
		Finalize:  RetryPolicy{MaxAttempts: 1, Backoff: 0},
	}
}

// CommaSliceFlag parses a comma-separated list into dest.
func CommaSliceFlag(fs *flag.FlagSet, dest *[]string, name string, value []string, usage string) {
	*dest = value
	fs.Func(name, usage, func(s string) error {
		if s == "" {
			*dest = []string{}
			return nil
		}
		*dest = strings.Split(s, ",")
		return nil
	})
}

// LadderFlag parses a comma-separated "label:WxH:bitrate" rendition ladder.
func LadderFlag(fs *flag.FlagSet, dest *Ladder, name string, value Ladder, usage string) {
	*dest = value
	fs.Func(name, usage, func(s string) error {
		l, err := ParseLadder(s)
		if err != nil {
			return err
		}
		*dest = l
		return nil
	})
}

// RetryPolicyFlag parses "attempts:backoff-seconds", e.g. "3:60".
func RetryPolicyFlag(fs *flag.FlagSet, dest *RetryPolicy, name string, value RetryPolicy, usage string) {
	*dest = value
	fs.Func(name, usage, func(s string) error {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid retry policy %q, expected attempts:backoff-seconds", s)
		}
		var attempts, backoffSecs int
		if _, err := fmt.Sscanf(parts[0], "%d", &attempts); err != nil {
			return fmt.Errorf("invalid retry attempts %q: %w", parts[0], err)
		}
		if _, err := fmt.Sscanf(parts[1], "%d", &backoffSecs); err != nil {
			return fmt.Errorf("invalid retry backoff %q: %w", parts[1], err)
		}
		if attempts < 1 {
			return fmt.Errorf("retry attempts must be at least 1")
		}
		*dest = RetryPolicy{MaxAttempts: attempts, Backoff: time.Duration(backoffSecs) * time.Second}
		return nil
	})
}
