// Package generation turns queued generation jobs into provider chain runs,
// records the outcome and notifies the owner.
package generation

import (
	"time"

	"github.com/leavend/genstudio/internal/queue"
)

// Generation kinds. Each kind has its own queue of the same name.
const (
	KindImage             = "image"
	KindVideo             = "video"
	KindEnhancement       = "enhancement"
	KindTraining          = "training"
	KindLogo              = "logo"
	KindBackgroundRemoval = "background-removal"
	KindStyleTransfer     = "style-transfer"
)

// QueueNotificationFanout carries broadcast notifications.
const QueueNotificationFanout = "notification-fanout"

const defaultRetention = 24 * time.Hour

// Entry binds a kind to its provider capability and default queue policy.
type Entry struct {
	Kind       string
	Capability string
	Queue      queue.Config
}

var catalog = []Entry{
	{Kind: KindImage, Capability: "image", Queue: queueConfig(KindImage, 2, 3, 5*time.Minute, 10*time.Second)},
	{Kind: KindVideo, Capability: "video", Queue: queueConfig(KindVideo, 1, 2, 30*time.Minute, time.Minute)},
	{Kind: KindEnhancement, Capability: "enhancement", Queue: queueConfig(KindEnhancement, 3, 3, 2*time.Minute, 5*time.Second)},
	{Kind: KindTraining, Capability: "training", Queue: queueConfig(KindTraining, 1, 1, 60*time.Minute, 0)},
	{Kind: KindLogo, Capability: "logo", Queue: queueConfig(KindLogo, 3, 3, 3*time.Minute, 5*time.Second)},
	{Kind: KindBackgroundRemoval, Capability: "background-removal", Queue: queueConfig(KindBackgroundRemoval, 3, 3, 2*time.Minute, 5*time.Second)},
	{Kind: KindStyleTransfer, Capability: "style-transfer", Queue: queueConfig(KindStyleTransfer, 2, 3, 5*time.Minute, 10*time.Second)},
}

var fanoutQueue = queueConfig(QueueNotificationFanout, 5, 5, 30*time.Second, 2*time.Second)

func queueConfig(name string, concurrency, attempts int, lock, backoff time.Duration) queue.Config {
	return queue.Config{
		Name:         name,
		Concurrency:  concurrency,
		MaxAttempts:  attempts,
		LockDuration: lock,
		Backoff:      backoff,
		Retention:    defaultRetention,
	}
}

// Catalog returns every generation kind in a stable order.
func Catalog() []Entry {
	return append([]Entry(nil), catalog...)
}

// Lookup finds the entry for kind.
func Lookup(kind string) (Entry, bool) {
	for _, e := range catalog {
		if e.Kind == kind {
			return e, true
		}
	}
	return Entry{}, false
}

// Kinds lists the generation kind names.
func Kinds() []string {
	out := make([]string, 0, len(catalog))
	for _, e := range catalog {
		out = append(out, e.Kind)
	}
	return out
}

// QueueConfigs returns the config of every queue, including the fanout
// queue. override may replace defaults, typically from the environment.
func QueueConfigs(override func(queue.Config) (queue.Config, error)) ([]queue.Config, error) {
	defaults := make([]queue.Config, 0, len(catalog)+1)
	for _, e := range catalog {
		defaults = append(defaults, e.Queue)
	}
	defaults = append(defaults, fanoutQueue)
	if override == nil {
		return defaults, nil
	}
	out := make([]queue.Config, 0, len(defaults))
	for _, def := range defaults {
		cfg, err := override(def)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}
