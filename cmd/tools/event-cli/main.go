// event-cli читает события мира из NATS JetStream: хвост стрима и сводку по типам.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/annel0/polyview/internal/eventbus"
	"github.com/annel0/polyview/internal/world"
	nats "github.com/nats-io/nats.go"
)

const timeFormat = "2006-01-02T15:04:05Z"

type options struct {
	Types   []string
	Sources []string
	Since   time.Time
	Limit   int
	Follow  bool
	Idle    time.Duration
}

func main() {
	var (
		natsURL = flag.String("nats", nats.DefaultURL, "NATS server URL")
		command = flag.String("cmd", "tail", "Command: tail, stats")
		types   = flag.String("types", "", "Event types filter (comma-separated)")
		sources = flag.String("sources", "", "Event sources filter (comma-separated), e.g. world/overworld")
		since   = flag.String("since", "1h", "Time duration since now (e.g. 1h, 30m) or RFC3339 time")
		limit   = flag.Int("limit", 100, "Maximum number of events")
		follow  = flag.Bool("follow", false, "Follow new events (like tail -f)")
		idle    = flag.Duration("idle", 2*time.Second, "Stop after this long without new events")
	)
	flag.Parse()

	start, err := parseSinceTime(*since, time.Now())
	if err != nil {
		log.Fatalf("❌ Invalid since: %v", err)
	}
	opts := options{
		Types:   parseStringList(*types),
		Sources: parseStringList(*sources),
		Since:   start,
		Limit:   *limit,
		Follow:  *follow,
		Idle:    *idle,
	}

	nc, err := nats.Connect(*natsURL, nats.Name("polyview-event-cli"))
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("❌ JetStream unavailable: %v", err)
	}

	switch *command {
	case "tail":
		err = tailEvents(js, opts)
	case "stats":
		err = showStats(js, opts)
	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats")
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("❌ %s failed: %v", *command, err)
	}
}

func subject(opts options) string {
	if len(opts.Types) == 1 {
		return eventbus.Subject(opts.Types[0])
	}
	return eventbus.Subject(">")
}

// readEvents вызывает fn для каждого подходящего события, начиная с opts.Since
func readEvents(js nats.JetStreamContext, opts options, fn func(ev *eventbus.Envelope) bool) error {
	sub, err := js.SubscribeSync(subject(opts), nats.OrderedConsumer(), nats.StartTime(opts.Since))
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		wait := opts.Idle
		if opts.Follow {
			wait = time.Hour
		}
		msg, err := sub.NextMsg(wait)
		if errors.Is(err, nats.ErrTimeout) {
			if opts.Follow {
				continue
			}
			return nil
		}
		if err != nil {
			return err
		}

		var ev eventbus.Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Broken event in %s: %v\n", msg.Subject, err)
			continue
		}
		if !matches(&ev, opts) {
			continue
		}
		if !fn(&ev) {
			return nil
		}
	}
}

func matches(ev *eventbus.Envelope, opts options) bool {
	return contains(opts.Types, ev.EventType) && contains(opts.Sources, ev.Source)
}

func contains(list []string, v string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// tailEvents выводит события
func tailEvents(js nats.JetStreamContext, opts options) error {
	fmt.Printf("🎬 Tailing events since %s (limit: %d, follow: %v)\n", opts.Since.UTC().Format(timeFormat), opts.Limit, opts.Follow)

	count := 0
	err := readEvents(js, opts, func(ev *eventbus.Envelope) bool {
		fmt.Println(describe(ev))
		count++
		return opts.Follow || count < opts.Limit
	})
	fmt.Printf("\n📊 Total events: %d\n", count)
	return err
}

// showStats выводит количество событий по типам
func showStats(js nats.JetStreamContext, opts options) error {
	fmt.Println("📊 Event statistics")

	opts.Follow = false
	byType := make(map[string]int)
	total := 0
	err := readEvents(js, opts, func(ev *eventbus.Envelope) bool {
		byType[ev.EventType]++
		total++
		return true
	})
	if err != nil {
		return err
	}

	fmt.Printf("Since: %s\n", opts.Since.UTC().Format(timeFormat))
	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	for _, line := range statLines(byType) {
		fmt.Println(line)
	}
	return nil
}

func statLines(byType map[string]int) []string {
	names := make([]string, 0, len(byType))
	for name := range byType {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = fmt.Sprintf("  %s: %d events", name, byType[name])
	}
	return lines
}

// describe форматирует событие в одну строку с деталями полезной нагрузки
func describe(ev *eventbus.Envelope) string {
	head := fmt.Sprintf("[%s] %s [%s] %s", ev.Timestamp.Format("15:04:05"), ev.Source, ev.EventType, ev.ID)

	switch ev.EventType {
	case eventbus.TypeChunkLoaded, eventbus.TypeChunkUnloaded:
		var e world.ChunkEvent
		if ev.Decode(&e) == nil {
			return fmt.Sprintf("%s\n  Chunk: (%d,%d) stored=%v", head, e.X, e.Z, e.Stored)
		}
	case eventbus.TypeBlockSet:
		var e world.BlockEvent
		if ev.Decode(&e) == nil {
			return fmt.Sprintf("%s\n  Block: (%d,%d,%d) %d -> %d moved=%v", head, e.X, e.Y, e.Z, e.Prev, e.State, e.Moved)
		}
	case eventbus.TypePlayerJoined, eventbus.TypePlayerLeft:
		var e world.PlayerEvent
		if ev.Decode(&e) == nil {
			return fmt.Sprintf("%s\n  Player: %s", head, e.ID)
		}
	}
	return head
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m" или абсолютное RFC3339
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		return time.Parse(time.RFC3339, since)
	}

	return from.Add(-duration), nil
}
