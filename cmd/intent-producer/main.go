package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/roblox-funapp/internal/kafka"
	"github.com/roblox-funapp/internal/patch"
)

var demoColors = []string{
	"#ff5252", "#4caf50", "#2196f3", "#ffeb3b", "#9c27b0",
	"#ff9800", "#00bcd4", "#e91e63", "#8bc34a", "#795548",
}

var demoShapes = []string{"rect", "circle", "triangle"}

var demoPowerUps = []string{"shield", "speed", "doubleJump", "slowMotion"}

// setFlags collects repeated -set key=value flags
type setFlags []string

func (s *setFlags) String() string { return strings.Join(*s, ",") }

func (s *setFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	*s = append(*s, v)
	return nil
}

// randomIntent builds a plausible edit for demo traffic
func randomIntent() patch.Intent {
	switch rand.IntN(3) {
	case 0:
		return patch.PropertyChange{
			Key:           "dinoColor",
			RawValue:      demoColors[rand.IntN(len(demoColors))],
			StringLiteral: true,
		}
	case 1:
		return patch.AddObstacle{Obstacle: patch.Obstacle{
			Width:  float64(20 + rand.IntN(60)),
			Height: float64(20 + rand.IntN(60)),
			Color:  demoColors[rand.IntN(len(demoColors))],
			Shape:  demoShapes[rand.IntN(len(demoShapes))],
		}.WithDefaults()}
	default:
		return patch.AddPowerUp{PowerUp: patch.PowerUp{
			Type: demoPowerUps[rand.IntN(len(demoPowerUps))],
		}.WithDefaults()}
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "game-edit-intents", "Kafka topic")
	sessionID := flag.String("session", "default", "Game session to edit")
	var sets setFlags
	flag.Var(&sets, "set", "CONFIG property as key=value (repeatable)")
	obstacleColor := flag.String("obstacle", "", "Add an obstacle with this color")
	obstacleShape := flag.String("shape", "rect", "Shape of the added obstacle")
	powerUp := flag.String("power-up", "", "Add a power-up of this type")
	code := flag.String("code", "", "Replace the custom code block")
	demoSessions := flag.Int("demo-sessions", 0, "Send random edits to this many demo sessions instead")
	updatesPerSecond := flag.Int("rate", 5, "Demo edits per second")
	duration := flag.Duration("duration", 0, "Demo duration (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🦖 Game Edit Intent Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	if *demoSessions > 0 {
		fmt.Printf("  Demo sessions:    %d\n", *demoSessions)
		fmt.Printf("  Edits/sec:        %d\n", *updatesPerSecond)
	} else {
		fmt.Printf("  Session:          %s\n", *sessionID)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	finish := func() {
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Send message helper; the session id keys the message so one session's
	// edits stay ordered on a single partition
	sendMessage := func(session string, intents ...patch.Intent) {
		data, err := kafka.EncodeMessage(session, intents...)
		if err != nil {
			log.Printf("Failed to encode message: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(session),
			Value: sarama.ByteEncoder(data),
		}
	}

	if *demoSessions <= 0 {
		var intents []patch.Intent
		for _, kv := range sets {
			key, value, _ := strings.Cut(kv, "=")
			intents = append(intents, patch.PropertyChange{
				Key:           key,
				RawValue:      value,
				StringLiteral: strings.HasPrefix(value, "#"),
			})
		}
		if *obstacleColor != "" {
			intents = append(intents, patch.AddObstacle{Obstacle: patch.Obstacle{
				Color: *obstacleColor,
				Shape: *obstacleShape,
			}.WithDefaults()})
		}
		if *powerUp != "" {
			intents = append(intents, patch.AddPowerUp{PowerUp: patch.PowerUp{Type: *powerUp}.WithDefaults()})
		}
		if *code != "" {
			intents = append(intents, patch.CustomCodeBlock{Code: *code})
		}
		if len(intents) == 0 {
			fmt.Println("Nothing to send: use -set, -obstacle, -power-up or -code")
			finish()
			os.Exit(2)
		}

		sendMessage(*sessionID, intents...)
		fmt.Printf("Sent %d intents to session %q\n", len(intents), *sessionID)
		finish()
		return
	}

	// Demo mode: continuous random edits
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	interval := time.Second / time.Duration(max(*updatesPerSecond, 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var editCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			finish()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				finish()
				return
			}

			session := fmt.Sprintf("demo-%d", rand.IntN(*demoSessions)+1)
			sendMessage(session, randomIntent())
			atomic.AddInt64(&editCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Edits: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&editCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
