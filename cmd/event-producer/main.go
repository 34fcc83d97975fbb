package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// CombatEvent mirrors the combat event envelope the server ingests
type CombatEvent struct {
	GameID      string `json:"game_id"`
	EncounterID string `json:"encounter_id"`
	TargetID    string `json:"target_id"`
	Kind        string `json:"kind"`
	Value       int    `json:"value"`
	ActorID     string `json:"actor_id"`
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "combat-events", "Kafka topic")
	gameID := flag.String("game", "", "Game ID to target (required)")
	encounterID := flag.String("encounter", "", "Encounter ID to target (required)")
	actorID := flag.String("actor", "dm-1", "Actor ID stamped on each event")
	targets := flag.String("targets", "", "Target IDs (comma-separated participant or instance IDs, required)")
	eventsPerSecond := flag.Int("rate", 20, "Events per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *gameID == "" || *encounterID == "" || *targets == "" {
		flag.Usage()
		os.Exit(2)
	}

	brokerList := strings.Split(*brokers, ",")
	targetList := strings.Split(*targets, ",")

	fmt.Println("Combat event producer")
	fmt.Printf("  Brokers:    %s\n", *brokers)
	fmt.Printf("  Topic:      %s\n", *topic)
	fmt.Printf("  Game:       %s\n", *gameID)
	fmt.Printf("  Encounter:  %s\n", *encounterID)
	fmt.Printf("  Targets:    %d\n", len(targetList))
	fmt.Printf("  Events/sec: %d\n", *eventsPerSecond)
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
	defer producer.Close()

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

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Send message helper. Keyed by game so all of a game's events land on
	// one partition and apply in order.
	sendEvent := func(ev CombatEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(ev.GameID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*eventsPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var sentCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\nDuration reached, shutting down...")
				shutdown()
				return
			}

			ev := CombatEvent{
				GameID:      *gameID,
				EncounterID: *encounterID,
				TargetID:    targetList[rand.Intn(len(targetList))],
				ActorID:     *actorID,
			}

			// 80% damage, 20% initiative reroll
			if rand.Intn(100) < 80 {
				ev.Kind = "hp"
				ev.Value = rand.Intn(40)
			} else {
				ev.Kind = "initiative"
				ev.Value = rand.Intn(20) + 1
			}

			sendEvent(ev)
			atomic.AddInt64(&sentCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Events: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sentCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
