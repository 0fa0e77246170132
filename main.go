package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/itbasis/go-clock"
	"github.com/joho/godotenv"
	"github.com/mww/challenge_board/controller"
	"github.com/mww/challenge_board/db"
	"github.com/mww/challenge_board/mail"
	"github.com/mww/challenge_board/scoring"
	"github.com/mww/challenge_board/web"
)

func main() {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Error loading .env file: %v", err)
	}
	connString := os.Getenv("POSTGRES_CONN_STR")

	portNum := envInt("PORT", 3000) // 3000 is the default
	sweepInterval := envDuration("SWEEP_INTERVAL", 15*time.Minute)

	cfg := scoring.DefaultConfig()
	cfg.Elo.KLow = envInt("ELO_K_LOW", cfg.Elo.KLow)
	cfg.Elo.KMedium = envInt("ELO_K_MEDIUM", cfg.Elo.KMedium)
	cfg.Elo.KHigh = envInt("ELO_K_HIGH", cfg.Elo.KHigh)
	cfg.Glicko.RatingPeriod = envDuration("GLICKO_RATING_PERIOD", cfg.Glicko.RatingPeriod)
	cfg.Glicko.DevianceDecay = envFloat("GLICKO_DEVIANCE_DECAY", cfg.Glicko.DevianceDecay)
	cfg.Glicko.MaxDeviance = envInt("GLICKO_MAX_DEVIANCE", cfg.Glicko.MaxDeviance)
	cfg.Glicko.NoHistoryPeriods = envInt("GLICKO_NO_HISTORY_PERIODS", cfg.Glicko.NoHistoryPeriods)

	adminUser := os.Getenv("ADMIN_USER")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminUser == "" || adminPassword == "" {
		log.Fatalf("ADMIN_USER and ADMIN_PASSWORD are required")
	}

	clock := clock.New()

	var store db.DB
	if connString == "" {
		log.Printf("POSTGRES_CONN_STR is not set, using an in memory database")
		store = db.NewMemory(clock)
	} else {
		store, err = db.New(context.Background(), connString, clock)
		if err != nil {
			log.Fatalf("cannot connect to DB: %v", err)
		}
	}

	var sender mail.Sender
	if relayURL := os.Getenv("MAIL_RELAY_URL"); relayURL != "" {
		sender, err = mail.NewRelaySender(relayURL)
		if err != nil {
			log.Fatalf("error creating mail relay sender: %v", err)
		}
	} else {
		sender = mail.NewLogSender(log.New(os.Stdout, "mail: ", log.LstdFlags))
	}

	ctrl, err := controller.New(clock, store, sender, cfg)
	if err != nil {
		log.Fatalf("error creating a new controller: %v", err)
	}

	server, err := web.NewServer(portNum, ctrl, map[string]string{adminUser: adminPassword})
	if err != nil {
		log.Fatalf("error creating new web server: %v", err)
	}

	shutdown := make(chan bool)
	wg := &sync.WaitGroup{}

	// Setup a handler to catch ctrl-c signals and properly shutdown everything.
	intChannel := make(chan os.Signal, 2)
	signal.Notify(intChannel, os.Interrupt)
	go func() {
		<-intChannel
		close(shutdown)

		if err := waitTimeout(wg, 10*time.Second); err != nil {
			log.Printf("timed out waiting for proper shutdown")
			os.Exit(255)
		}
	}()

	// Resolve expired and verified matches in the background
	wg.Add(1)
	go ctrl.RunPeriodicSweeps(sweepInterval, shutdown, wg)

	// Start the web server
	wg.Add(1)
	go server.ListenAndServe(shutdown, wg)

	// Wait for everything to stop.
	wg.Wait()
	log.Printf("server shutdown")
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("error parsing %s: %v", name, err)
	}
	return i
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("error parsing %s: %v", name, err)
	}
	return f
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("error parsing %s: %q is not a positive duration", name, v)
	}
	return d
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) error {
	c := make(chan any)
	go func() {
		defer close(c)
		wg.Wait()
	}()

	select {
	case <-c:
		return nil // completed normally
	case <-time.After(timeout):
		return errors.New("timed out waiting")
	}
}
