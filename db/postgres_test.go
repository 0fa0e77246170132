package db

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/itbasis/go-clock"
	"github.com/mww/challenge_board/containers"
)

// A test global db instance to use for all of the postgres tests instead of
// setting up a new one each time. Nil when running with -short.
var testDB DB

// TestMain controls the main for the tests and allows for setup and shutdown of the tests
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	container := containers.NewDBContainer()

	defer func() {
		// Catch all panics to make sure the shutdown is successfully run
		if r := recover(); r != nil {
			if container != nil {
				container.Shutdown()
			}
			fmt.Println("panic")
		}
	}()

	var err error
	testDB, err = New(context.Background(), container.ConnectionString(), clock.New())
	if err != nil {
		fmt.Printf("error connecting to db: %v", err)
		os.Exit(-1)
	}

	code := m.Run()
	container.Shutdown()
	os.Exit(code)
}

func TestPostgres(t *testing.T) {
	if testDB == nil {
		t.Skip("postgres container not started")
	}
	runRepositoryTests(t, func() DB { return testDB })
}
