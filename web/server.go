package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/mww/challenge_board/controller"
	"github.com/unrolled/render"
)

type Server struct {
	server *http.Server
}

// NewServer creates the JSON api server. admins holds the basic auth
// credentials for the /admin routes, user name to password.
func NewServer(port int, ctrl controller.C, admins map[string]string) (*Server, error) {
	if len(admins) == 0 {
		return nil, fmt.Errorf("at least one admin user is required")
	}

	render := newRender()
	router := getRouter(ctrl, render, admins)

	s := &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		},
	}
	return s, nil
}

func (s *Server) ListenAndServe(shutdown chan bool, wg *sync.WaitGroup) {
	go func() {
		defer wg.Done()

		// Wait for the shutdown signal and safely close the server.
		<-shutdown

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(ctx); err != nil {
			log.Fatalf("fatal error shutting down server: %v", err)
		}
	}()

	log.Printf("web server is listening on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatalf("fatal error with server: %v", err)
	}
}

func newRender() *render.Render {
	return render.New(render.Options{
		IndentJSON:    true,
		UnEscapeHTML:  true,
		StreamingJSON: false,
	})
}

// dateFormatter formats an optional timestamp for the api, nil is "never".
func dateFormatter(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
