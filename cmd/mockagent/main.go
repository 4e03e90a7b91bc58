// Package main runs the scripted mock agent backend for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/mockagent"
)

func main() {
	port := flag.Int("port", 8000, "HTTP port to listen on")
	frameDelay := flag.Duration("frame-delay", 400*time.Millisecond, "delay between scenario frames")
	flag.Parse()

	log.Printf("Starting mock agent backend on :%d", *port)

	policy, err := mockagent.NewPolicyEngine(context.Background(), mockagent.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	srv := mockagent.NewServer(policy, *frameDelay)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	srv.RegisterRoutes(e)

	if err := e.Start(fmt.Sprintf(":%d", *port)); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
