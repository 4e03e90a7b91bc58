// Package main provides the interactive terminal client for the agent
// backend: it sends requests, follows the event stream for the assigned
// thread and round-trips approval decisions.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/wonhoji-git/ai-agent-commerce-app/internal/api"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/config"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/domain"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/session"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/snapshot"
	"github.com/wonhoji-git/ai-agent-commerce-app/internal/stream"
)

func main() {
	transportFlag := flag.String("transport", "", "stream transport: sse or ws (overrides STREAM_TRANSPORT)")
	flag.Parse()

	log.SetFlags(log.Ltime)
	cfg := config.Load()
	if *transportFlag != "" {
		cfg.StreamTransport = *transportFlag
	}

	snapStore, err := snapshot.NewSQLiteStore(cfg.SnapshotDSN, snapshot.DefaultName)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}
	defer snapStore.Close()

	store := session.NewStore(snapStore)
	store.SetListener(printMessage)

	if snap, err := snapStore.Load(); err != nil {
		log.Printf("WARN: failed to load snapshot: %v", err)
	} else if snap != nil {
		store.Rehydrate(snap)
		fmt.Printf("Restored session %s (%d messages)\n", snap.SessionID, len(snap.Messages))
	}

	backend := api.NewClient(cfg.APIBaseURL, cfg.AuthToken)

	var transport stream.Transport
	switch cfg.StreamTransport {
	case "ws":
		transport = stream.NewWSTransport(cfg.WSBaseURL, cfg.AuthToken)
	default:
		transport = stream.NewSSETransport(cfg.StreamBaseURL, cfg.AuthToken)
	}

	ctrl := session.NewController(store, backend, nil, cfg.SellerNo)
	runner := stream.NewRunner(transport, ctrl, stream.Config{
		BaseDelay:  cfg.ReconnectBaseDelay,
		MaxRetries: cfg.MaxRetries,
	})
	ctrl.SetRunner(runner)

	fmt.Printf("Connected to %s (stream: %s)\n", cfg.APIBaseURL, cfg.StreamTransport)
	fmt.Println("Type a request and press Enter to send.")
	fmt.Println("Commands: /approve [id], /reject [id], /modify [id] <json>, /upload <path>, /reset, /quit")

	repl(ctrl, backend)
	runner.Stop()
}

// repl reads user input line by line and dispatches commands.
func repl(ctrl *session.Controller, backend *api.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()
	var pendingImages []string

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case input == "/quit":
			fmt.Println("Bye!")
			return

		case input == "/reset":
			ctrl.Reset()
			pendingImages = nil
			fmt.Println("Session reset.")

		case strings.HasPrefix(input, "/upload "):
			path := strings.TrimSpace(strings.TrimPrefix(input, "/upload"))
			f, err := os.Open(path)
			if err != nil {
				log.Printf("Failed to open file: %v", err)
				continue
			}
			data, err := backend.UploadImage(ctx, filepath.Base(path), f, "products")
			f.Close()
			if err != nil {
				log.Printf("Upload failed: %v", err)
				continue
			}
			pendingImages = append(pendingImages, data.URL)
			fmt.Printf("Uploaded: %s (attached to the next request)\n", data.URL)

		case strings.HasPrefix(input, "/approve"):
			respond(ctx, ctrl, input, domain.ApprovalStatusApproved, nil)

		case strings.HasPrefix(input, "/reject"):
			respond(ctx, ctrl, input, domain.ApprovalStatusRejected, nil)

		case strings.HasPrefix(input, "/modify"):
			rest := strings.TrimSpace(strings.TrimPrefix(input, "/modify"))
			id, payload := splitIDPayload(ctrl, rest)
			if payload == "" {
				fmt.Println("Usage: /modify [approval_id] <modifications json>")
				continue
			}
			if err := ctrl.Respond(ctx, id, domain.ApprovalStatusModified, json.RawMessage(payload)); err != nil {
				log.Printf("Modify failed: %v", err)
			}

		default:
			if err := ctrl.Send(ctx, input, pendingImages); err != nil {
				log.Printf("Send failed: %v", err)
				continue
			}
			pendingImages = nil
		}
	}
}

// respond handles /approve and /reject; the approval id defaults to the most
// recent pending one.
func respond(ctx context.Context, ctrl *session.Controller, input string, decision domain.ApprovalStatus, modifications json.RawMessage) {
	parts := strings.Fields(input)
	id := ""
	if len(parts) > 1 {
		id = parts[1]
	}
	if id == "" {
		pending := ctrl.Store().PendingApproval()
		if pending == nil {
			fmt.Println("No pending approval.")
			return
		}
		id = pending.Approval.ApprovalID
	}
	if err := ctrl.Respond(ctx, id, decision, modifications); err != nil {
		log.Printf("Approval failed: %v", err)
	}
}

// splitIDPayload separates an optional approval id from the json payload.
func splitIDPayload(ctrl *session.Controller, rest string) (string, string) {
	if strings.HasPrefix(rest, "{") {
		if pending := ctrl.Store().PendingApproval(); pending != nil {
			return pending.Approval.ApprovalID, rest
		}
		return "", rest
	}
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 2 {
		return parts[0], strings.TrimSpace(parts[1])
	}
	return rest, ""
}

// printMessage renders one transcript entry.
func printMessage(m domain.Message) {
	switch m.Type {
	case domain.MessageTypeUserInput:
		fmt.Printf("\n[you] %s\n", m.Content)
	case domain.MessageTypeThought:
		fmt.Printf("[%s] 💭 %s\n", m.Agent, m.Thought)
	case domain.MessageTypeAgentStatus:
		fmt.Printf("[%s] %s %s\n", m.Agent, m.AgentStatus, m.Task)
	case domain.MessageTypeProgress:
		fmt.Printf("[%s] %s %.0f%%: %s\n", m.Agent, m.Step, m.Progress, m.Content)
	case domain.MessageTypeApproval:
		if m.Responded {
			fmt.Printf("[approval %s] resolved: %s\n", m.Approval.ApprovalID, m.Response.Decision)
		} else {
			fmt.Printf("[approval %s] %s from %s — /approve or /reject\n",
				m.Approval.ApprovalID, m.Approval.Type, m.Approval.Agent)
		}
	case domain.MessageTypeResult:
		fmt.Printf("\n=== Result ===\n%s\n", m.Summary)
	case domain.MessageTypeError:
		fmt.Printf("[error %s] %s\n", m.Code, m.Content)
	case domain.MessageTypeInfo:
		fmt.Printf("[info] %s\n", m.Content)
	}
}
