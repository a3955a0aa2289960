package main

import (
	"context"
	"fmt"
	"log"
	"time"

	cmdproxy "github.com/TheAlpha16/cmdproxy-go"
	"github.com/valkey-io/valkey-go"
)

func main() {
	ctx := context.Background()

	// Main side: owns the host commands and serves the plugin side
	mainHost, err := cmdproxy.NewMainHostWithValkeyAddress("localhost:6379", "quick-start", valkey.ClientOption{})
	if err != nil {
		log.Fatalf("Failed to create main host: %v", err)
	}
	defer mainHost.Shutdown()

	_, err = mainHost.Commands.RegisterHostCommand(cmdproxy.CommandDescription{ID: "core.time"}, func(ctx context.Context, args ...any) (any, error) {
		return time.Now().Format(time.RFC3339), nil
	})
	if err != nil {
		log.Fatalf("Failed to register host command: %v", err)
	}

	// Plugin side
	extHost, err := cmdproxy.NewExtensionHostWithValkeyAddress("localhost:6379", "quick-start", valkey.ClientOption{})
	if err != nil {
		log.Fatalf("Failed to create extension host: %v", err)
	}
	defer extHost.Shutdown()

	if err := mainHost.Start(ctx); err != nil {
		log.Fatalf("Failed to start main host: %v", err)
	}
	if err := extHost.Start(ctx); err != nil {
		log.Fatalf("Failed to start extension host: %v", err)
	}

	// Give both subscriptions a moment to attach
	time.Sleep(500 * time.Millisecond)

	_, err = extHost.Commands.RegisterCommand(ctx, cmdproxy.CommandDescription{ID: "hello"}, func(ctx context.Context, args ...any) (any, error) {
		name := "World"
		if len(args) > 0 {
			if n, ok := args[0].(string); ok {
				name = n
			}
		}
		return fmt.Sprintf("Hello, %s!", name), nil
	})
	if err != nil {
		log.Fatalf("Failed to register command: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	// Main side executes the plugin command through $executeCommand
	greeting, err := mainHost.Commands.ExecuteCommand(ctx, "hello", []any{"CmdProxy User"})
	if err != nil {
		log.Fatalf("Failed to execute plugin command: %v", err)
	}
	fmt.Println(greeting)

	// Plugin side forwards a command it has no handler for
	now, err := extHost.Commands.ExecuteCommand(ctx, "core.time")
	if err != nil {
		log.Fatalf("Failed to execute host command: %v", err)
	}
	fmt.Printf("Main side time: %v\n", now)

	ids, err := extHost.Commands.GetCommands(ctx, true)
	if err != nil {
		log.Fatalf("Failed to list commands: %v", err)
	}
	fmt.Printf("Commands: %v\n", ids)
	fmt.Println("Quick start example completed!")
}
