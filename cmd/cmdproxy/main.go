package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	cmdproxy "github.com/TheAlpha16/cmdproxy-go"
	"github.com/TheAlpha16/cmdproxy-go/internal/config"
	"github.com/TheAlpha16/cmdproxy-go/internal/otel"
	"github.com/TheAlpha16/cmdproxy-go/shell"
	"github.com/valkey-io/valkey-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "cmdproxy-"+cfg.Role, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		config.Exitf("otel: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("cmdproxy otel shutdown: %v", err)
		}
	}()

	client, err := cmdproxy.NewValkeyClient(cfg.ValkeyAddress, valkey.ClientOption{})
	if err != nil {
		config.Exitf("valkey %s: %v", cfg.ValkeyAddress, err)
	}

	opts := []cmdproxy.Option{
		cmdproxy.WithRequestTimeout(cfg.RequestTimeout),
		cmdproxy.WithMsgBufferSize(cfg.MsgBufferSize),
	}

	switch cfg.Role {
	case config.RoleMain:
		err = runMain(ctx, client, cfg.Channel, opts)
	case config.RoleExtension:
		err = runExtension(ctx, client, cfg.Channel, opts)
	}
	if err != nil {
		config.Exitf("%s: %v", cfg.Role, err)
	}
}

func runMain(ctx context.Context, client valkey.Client, channel string, opts []cmdproxy.Option) error {
	host, err := cmdproxy.NewMainHostWithValkey(client, channel, opts...)
	if err != nil {
		return err
	}
	defer host.Shutdown()

	if _, err := host.Commands.RegisterHostCommand(cmdproxy.CommandDescription{
		ID:       "terminal.spawnShell",
		Label:    "Spawn Shell",
		Category: "Terminal",
	}, spawnShell); err != nil {
		return err
	}
	if _, err := host.Commands.RegisterHostCommand(cmdproxy.CommandDescription{
		ID:    "core.echo",
		Label: "Echo",
	}, func(ctx context.Context, args ...any) (any, error) {
		return args, nil
	}); err != nil {
		return err
	}
	host.Commands.AddKeyBinding(cmdproxy.KeyBinding{Command: "terminal.spawnShell", Keybinding: "ctrl+shift+`"})

	if err := host.Start(ctx); err != nil {
		return err
	}
	log.Printf("main host listening on %s", channel)

	<-ctx.Done()
	return nil
}

// spawnShell starts a shell from options sent as the first argument
func spawnShell(ctx context.Context, args ...any) (any, error) {
	var opts shell.Options
	if len(args) > 0 && args[0] != nil {
		data, err := json.Marshal(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cmdproxy.ErrInvalidCommand, err)
		}
		if err := json.Unmarshal(data, &opts); err != nil {
			return nil, fmt.Errorf("%w: %v", cmdproxy.ErrInvalidCommand, err)
		}
	}

	// The shell outlives the request that started it
	cmd, err := shell.Spawn(context.WithoutCancel(ctx), opts)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("shell %d exited: %v", cmd.Process.Pid, err)
		}
	}()
	return map[string]any{"pid": cmd.Process.Pid, "shell": cmd.Path}, nil
}

func runExtension(ctx context.Context, client valkey.Client, channel string, opts []cmdproxy.Option) error {
	host, err := cmdproxy.NewExtensionHostWithValkey(client, channel, opts...)
	if err != nil {
		return err
	}
	defer host.Shutdown()

	if err := host.Start(ctx); err != nil {
		return err
	}

	registrations := cmdproxy.NewDisposableCollection()
	defer registrations.Dispose()

	greet, err := host.Commands.RegisterCommand(ctx, cmdproxy.CommandDescription{
		ID:    "hello.greet",
		Label: "Say Hello",
	}, func(ctx context.Context, args ...any) (any, error) {
		name := "World"
		if len(args) > 0 {
			if n, ok := args[0].(string); ok {
				name = n
			}
		}
		return fmt.Sprintf("Hello, %s!", name), nil
	})
	if err != nil {
		return err
	}
	registrations.Push(greet)

	safe, err := host.Commands.Converter().ToSafeCommand(ctx, cmdproxy.Command{
		ID:        "hello.greet",
		Title:     "Greet the user",
		Arguments: []any{"plugin user"},
	}, registrations)
	if err != nil {
		return err
	}
	result, err := host.Commands.ExecuteCommand(ctx, safe.ID, safe.Arguments...)
	if err != nil {
		return err
	}
	log.Printf("%s -> %v", safe.ID, result)

	echo, err := host.Commands.ExecuteCommand(ctx, "core.echo", "ping")
	if err != nil {
		return err
	}
	log.Printf("core.echo -> %v", echo)

	ids, err := host.Commands.GetCommands(ctx, true)
	if err != nil {
		return err
	}
	log.Printf("visible commands: %v", ids)

	<-ctx.Done()
	return nil
}
