package cmdproxy

import (
	"fmt"
	"sort"
	"sync"
)

// ArgumentMapper converts plugin-side arguments into the shape the main side
// expects for the mapped command.
type ArgumentMapper func(args []any) ([]any, error)

type knownCommand struct {
	remote  CommandID
	mapArgs ArgumentMapper
}

// KnownCommands translates plugin-side command ids into their main-side
// equivalents before a command is forwarded.
type KnownCommands struct {
	mu      sync.RWMutex
	entries map[CommandID]knownCommand
}

func NewKnownCommands() *KnownCommands {
	return &KnownCommands{entries: make(map[CommandID]knownCommand)}
}

// DefaultKnownCommands returns a table seeded with the editor aliases plugins
// commonly use.
func DefaultKnownCommands() *KnownCommands {
	k := NewKnownCommands()
	_ = k.Register("workbench.action.files.save", "core.save", nil)
	_ = k.Register("workbench.action.files.saveAll", "core.saveAll", nil)
	_ = k.Register("workbench.action.closeActiveEditor", "core.close", nil)
	_ = k.Register("workbench.action.terminal.new", "terminal.new", nil)
	_ = k.Register("vscode.open", "editor.open", requireStringArg)
	_ = k.Register("vscode.openFolder", "workspace.open", requireStringArg)
	return k
}

func requireStringArg(args []any) ([]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing resource argument", ErrInvalidCommand)
	}
	if _, ok := args[0].(string); !ok {
		return nil, fmt.Errorf("%w: resource argument must be a string, got %T", ErrInvalidCommand, args[0])
	}
	return args, nil
}

func (k *KnownCommands) Register(local, remote CommandID, mapper ArgumentMapper) error {
	if local == "" || remote == "" {
		return ErrInvalidCommand
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.entries[local]; exists {
		return fmt.Errorf("known command %q: %w", local, ErrDuplicateCommand)
	}
	k.entries[local] = knownCommand{remote: remote, mapArgs: mapper}
	return nil
}

func (k *KnownCommands) Has(id CommandID) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.entries[id]
	return ok
}

// Map returns the main-side id and arguments for id. Ids not in the table are
// returned unchanged with mapped set to false.
func (k *KnownCommands) Map(id CommandID, args []any) (CommandID, []any, bool, error) {
	k.mu.RLock()
	entry, ok := k.entries[id]
	k.mu.RUnlock()
	if !ok {
		return id, args, false, nil
	}
	if entry.mapArgs == nil {
		return entry.remote, args, true, nil
	}
	mapped, err := entry.mapArgs(args)
	if err != nil {
		return "", nil, true, fmt.Errorf("map %s: %w", id, err)
	}
	return entry.remote, mapped, true, nil
}

// IDs returns the plugin-side ids in the table, sorted
func (k *KnownCommands) IDs() []CommandID {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ids := make([]CommandID, 0, len(k.entries))
	for id := range k.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
