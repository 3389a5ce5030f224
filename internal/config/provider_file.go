package config

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FileProvider resolves secret references as file paths, the layout used by
// mounted container secrets.
type FileProvider struct {
	readFile func(name string) ([]byte, error)
}

// NewFileProvider creates a FileProvider backed by the OS filesystem.
func NewFileProvider() *FileProvider {
	return &FileProvider{readFile: os.ReadFile}
}

// Resolve reads each path. Trailing newlines are trimmed. A path that cannot
// be read fails the whole batch.
func (p *FileProvider) Resolve(ctx context.Context, refs []string) (map[string]string, error) {
	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := p.readFile(ref)
		if err != nil {
			return nil, fmt.Errorf("reading secret file %s: %w", ref, err)
		}
		out[ref] = strings.TrimRight(string(data), "\r\n")
	}
	return out, nil
}
