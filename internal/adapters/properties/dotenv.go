// Package properties persists resolved port properties so that tools started
// after the batch can pick them up.
package properties

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotenvSink writes properties as KEY=value lines to a dotenv file. Entries
// already present in the file are kept unless overwritten.
type DotenvSink struct {
	path string
}

func NewDotenvSink(path string) *DotenvSink {
	return &DotenvSink{path: path}
}

func (s *DotenvSink) Write(props map[string]string) error {
	merged := make(map[string]string, len(props))
	existing, err := godotenv.Read(s.path)
	switch {
	case err == nil:
		for k, v := range existing {
			merged[k] = v
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	for k, v := range props {
		merged[k] = v
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := godotenv.Write(merged, s.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
