package claims

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/m3rciful/claimdesk/core/logger"
)

// CodePool accepts new one-time codes and reports how many were new.
type CodePool interface {
	Add(ctx context.Context, codes []string) (int, error)
}

// ReadCodes parses one code per line. Blank lines and lines starting with #
// are skipped; duplicates keep their first occurrence.
func ReadCodes(r io.Reader) ([]string, error) {
	var (
		codes []string
		seen  = map[string]struct{}{}
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		codes = append(codes, line)
	}
	return codes, sc.Err()
}

// LoadCodes imports the codes file into the pool. A missing path is a no-op.
func LoadCodes(ctx context.Context, path string, pool CodePool) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.LogEvent(ctx, logger.CLAIM, slog.LevelWarn, "codes.import",
			slog.String("status", "missing"),
			slog.String("path", path),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open codes file: %w", err)
	}
	defer f.Close()

	codes, err := ReadCodes(f)
	if err != nil {
		return fmt.Errorf("read codes file: %w", err)
	}
	added, err := pool.Add(ctx, codes)
	if err != nil {
		return err
	}
	logger.LogEvent(ctx, logger.CLAIM, slog.LevelInfo, "codes.import",
		slog.String("path", path),
		slog.Int("read", len(codes)),
		slog.Int("added", added),
	)
	return nil
}
