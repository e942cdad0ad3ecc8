// Command gridlab-client is a line-oriented demo driver for a grid
// room: connect, then type the CLI surface the spec calls out as
// non-normative ("add <id> <x> <y> <w> <h>", "mv <id> <x> <y>",
// "rm <id>", "print") and watch the shared grid update.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/zap"

	"github.com/adred-codev/gridlab/internal/wsclient"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg, err := loadConfig(&zlog)
	if err != nil {
		zlog.Fatal().Err(err).Msg("load config")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}

	zapLogger, err := buildZapLogger(cfg.LogLevel)
	if err != nil {
		zlog.Fatal().Err(err).Msg("build logger")
	}
	defer zapLogger.Sync() // nolint:errcheck

	zlog.Info().Str("url", cfg.ServerURL).Str("grid_id", cfg.GridID).Str("client_id", cfg.ClientID).Msg("connecting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := wsclient.Initialize(ctx, cfg.ServerURL, cfg.GridID, cfg.ClientID, zapLogger)
	if err != nil {
		zlog.Fatal().Err(err).Msg("initialize client")
	}
	defer client.Close()

	zlog.Info().Msg("connected, grid view:")
	fmt.Println(client.Engine().View().Format(0))

	runREPL(client, &zlog)
}

func runREPL(client *wsclient.Client, zlog *zerolog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handleLine(client, line); err != nil {
			zlog.Error().Err(err).Str("instruction", line).Msg("interaction failed")
			continue
		}
	}
}

func handleLine(client *wsclient.Client, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "add":
		if len(parts) != 6 {
			return fmt.Errorf("usage: add <id> <x> <y> <w> <h>")
		}
		x, y, w, h, err := parseRect(parts[2], parts[3], parts[4], parts[5])
		if err != nil {
			return err
		}
		_, err = client.Engine().AddItem(parts[1], x, y, w, h)
		return err
	case "mv":
		if len(parts) != 4 {
			return fmt.Errorf("usage: mv <id> <x> <y>")
		}
		x, err := strconv.Atoi(parts[2])
		if err != nil {
			return err
		}
		y, err := strconv.Atoi(parts[3])
		if err != nil {
			return err
		}
		return client.Engine().MoveItem(parts[1], x, y)
	case "rm":
		if len(parts) != 2 {
			return fmt.Errorf("usage: rm <id>")
		}
		return client.Engine().RemoveItem(parts[1])
	case "print":
		fmt.Println(client.Engine().View().Format(0))
		return nil
	default:
		return fmt.Errorf("unknown instruction %q", parts[0])
	}
}

func parseRect(xs, ys, ws, hs string) (x, y, w, h int, err error) {
	if x, err = strconv.Atoi(xs); err != nil {
		return
	}
	if y, err = strconv.Atoi(ys); err != nil {
		return
	}
	if w, err = strconv.Atoi(ws); err != nil {
		return
	}
	if h, err = strconv.Atoi(hs); err != nil {
		return
	}
	return
}

func buildZapLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var l zap.AtomicLevel
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	cfg.Level = l
	return cfg.Build()
}
