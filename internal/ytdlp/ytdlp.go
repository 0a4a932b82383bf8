// Package ytdlp drives the yt-dlp binary, which Siphon relies on for all
// media discovery and retrieval. Output from the engine is decoded in to the
// narrow Info type, all other fields produced by yt-dlp are discarded.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/hbomb79/Siphon/pkg/logger"
)

const (
	DefaultRetries       = 5
	DefaultSocketTimeout = 60 * time.Second
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var log = logger.Get("yt-dlp")

type (
	Config struct {
		BinaryPath     string        `yaml:"ytdlp_path" env:"YTDLP_PATH" env-default:"yt-dlp"`
		UserAgent      string        `yaml:"user_agent" env:"YTDLP_USER_AGENT" env-default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"`
		Retries        int           `yaml:"retries" env:"YTDLP_RETRIES" env-default:"5"`
		SocketTimeout  time.Duration `yaml:"socket_timeout" env:"YTDLP_SOCKET_TIMEOUT" env-default:"60s"`
		ProcessTimeout time.Duration `yaml:"process_timeout" env:"YTDLP_PROCESS_TIMEOUT" env-default:"0s"`
	}

	// Engine runs yt-dlp as a child process. It holds no mutable state
	// and is safe for concurrent use.
	Engine struct {
		config Config
		binary string
	}

	// EngineError is returned when yt-dlp itself reports a failure, such
	// as an unsupported URL, removed content or a geo-block.
	EngineError struct {
		Message  string
		ExitCode int
	}
)

func (err *EngineError) Error() string {
	return err.Message
}

// New resolves the yt-dlp binary described by the config and returns an
// Engine which will invoke it.
func New(config Config) (*Engine, error) {
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Retries <= 0 {
		config.Retries = DefaultRetries
	}
	if config.SocketTimeout <= 0 {
		config.SocketTimeout = DefaultSocketTimeout
	}

	binary, err := resolveBinary(config.BinaryPath)
	if err != nil {
		return nil, err
	}

	log.Emit(logger.DEBUG, "Using yt-dlp binary at %s\n", binary)
	return &Engine{config: config, binary: binary}, nil
}

// Probe asks yt-dlp for the metadata of the single item at the URL
// provided, without downloading any media.
func (engine *Engine) Probe(ctx context.Context, url string) (*Info, error) {
	args := append(engine.commonArgs(), "--dump-single-json", "--skip-download", "--", url)
	return engine.run(ctx, args)
}

// Fetch downloads the format requested to the location described by the
// yt-dlp output template. The returned Info describes the downloaded item,
// including the output path yt-dlp used.
func (engine *Engine) Fetch(ctx context.Context, url string, formatID string, outputTemplate string) (*Info, error) {
	args := append(
		engine.commonArgs(),
		"-f", formatID,
		"-o", outputTemplate,
		"--force-overwrites",
		"--dump-single-json",
		"--no-simulate",
		"--", url,
	)
	return engine.run(ctx, args)
}

// commonArgs builds the flags shared by every invocation: single item
// semantics, a browser-like user agent, bounded retries and network timeout,
// and no certificate validation.
func (engine *Engine) commonArgs() []string {
	args := []string{
		"--no-playlist",
		"--ignore-errors",
		"--no-check-certificates",
		"--no-warnings",
		"--no-progress",
		"--add-headers", "User-Agent:" + engine.config.UserAgent,
		"--retries", strconv.Itoa(engine.config.Retries),
		"--socket-timeout", strconv.Itoa(socketTimeoutSeconds(engine.config.SocketTimeout)),
	}

	return args
}

// yt-dlp only accepts whole seconds, partial seconds are rounded up.
func socketTimeoutSeconds(timeout time.Duration) int {
	return max(1, int(math.Ceil(timeout.Seconds())))
}

func (engine *Engine) run(parent context.Context, args []string) (*Info, error) {
	ctx := parent
	if engine.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, engine.config.ProcessTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, engine.binary, args...)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Emit(logger.VERBOSE, "Executing yt-dlp command: %s\n", cmd.String())
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &EngineError{Message: fmt.Sprintf("yt-dlp timed out after %s", engine.config.ProcessTimeout), ExitCode: -1}
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Emit(logger.DEBUG, "yt-dlp exited with status %d: %s\n", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
			return nil, &EngineError{Message: failureMessage(stderr.String(), err), ExitCode: exitErr.ExitCode()}
		}

		return nil, fmt.Errorf("failed to run yt-dlp: %w", err)
	}

	return decodeInfo(stdout.Bytes(), stderr.String())
}

func decodeInfo(stdout []byte, stderr string) (*Info, error) {
	trimmed := bytes.TrimSpace(stdout)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &EngineError{Message: failureMessage(stderr, errors.New("yt-dlp returned no media information"))}
	}

	var info Info
	if err := json.Unmarshal(trimmed, &info); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
	}

	return &info, nil
}

// failureMessage finds the most relevant line of yt-dlp's stderr output. The
// last line tagged 'ERROR:' is preferred, followed by the last non-empty line.
func failureMessage(stderr string, fallback error) string {
	var lastError, lastLine string
	scanner := bufio.NewScanner(strings.NewReader(stderr))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		lastLine = line
		if strings.HasPrefix(line, "ERROR:") {
			lastError = line
		}
	}

	switch {
	case lastError != "":
		return lastError
	case lastLine != "":
		return lastLine
	default:
		return fallback.Error()
	}
}

// resolveBinary finds the yt-dlp executable. Explicit paths are used as-is, bare
// names are searched for on the PATH and then beside the running executable.
func resolveBinary(path string) (string, error) {
	if path == "" {
		path = "yt-dlp"
	}

	if strings.ContainsRune(path, os.PathSeparator) {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("yt-dlp binary %q not accessible: %w", path, err)
		}
		return path, nil
	}

	if found, err := exec.LookPath(path); err == nil {
		return found, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), path)
		if runtime.GOOS == "windows" && filepath.Ext(candidate) == "" {
			candidate += ".exe"
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH, please install yt-dlp", path)
}
