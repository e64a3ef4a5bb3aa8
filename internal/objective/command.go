package objective

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/space"
)

// Environment variables set for every evaluation. Each parameter is also
// exported as BORE_PARAM_<NAME> with the name upper-cased.
const (
	EnvConfig = "BORE_CONFIG"
	EnvBudget = "BORE_BUDGET"
	envParam  = "BORE_PARAM_"
)

const (
	// maxStderr bounds how much of stderr is quoted in errors.
	maxStderr = 1024
	// waitDelay bounds the wait for output pipes held open by children of a
	// killed command.
	waitDelay = time.Second
)

// Command evaluates a configuration by running an external program. The
// program receives {"config": ..., "budget": ...} on stdin and in the
// environment, and must print a JSON document holding the loss on stdout.
// When stdout is not a single JSON document its last non-empty line is used.
type Command struct {
	Path string
	Args []string

	// LossPath is the gjson path of the loss. InfoPath, when set, selects an
	// object stored as side information.
	LossPath string
	InfoPath string

	// Timeout bounds one evaluation. Zero means no limit beyond ctx.
	Timeout time.Duration

	logger *slog.Logger
}

// NewCommand creates a command objective.
func NewCommand(path string, args []string, lossPath string, timeout time.Duration, logger *slog.Logger) (*Command, error) {
	if path == "" {
		return nil, errors.New("command cannot be empty")
	}
	if lossPath == "" {
		lossPath = "loss"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Command{
		Path:     path,
		Args:     args,
		LossPath: lossPath,
		Timeout:  timeout,
		logger:   logger,
	}, nil
}

type commandInput struct {
	Config space.Config `json:"config"`
	Budget float64      `json:"budget"`
}

// Evaluate runs the program once.
func (c *Command) Evaluate(ctx context.Context, cfg space.Config, budget float64) (*generator.JobResult, error) {
	input, err := json.Marshal(commandInput{Config: cfg, Budget: budget})
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), commandEnv(cfg, budget, input)...)
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("command %s: %w", c.Path, ctx.Err())
		}
		return nil, fmt.Errorf("command %s: %w: %s", c.Path, err, tail(stderr.String(), maxStderr))
	}

	res, err := c.parse(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("command finished",
		"command", c.Path,
		"budget", budget,
		"loss", res.Loss,
		"duration_ms", elapsed.Milliseconds(),
	)

	return res, nil
}

func (c *Command) parse(out []byte) (*generator.JobResult, error) {
	doc := out
	if !gjson.ValidBytes(doc) {
		doc = []byte(lastLine(string(out)))
		if !gjson.ValidBytes(doc) {
			return nil, fmt.Errorf("command output is not JSON: %q", tail(string(out), 256))
		}
	}

	loss := gjson.GetBytes(doc, c.LossPath)
	if !loss.Exists() {
		return nil, fmt.Errorf("loss path %q not found in command output", c.LossPath)
	}
	if loss.Type != gjson.Number {
		return nil, fmt.Errorf("loss at %q is not a number: %s", c.LossPath, loss.Raw)
	}

	res := &generator.JobResult{Loss: loss.Float()}

	if c.InfoPath != "" {
		if info := gjson.GetBytes(doc, c.InfoPath); info.IsObject() {
			if m, ok := info.Value().(map[string]any); ok {
				res.Info = m
			}
		}
	}

	return res, nil
}

func commandEnv(cfg space.Config, budget float64, input []byte) []string {
	env := []string{
		EnvConfig + "=" + string(input),
		EnvBudget + "=" + strconv.FormatFloat(budget, 'g', -1, 64),
	}
	for _, name := range space.SortedKeys(cfg) {
		env = append(env, envParam+envName(name)+"="+fmt.Sprint(cfg[name]))
	}
	return env
}

func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
