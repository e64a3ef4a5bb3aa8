package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var pidFile string

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the bore server configuration",
	Long: `Reload the bore server configuration by sending SIGHUP to the process.
Authentication settings are applied without a restart.`,
	RunE: runReload,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the bore server",
	Long: `Stop the bore server by sending SIGTERM to the process. The server
flushes its history and classifier weights before exiting.`,
	RunE: runStop,
}

func init() {
	reloadCmd.Flags().StringVar(&pidFile, "pid-file", "", "PID file path (overrides config)")
	stopCmd.Flags().StringVar(&pidFile, "pid-file", "", "PID file path (overrides config)")
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(stopCmd)
}

func runReload(cmd *cobra.Command, args []string) error {
	pid, err := signalServer(syscall.SIGHUP)
	if err != nil {
		return err
	}

	if !jsonOut {
		fmt.Printf("Sent SIGHUP to process %d (configuration reload requested)\n", pid)
	} else {
		fmt.Printf(`{"status":"reload_requested","pid":%d}`+"\n", pid)
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := signalServer(syscall.SIGTERM)
	if err != nil {
		return err
	}

	if !jsonOut {
		fmt.Printf("Sent SIGTERM to process %d (shutdown requested)\n", pid)
	} else {
		fmt.Printf(`{"status":"stop_requested","pid":%d}`+"\n", pid)
	}
	return nil
}

func signalServer(sig syscall.Signal) (int, error) {
	pidPath, err := resolvePIDFile()
	if err != nil {
		return 0, err
	}

	pid, err := readPIDFile(pidPath)
	if err != nil {
		return 0, err
	}

	// Find the process
	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("process not found: %d", pid)
	}

	if err := process.Signal(sig); err != nil {
		return 0, fmt.Errorf("failed to send signal: %w", err)
	}
	return pid, nil
}

// resolvePIDFile returns --pid-file, or the configured path.
func resolvePIDFile() (string, error) {
	pidPath := pidFile
	if pidPath == "" {
		cfg, err := loadConfig()
		if err != nil {
			return "", err
		}
		pidPath = cfg.Server.PIDFile
	}

	if pidPath == "" {
		return "", fmt.Errorf("no PID file specified (use --pid-file or configure server.pid_file)")
	}
	return pidPath, nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("PID file not found: %s (server may not be running)", path)
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file: %s", pidStr)
	}
	return pid, nil
}
