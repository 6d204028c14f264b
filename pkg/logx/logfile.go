package logx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Log file state. When initialized, every log line goes to the current
// log file; with tee enabled, lines also keep going to stderr.
var (
	logFileMutex sync.Mutex
	logFile      *os.File
	teeEnabled   bool
)

// InitializeLogFile opens a fresh timestamped log file under dir and prunes
// old files beyond keep. Call before any logging so startup lines are
// captured. With tee false, stderr output is suppressed once the file is
// open.
func InitializeLogFile(dir string, keep int, tee bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("parliament-%s.log", time.Now().UTC().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFileMutex.Lock()
	logFile = f
	teeEnabled = tee
	logFileMutex.Unlock()

	pruneOldLogFiles(dir, keep)
	return nil
}

// CloseLogFile flushes and closes the active log file, if any.
func CloseLogFile() error {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	teeEnabled = false
	return err
}

// consoleEnabled reports whether log lines should also reach stderr.
// Without a log file everything goes to stderr.
func consoleEnabled() bool {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()
	return logFile == nil || teeEnabled
}

func writeLogLine(line string) {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	if logFile == nil {
		return
	}
	fmt.Fprintln(logFile, line)
}

// pruneOldLogFiles removes all but the newest keep log files in dir.
func pruneOldLogFiles(dir string, keep int) {
	if keep <= 0 {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "parliament-") && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	if len(names) <= keep {
		return
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-keep] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
