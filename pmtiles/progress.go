package pmtiles

import (
	"sync"

	"github.com/schollz/progressbar/v3"
)

// EntryProgress counts the directory entries visited by an archive walk.
type EntryProgress interface {
	Add(entries int)
	Close() error
}

// ProgressReporter starts an EntryProgress for a walk expected to visit total entries.
type ProgressReporter interface {
	Start(total int64, description string) EntryProgress
}

var (
	reporterMu sync.RWMutex
	reporter   ProgressReporter = barReporter{}
	quietMode  bool
)

// SetProgressReporter replaces the reporter used by Verify.
// A nil reporter silences progress output.
func SetProgressReporter(r ProgressReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	if r == nil {
		r = nopReporter{}
	}
	reporter = r
}

func currentReporter() ProgressReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return reporter
}

// SetQuietMode turns terminal progress bars off or back on.
// Leaving quiet mode restores the bar reporter, dropping any custom one.
func SetQuietMode(quiet bool) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	quietMode = quiet
	if quiet {
		reporter = nopReporter{}
	} else {
		reporter = barReporter{}
	}
}

func IsQuietMode() bool {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return quietMode
}

// barReporter draws a terminal bar counting entries.
type barReporter struct{}

func (barReporter) Start(total int64, description string) EntryProgress {
	if IsQuietMode() {
		return nopProgress{}
	}
	return &barProgress{bar: progressbar.Default(total, description)}
}

type barProgress struct {
	bar *progressbar.ProgressBar
}

func (p *barProgress) Add(entries int) {
	if p.bar != nil {
		p.bar.Add(entries)
	}
}

func (p *barProgress) Close() error {
	if p.bar == nil {
		return nil
	}
	return p.bar.Close()
}

type nopReporter struct{}

func (nopReporter) Start(int64, string) EntryProgress {
	return nopProgress{}
}

type nopProgress struct{}

func (nopProgress) Add(int) {}

func (nopProgress) Close() error { return nil }
