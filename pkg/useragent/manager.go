// Package useragent reconciles a text allow-list of user agents into the
// access-log store's side table on a tick, with an fsnotify watch for
// faster pickup of out-of-band edits.
package useragent

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"github.com/tempesta-tech/webshield/internal/logging"
)

// replacer is the subset of accesslog.Client the manager depends on.
type replacer interface {
	ReplaceUserAgents(ctx context.Context, agents []string) error
}

// debounceWindow coalesces bursts of filesystem events (editors often
// write-then-rename) into a single reconciliation.
const debounceWindow = 250 * time.Millisecond

// Manager periodically reads the allow-list file at Path and replaces
// the access-log store's user_agents table with its contents. A failed
// read is logged and skipped; the previous table contents remain
// authoritative until the next successful read.
type Manager struct {
	path        string
	accessLog   replacer
	log         logr.Logger
	reconcileCh chan struct{}
}

// New builds a Manager reading user agents from path.
func New(path string, accessLog replacer, log logr.Logger) *Manager {
	return &Manager{
		path:        path,
		accessLog:   accessLog,
		log:         log,
		reconcileCh: make(chan struct{}, 1),
	}
}

// Reconcile re-reads the allow-list file and replaces the store's
// table. A read failure is logged and treated as a skip, not an error,
// since the previous table contents remain valid.
func (m *Manager) Reconcile(ctx context.Context) {
	agents, err := readLines(m.path)
	if err != nil {
		m.log.Error(err, "reading user agent allow-list, keeping previous table",
			logging.NewFields().Component("useragent").KeysAndValues()...)
		return
	}

	if err := m.accessLog.ReplaceUserAgents(ctx, agents); err != nil {
		m.log.Error(err, "replacing user_agents table",
			logging.NewFields().Component("useragent").KeysAndValues()...)
	}
}

// Run blocks, reconciling once per tick and additionally whenever the
// allow-list file changes on disk, until ctx is cancelled. The watcher
// is a latency optimization; the tick is what guarantees eventual
// consistency, so a watcher setup failure is logged and the loop
// degrades to tick-only reconciliation.
func (m *Manager) Run(ctx context.Context, tick time.Duration) {
	watcher, err := m.watch(ctx)
	if err != nil {
		m.log.Error(err, "starting allow-list file watcher, tick-only reconciliation",
			logging.NewFields().Component("useragent").KeysAndValues()...)
	} else {
		defer watcher.Close()
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	m.Reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reconcile(ctx)
		case <-m.reconcileCh:
			m.Reconcile(ctx)
		}
	}
}

func (m *Manager) watch(ctx context.Context) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(m.path); err != nil {
		watcher.Close()
		return nil, err
	}

	go m.debounce(ctx, watcher)
	return watcher, nil
}

func (m *Manager) debounce(ctx context.Context, watcher *fsnotify.Watcher) {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case m.reconcileCh <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.Error(err, "watching allow-list file",
				logging.NewFields().Component("useragent").KeysAndValues()...)
		}
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
