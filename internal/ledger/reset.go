package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/openquant/trading-agent/internal/dates"
)

// Administrative operations. These are the only code paths that rewrite the
// position log, and every one of them takes a backup first unless the
// caller explicitly opts out.

// BackupInfo describes one backup file.
type BackupInfo struct {
	Path     string
	Size     int64
	Modified time.Time
}

// Summary is a quick description of the log, for operator tooling.
type Summary struct {
	Exists        bool
	Records       int
	FirstDate     string
	LastDate      string
	LastPositions Snapshot
}

func (l *Ledger) backupDir() string { return filepath.Join(l.identityDir(), "backups") }

// Backup copies the position log into the identity's backups directory. The
// name carries a wall-clock stamp plus a ULID so two backups within the
// same second cannot collide.
func (l *Ledger) Backup() (string, error) {
	src, err := os.Open(l.Path())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer src.Close()

	if err := os.MkdirAll(l.backupDir(), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	now := time.Now()
	name := fmt.Sprintf("position_backup_%s_%s.jsonl", now.Format("20060102_150405"), ulid.Make())
	dstPath := filepath.Join(l.backupDir(), name)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dstPath)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return dstPath, nil
}

// ResetToDate truncates the log to entries dated on or before the target
// calendar day. Returns how many entries were kept and removed.
func (l *Ledger) ResetToDate(target string, backup bool) (kept, removed int, err error) {
	err = l.Update(func(*Txn) error {
		if backup {
			if _, err := l.Backup(); err != nil {
				return err
			}
		}
		targetDay := dates.DayOf(target)
		var keep []Entry
		total := 0
		if err := l.scan(func(e Entry) {
			total++
			if dates.DayOf(e.Date) <= targetDay {
				keep = append(keep, e)
			}
		}); err != nil {
			return err
		}
		if err := l.rewrite(keep); err != nil {
			return err
		}
		kept, removed = len(keep), total-len(keep)
		return nil
	})
	return kept, removed, err
}

// ResetToInit truncates the log to its first entry only.
func (l *Ledger) ResetToInit(backup bool) error {
	return l.Update(func(*Txn) error {
		if backup {
			if _, err := l.Backup(); err != nil {
				return err
			}
		}
		var first *Entry
		if err := l.scan(func(e Entry) {
			if first == nil {
				cp := e
				first = &cp
			}
		}); err != nil {
			return err
		}
		if first == nil {
			return fmt.Errorf("%w: no initial record found", ErrUnavailable)
		}
		return l.rewrite([]Entry{*first})
	})
}

// rewrite replaces the log atomically via temp file + rename, so a crash
// mid-rewrite never leaves a half-written log.
func (l *Ledger) rewrite(entries []Entry) error {
	path := l.Path()
	tmp := path + ".tmp"
	var sb strings.Builder
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("ledger rewrite: %w", err)
		}
		sb.Write(b)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ListBackups returns available backups, newest first.
func (l *Ledger) ListBackups() ([]BackupInfo, error) {
	matches, err := filepath.Glob(filepath.Join(l.backupDir(), "position_backup_*.jsonl"))
	if err != nil {
		return nil, err
	}
	var out []BackupInfo
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{Path: m, Size: st.Size(), Modified: st.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	return out, nil
}

// Summarize reports record count, date range and the last snapshot.
func (l *Ledger) Summarize() (Summary, error) {
	if _, err := os.Stat(l.Path()); err != nil {
		if os.IsNotExist(err) {
			return Summary{}, nil
		}
		return Summary{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s := Summary{Exists: true}
	err := l.scan(func(e Entry) {
		if s.Records == 0 {
			s.FirstDate = e.Date
		}
		s.Records++
		s.LastDate = e.Date
		s.LastPositions = e.Positions
	})
	return s, err
}
