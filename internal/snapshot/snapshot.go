// Package snapshot persists the store to versioned on-disk dumps and restores
// them on start, so a restart does not begin with a cold cache.
//
// Layout: <dir>/vN/<name>-shard-<id>-<timestamp>.snap[.gz], one file per
// shard, written concurrently. Each record is framed as an 8-byte header
// (length, CRC32) followed by a msgpack-encoded record.
package snapshot

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cache/db"
	"github.com/stratacache/go-strata-cache/internal/cache/db/model"
)

var ErrDisabled = errors.New("snapshots are not enabled")

const bufSize = 512 * 1024

// Storage is the slice of the cache the manager needs.
type Storage interface {
	WalkShards(ctx context.Context, fn func(id uint64, shard *db.Shard))
	Restore(entry *model.Entry)
}

type Manager struct {
	cfg     *config.SnapshotCfg
	storage Storage
}

func NewManager(cfg *config.SnapshotCfg, storage Storage) *Manager {
	return &Manager{cfg: cfg, storage: storage}
}

// Dump writes every shard into a fresh version directory. Files are created
// under a .tmp name and renamed after close, so readers never see a partial
// shard file.
func (m *Manager) Dump(ctx context.Context) error {
	start := time.Now()
	if !m.cfg.Enabled() {
		return ErrDisabled
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot base dir: %w", err)
	}

	versionDir := filepath.Join(m.cfg.Dir, fmt.Sprintf("v%d", m.nextVersion()))
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return fmt.Errorf("create snapshot version dir: %w", err)
	}
	timestamp := time.Now().Format("20060102T150405")

	var wg sync.WaitGroup
	var written, failures int32

	m.storage.WalkShards(ctx, func(id uint64, shard *db.Shard) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, f := m.dumpShard(ctx, versionDir, timestamp, id, shard)
			atomic.AddInt32(&written, w)
			atomic.AddInt32(&failures, f)
		}()
	})
	wg.Wait()

	if m.cfg.MaxVersions > 0 {
		m.rotateVersions()
	}

	log.Info().
		Int32("written", written).
		Int32("fails", failures).
		Str("elapsed", time.Since(start).String()).
		Msg("snapshot dump finished")

	if failures > 0 {
		return fmt.Errorf("snapshot dump finished with %d errors", failures)
	}
	return nil
}

func (m *Manager) dumpShard(ctx context.Context, dir, timestamp string, id uint64, shard *db.Shard) (written, failures int32) {
	if shard.Len() == 0 {
		return 0, 0
	}

	ext := ".snap"
	if m.cfg.Gzip {
		ext += ".gz"
	}
	name := filepath.Join(dir, fmt.Sprintf("%s-shard-%d-%s%s", m.cfg.Name, id, timestamp, ext))
	tmp := name + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		log.Err(err).Str("file", tmp).Msg("snapshot shard create failed")
		return 0, 1
	}

	var (
		writer io.Writer = f
		gw     *gzip.Writer
	)
	if m.cfg.Gzip {
		gw = gzip.NewWriter(f)
		writer = gw
	}
	bw := bufio.NewWriterSize(writer, bufSize)

	shard.WalkR(ctx, func(_ uint64, e *model.Entry) bool {
		data, err := msgpack.Marshal(e.ToRecord())
		if err != nil {
			failures++
			return true
		}
		var crc uint32
		if m.cfg.CRCControl {
			crc = crc32.ChecksumIEEE(data)
		}
		var head [8]byte
		binary.LittleEndian.PutUint32(head[0:4], uint32(len(data)))
		binary.LittleEndian.PutUint32(head[4:8], crc)
		if _, err := bw.Write(head[:]); err != nil {
			failures++
			return true
		}
		if _, err := bw.Write(data); err != nil {
			failures++
			return true
		}
		written++
		return true
	})

	if err := bw.Flush(); err != nil {
		failures++
	}
	if gw != nil {
		_ = gw.Close()
	}
	_ = f.Close()
	if err := os.Rename(tmp, name); err != nil {
		log.Err(err).Str("file", name).Msg("snapshot shard rename failed")
		return written, failures + 1
	}
	return written, failures
}

// Load restores the latest version directory. Records whose TTL elapsed while
// the process was down are dropped, and dirty records are restored dirty so
// the write-behind path can still ship them.
func (m *Manager) Load(ctx context.Context) error {
	if !m.cfg.Enabled() {
		return ErrDisabled
	}
	dir := m.latestVersion()
	if dir == "" {
		return fmt.Errorf("no snapshot version dirs found in %s", m.cfg.Dir)
	}
	return m.load(ctx, dir)
}

// LoadVersion restores a specific version directory, e.g. "v3".
func (m *Manager) LoadVersion(ctx context.Context, v string) error {
	if !m.cfg.Enabled() {
		return ErrDisabled
	}
	return m.load(ctx, filepath.Join(m.cfg.Dir, v))
}

func (m *Manager) load(ctx context.Context, dir string) error {
	start := time.Now()

	pattern := filepath.Join(dir, fmt.Sprintf("%s-shard-*.snap*", m.cfg.Name))
	files, _ := filepath.Glob(pattern)
	if len(files) == 0 {
		return fmt.Errorf("no snapshot files found in %s", dir)
	}
	if ts := latestTimestamp(files); ts != "" {
		files = filterByTimestamp(files, ts)
	}

	var wg sync.WaitGroup
	var restored, dropped, failures int32

	for _, file := range files {
		wg.Add(1)
		go func(fn string) {
			defer wg.Done()
			r, d, f := m.loadFile(ctx, fn)
			atomic.AddInt32(&restored, r)
			atomic.AddInt32(&dropped, d)
			atomic.AddInt32(&failures, f)
		}(file)
	}
	wg.Wait()

	log.Info().
		Int32("restored", restored).
		Int32("dropped_expired", dropped).
		Int32("fails", failures).
		Str("elapsed", time.Since(start).String()).
		Msg("snapshot restore finished")

	if failures > 0 {
		return fmt.Errorf("snapshot load finished with %d errors", failures)
	}
	return nil
}

func (m *Manager) loadFile(ctx context.Context, fn string) (restored, dropped, failures int32) {
	f, err := os.Open(fn)
	if err != nil {
		log.Err(err).Str("file", fn).Msg("snapshot open failed")
		return 0, 0, 1
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(fn, ".gz") {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			log.Err(err).Str("file", fn).Msg("snapshot gzip open failed")
			return 0, 0, 1
		}
		defer gzr.Close()
		reader = gzr
	}

	br := bufio.NewReaderSize(reader, bufSize)
	var head [8]byte
	for {
		if _, err := io.ReadFull(br, head[:]); err == io.EOF {
			break
		} else if err != nil {
			log.Err(err).Str("file", fn).Msg("snapshot header read failed")
			return restored, dropped, failures + 1
		}

		size := binary.LittleEndian.Uint32(head[0:4])
		expCRC := binary.LittleEndian.Uint32(head[4:8])
		buf := make([]byte, size)
		if _, err := io.ReadFull(br, buf); err != nil {
			log.Err(err).Str("file", fn).Msg("snapshot record read failed")
			return restored, dropped, failures + 1
		}
		if m.cfg.CRCControl && crc32.ChecksumIEEE(buf) != expCRC {
			log.Error().Str("file", fn).Msg("snapshot record crc mismatch")
			failures++
			continue
		}

		var r model.Record
		if err := msgpack.Unmarshal(buf, &r); err != nil {
			log.Err(err).Str("file", fn).Msg("snapshot record decode failed")
			failures++
			continue
		}
		if r.Expired() {
			dropped++
			continue
		}
		m.storage.Restore(model.FromRecord(r))
		restored++

		select {
		case <-ctx.Done():
			return restored, dropped, failures
		default:
		}
	}
	return restored, dropped, failures
}

// nextVersion picks the next sequential version number.
func (m *Manager) nextVersion() int {
	entries, _ := filepath.Glob(filepath.Join(m.cfg.Dir, "v*"))
	maxV := 0
	for _, dir := range entries {
		name := filepath.Base(dir)
		var v int
		if _, err := fmt.Sscanf(name, "v%d", &v); err != nil {
			continue
		}
		if v > maxV {
			maxV = v
		}
	}
	return maxV + 1
}

// rotateVersions keeps only the newest MaxVersions dirs.
func (m *Manager) rotateVersions() {
	entries, _ := filepath.Glob(filepath.Join(m.cfg.Dir, "v*"))
	if len(entries) <= m.cfg.MaxVersions {
		return
	}
	sortByModTimeDesc(entries)
	for _, dir := range entries[m.cfg.MaxVersions:] {
		if err := os.RemoveAll(dir); err != nil {
			log.Err(err).Str("dir", dir).Msg("snapshot rotation remove failed")
			continue
		}
		log.Info().Str("dir", dir).Msg("removed old snapshot dir")
	}
}

// latestVersion returns the most recently modified version dir.
func (m *Manager) latestVersion() string {
	entries, _ := filepath.Glob(filepath.Join(m.cfg.Dir, "v*"))
	if len(entries) == 0 {
		return ""
	}
	sortByModTimeDesc(entries)
	return entries[0]
}

func sortByModTimeDesc(entries []string) {
	sort.Slice(entries, func(i, j int) bool {
		fi, _ := os.Stat(entries[i])
		fj, _ := os.Stat(entries[j])
		if fi == nil || fj == nil {
			return entries[i] > entries[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})
}

// latestTimestamp picks the largest timestamp suffix among shard files, so a
// mixed directory only loads one coherent dump.
func latestTimestamp(files []string) string {
	var tsList []string
	for _, f := range files {
		base := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(f), ".gz"), ".snap")
		parts := strings.Split(base, "-")
		if len(parts) >= 4 {
			tsList = append(tsList, parts[len(parts)-1])
		}
	}
	if len(tsList) == 0 {
		return ""
	}
	sort.Strings(tsList)
	return tsList[len(tsList)-1]
}

// filterByTimestamp returns only files carrying the given timestamp.
func filterByTimestamp(files []string, ts string) []string {
	out := files[:0]
	for _, f := range files {
		if strings.Contains(f, ts) {
			out = append(out, f)
		}
	}
	return out
}
