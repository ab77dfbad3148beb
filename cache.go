package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// VerdictCache skips re-running reproductions whose inputs have not changed.
// A verdict is keyed by a fingerprint of the harness binary, the manifest
// content, and the entry itself; any change to the binary or expectations
// invalidates the cached verdict.
type VerdictCache struct {
	Dir        string // e.g. ~/.cache/faultline
	MaxEntries int    // LRU eviction threshold (default 50)
}

// DefaultMaxCacheEntries bounds the cache when no limit is configured.
const DefaultMaxCacheEntries = 50

// cacheMeta is the sidecar describing one cached verdict.
type cacheMeta struct {
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	GoVersion   string    `json:"go_version"`
	HarnessVer  string    `json:"harness_version"`
	Entry       string    `json:"entry"`
	PayloadSize int64     `json:"payload_size"`
}

// Fingerprint hashes everything that could change a verdict: the harness
// binary's identity (mtime and size), the raw manifest bytes, the entry's
// name/case/args/mode, the Go version, and the harness version.
func (c *VerdictCache) Fingerprint(exe string, manifestData []byte, exp Expectation) (string, error) {
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return "", fmt.Errorf("locating harness binary: %w", err)
		}
	}
	info, err := os.Stat(exe)
	if err != nil {
		return "", fmt.Errorf("stat harness binary: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "exe:%s\t%d\t%d\n", filepath.Base(exe), info.ModTime().UnixNano(), info.Size())
	h.Write(manifestData)
	fmt.Fprintf(h, "\nentry:%s\ncase:%s\nhardened:%t\n", exp.EntryName(), exp.Case, exp.Hardened)
	for _, a := range exp.Args {
		fmt.Fprintf(h, "arg:%s\n", a)
	}
	fmt.Fprintf(h, "go:%s\n", runtime.Version())
	fmt.Fprintf(h, "harness:%s\n", HarnessVersion)

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (c *VerdictCache) payloadPath(fingerprint string) string {
	return filepath.Join(c.Dir, fingerprint+".json")
}

func (c *VerdictCache) metaPath(fingerprint string) string {
	return filepath.Join(c.Dir, fingerprint+".meta.json")
}

// Get retrieves a cached verdict by fingerprint. The entry is rejected when
// its harness version no longer matches.
func (c *VerdictCache) Get(fingerprint string) (*Verdict, bool) {
	metaData, err := os.ReadFile(c.metaPath(fingerprint))
	if err != nil {
		return nil, false
	}

	var meta cacheMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, false
	}
	if meta.HarnessVer != HarnessVersion {
		return nil, false
	}

	payload, err := os.ReadFile(c.payloadPath(fingerprint))
	if err != nil {
		return nil, false
	}

	var v Verdict
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// Put stores a verdict with its metadata sidecar. Writes are atomic
// (tmp+rename) and followed by LRU eviction.
func (c *VerdictCache) Put(fingerprint string, v *Verdict) error {
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling verdict: %w", err)
	}

	meta := cacheMeta{
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
		GoVersion:   runtime.Version(),
		HarnessVer:  HarnessVersion,
		Entry:       v.Name,
		PayloadSize: int64(len(payload)),
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}

	if err := atomicWrite(c.payloadPath(fingerprint), payload); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	if err := atomicWrite(c.metaPath(fingerprint), metaJSON); err != nil {
		os.Remove(c.payloadPath(fingerprint))
		return fmt.Errorf("writing meta: %w", err)
	}

	if err := c.evict(); err != nil {
		// Eviction failure is non-fatal.
		fmt.Fprintf(errOut, "faultline: cache eviction warning: %v\n", err)
	}
	return nil
}

// atomicWrite writes data to a temp file in path's directory and renames it
// into place, so readers never observe a partial entry.
func atomicWrite(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// evict removes the oldest entries (by CreatedAt) once the entry count
// exceeds MaxEntries. An entry is a .json + .meta.json pair.
func (c *VerdictCache) evict() error {
	maxEntries := c.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxCacheEntries
	}

	dirEntries, err := os.ReadDir(c.Dir)
	if err != nil {
		return fmt.Errorf("reading cache dir: %w", err)
	}

	var metas []cacheMeta
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".meta.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.Dir, de.Name()))
		if err != nil {
			continue
		}
		var meta cacheMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	if len(metas) <= maxEntries {
		return nil
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.Before(metas[j].CreatedAt)
	})

	toRemove := len(metas) - maxEntries
	for i := 0; i < toRemove; i++ {
		fp := metas[i].Fingerprint
		os.Remove(c.payloadPath(fp))
		os.Remove(c.metaPath(fp))
	}
	return nil
}
