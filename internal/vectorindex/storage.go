package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"log"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"docqa/internal/model"
)

const (
	currentFile   = "CURRENT"
	manifestFile  = "manifest.json"
	vectorsFile   = "vectors.bin"
	chunksFile    = "chunks.jsonl"
	genPrefix     = "gen-"
	tmpSuffix     = ".tmp"
	float32Length = 4
)

func generationName(gen int) string {
	return fmt.Sprintf("%s%08d", genPrefix, gen)
}

func parseGeneration(name string) (int, bool) {
	if !strings.HasPrefix(name, genPrefix) || strings.HasSuffix(name, tmpSuffix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, genPrefix))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// readCurrent returns the generation CURRENT points at.
func readCurrent(dir string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w in %s", ErrIndexNotFound, dir)
		}
		return 0, fmt.Errorf("read %s failed: %w", currentFile, err)
	}
	gen, ok := parseGeneration(strings.TrimSpace(string(raw)))
	if !ok {
		return 0, corrupt("%s names %q", currentFile, strings.TrimSpace(string(raw)))
	}
	return gen, nil
}

// nextGeneration picks a number above every generation directory on disk,
// including ones a crashed writer left behind.
func nextGeneration(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("list index dir failed: %w", err)
	}
	highest := 0
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), tmpSuffix)
		if n, ok := parseGeneration(name); ok && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// writeGeneration persists a complete generation under a temporary name and
// renames it into place. It fills in m.VectorsCRC32.
func writeGeneration(dir string, gen int, m *Manifest, records []model.EmbeddingRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir failed: %w", err)
	}
	final := filepath.Join(dir, generationName(gen))
	tmp := final + tmpSuffix
	if err := os.RemoveAll(tmp); err != nil {
		return fmt.Errorf("clear temp generation failed: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("create temp generation failed: %w", err)
	}

	crc, err := writeVectors(filepath.Join(tmp, vectorsFile), records)
	if err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	m.VectorsCRC32 = crc
	if err := writeChunks(filepath.Join(tmp, chunksFile), records); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := writeManifest(filepath.Join(tmp, manifestFile), m); err != nil {
		_ = os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("publish generation failed: %w", err)
	}
	return nil
}

func writeVectors(path string, records []model.EmbeddingRecord) (uint32, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s failed: %w", vectorsFile, err)
	}
	defer f.Close()

	sum := crc32.NewIEEE()
	w := bufio.NewWriter(io.MultiWriter(f, sum))
	var buf [float32Length]byte
	for _, r := range records {
		for _, v := range r.Vector {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			if _, err := w.Write(buf[:]); err != nil {
				return 0, fmt.Errorf("write %s failed: %w", vectorsFile, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("flush %s failed: %w", vectorsFile, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s failed: %w", vectorsFile, err)
	}
	return sum.Sum32(), nil
}

func writeChunks(path string, records []model.EmbeddingRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s failed: %w", chunksFile, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r.Chunk); err != nil {
			return fmt.Errorf("write %s failed: %w", chunksFile, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s failed: %w", chunksFile, err)
	}
	return f.Sync()
}

func writeManifest(path string, m *Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest failed: %w", err)
	}
	return writeFileSync(path, append(raw, '\n'))
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// swapCurrent atomically points CURRENT at gen.
func swapCurrent(dir string, gen int) error {
	tmp := filepath.Join(dir, currentFile+tmpSuffix)
	if err := writeFileSync(tmp, []byte(generationName(gen)+"\n")); err != nil {
		return fmt.Errorf("write %s failed: %w", currentFile, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, currentFile)); err != nil {
		return fmt.Errorf("swap %s failed: %w", currentFile, err)
	}
	return nil
}

// removeStaleGenerations deletes every generation directory not in keep.
// Failures are logged; a leftover directory is never read.
func removeStaleGenerations(dir string, keep ...int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("vectorindex: list %s failed: %v", dir, err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) {
			continue
		}
		if n, ok := parseGeneration(e.Name()); ok && slices.Contains(keep, n) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			log.Printf("vectorindex: remove stale generation %s failed: %v", e.Name(), err)
		}
	}
}

const maxLoadAttempts = 3

// readLive reads the generation CURRENT points at. A writer may swap CURRENT
// and prune the old generation while it is being read; the read is then
// retried against the new generation.
func readLive(dir string) (int, Manifest, []model.EmbeddingRecord, error) {
	var lastErr error
	for attempt := 0; attempt < maxLoadAttempts; attempt++ {
		gen, err := readCurrent(dir)
		if err != nil {
			return 0, Manifest{}, nil, err
		}
		m, records, err := readGeneration(dir, gen)
		if err == nil {
			return gen, m, records, nil
		}
		lastErr = err
		again, cerr := readCurrent(dir)
		if cerr != nil || again == gen {
			break
		}
	}
	return 0, Manifest{}, nil, lastErr
}

// readGeneration loads and verifies one generation directory.
func readGeneration(dir string, gen int) (Manifest, []model.EmbeddingRecord, error) {
	genDir := filepath.Join(dir, generationName(gen))

	var m Manifest
	raw, err := os.ReadFile(filepath.Join(genDir, manifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil, corrupt("%s missing in %s", manifestFile, generationName(gen))
		}
		return m, nil, fmt.Errorf("read manifest failed: %w", err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, nil, corrupt("parse manifest: %v", err)
	}
	if m.Format != FormatName {
		return m, nil, corrupt("unexpected format %q", m.Format)
	}
	if m.Version > FormatVersion || m.Version < 1 {
		return m, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	if m.Metric != MetricCosine {
		return m, nil, fmt.Errorf("%w: %q", ErrUnsupportedMetric, m.Metric)
	}
	if m.Dimension <= 0 || m.Count < 0 {
		return m, nil, corrupt("manifest has dimension %d and count %d", m.Dimension, m.Count)
	}

	chunks, err := readChunks(filepath.Join(genDir, chunksFile))
	if err != nil {
		return m, nil, err
	}
	if len(chunks) != m.Count {
		return m, nil, corrupt("manifest count %d, %s has %d", m.Count, chunksFile, len(chunks))
	}

	vectors, err := readVectors(filepath.Join(genDir, vectorsFile), m)
	if err != nil {
		return m, nil, err
	}

	records := make([]model.EmbeddingRecord, m.Count)
	for i := range chunks {
		records[i] = model.EmbeddingRecord{
			ChunkID: chunks[i].ID,
			Vector:  vectors[i],
			Chunk:   chunks[i],
		}
	}
	return m, records, nil
}

func readChunks(path string) ([]model.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, corrupt("%s missing", chunksFile)
		}
		return nil, fmt.Errorf("open %s failed: %w", chunksFile, err)
	}
	defer f.Close()

	var chunks []model.Chunk
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var c model.Chunk
		if err := dec.Decode(&c); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, corrupt("%s entry %d: %v", chunksFile, len(chunks), err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func readVectors(path string, m Manifest) ([][]float32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, corrupt("%s missing", vectorsFile)
		}
		return nil, fmt.Errorf("read %s failed: %w", vectorsFile, err)
	}
	want := m.Count * m.Dimension * float32Length
	if len(raw) != want {
		return nil, corrupt("%s has %d bytes, expected %d", vectorsFile, len(raw), want)
	}
	if sum := crc32.ChecksumIEEE(raw); sum != m.VectorsCRC32 {
		return nil, corrupt("%s checksum %08x, manifest says %08x", vectorsFile, sum, m.VectorsCRC32)
	}

	vectors := make([][]float32, m.Count)
	for i := range vectors {
		vec := make([]float32, m.Dimension)
		base := i * m.Dimension * float32Length
		for j := range vec {
			off := base + j*float32Length
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+float32Length]))
		}
		vectors[i] = vec
	}
	return vectors, nil
}
