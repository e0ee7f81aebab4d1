// Package pack implements the single-file backup container: concatenated
// entry contents followed by a trailer-referenced metadata table.
//
// File layout, all integers little-endian:
//
//	[0..8)   u64 metadata table offset (written as 0, patched after content)
//	[8..M)   concatenated contents of the regular-file entries
//	[M..)    u32 record count, then one record per entry
//
// Record layout:
//
//	u32 name length, name (relative path, '/' separators, UTF-8)
//	u64 content size, u64 content offset
//	u8  compressed flag (name ends in ".huff")
//	u32 mode, u64 ctime, u64 mtime, u64 atime
//	u16 kind
//	u32 symlink target length, symlink target
//
// Package files are portable: names always use '/' regardless of host OS.
package pack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/treekeep/treekeep/internal/treekeep/lib"
	"github.com/treekeep/treekeep/internal/treekeep/logging"
	"github.com/treekeep/treekeep/internal/treekeep/types"
)

// ErrMalformed is returned when a package's metadata offset, count, or
// record fields are inconsistent. A package whose offset field still holds
// the zero placeholder was never finished and is rejected the same way.
var ErrMalformed = errors.New("pack: malformed package")

// CompressedSuffix marks entries that carry a Huffman stream.
const CompressedSuffix = ".huff"

// Record is the persisted metadata of one entry inside a package.
type Record struct {
	Name          string // relative path with '/' separators
	Size          uint64
	Offset        uint64
	Compressed    bool
	Mode          uint32
	Ctime         uint64
	Mtime         uint64
	Atime         uint64
	Kind          types.EntryKind
	SymlinkTarget string
}

// Write encodes the entries into a package at outputPath. Entry paths are
// stored relative to basePath. Only regular files contribute content; their
// bytes are concatenated verbatim in input order.
func Write(entries []*types.Entry, basePath, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("pack: create %s: %w", outputPath, err)
	}
	defer out.Close()

	// Placeholder for the metadata offset, patched once the content region
	// is complete.
	if err := binary.Write(out, binary.LittleEndian, uint64(0)); err != nil {
		return err
	}

	records := make([]Record, 0, len(entries))
	offset := uint64(8)
	for _, e := range entries {
		rel, err := lib.RelPath(basePath, e.Path)
		if err != nil {
			return fmt.Errorf("pack: relative path for %s: %w", e.Path, err)
		}
		name := filepath.ToSlash(rel)
		rec := Record{
			Name:          name,
			Offset:        offset,
			Compressed:    strings.HasSuffix(name, CompressedSuffix),
			Mode:          e.Mode,
			Ctime:         e.Ctime,
			Mtime:         e.Mtime,
			Atime:         e.Atime,
			Kind:          e.Kind,
			SymlinkTarget: e.SymlinkTarget,
		}
		if e.Kind == types.KindRegular {
			n, err := streamContent(out, e)
			if err != nil {
				return fmt.Errorf("pack: content of %s: %w", e.Path, err)
			}
			rec.Size = n
			offset += n
		}
		records = append(records, rec)
	}

	metadataOffset := offset
	if err := writeMetadata(out, records); err != nil {
		return err
	}

	// Patch the offset field now that the table's position is known.
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, metadataOffset); err != nil {
		return err
	}
	return out.Sync()
}

func streamContent(out io.Writer, e *types.Entry) (uint64, error) {
	if e.Content != nil {
		n, err := out.Write(e.Content)
		return uint64(n), err
	}
	in, err := os.Open(e.Path)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	n, err := io.Copy(out, in)
	return uint64(n), err
}

func writeMetadata(out io.Writer, records []Record) error {
	if err := binary.Write(out, binary.LittleEndian, uint32(len(records))); err != nil {
		return err
	}
	for _, rec := range records {
		name := []byte(rec.Name)
		if err := binary.Write(out, binary.LittleEndian, uint32(len(name))); err != nil {
			return err
		}
		if _, err := out.Write(name); err != nil {
			return err
		}
		var compressed uint8
		if rec.Compressed {
			compressed = 1
		}
		fields := []any{
			rec.Size, rec.Offset, compressed,
			rec.Mode, rec.Ctime, rec.Mtime, rec.Atime,
			uint16(rec.Kind),
		}
		for _, f := range fields {
			if err := binary.Write(out, binary.LittleEndian, f); err != nil {
				return err
			}
		}
		target := []byte(rec.SymlinkTarget)
		if err := binary.Write(out, binary.LittleEndian, uint32(len(target))); err != nil {
			return err
		}
		if _, err := out.Write(target); err != nil {
			return err
		}
	}
	return nil
}

// ReadMetadata parses the metadata table of the package at inputPath.
func ReadMetadata(inputPath string) ([]Record, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("pack: open %s: %w", inputPath, err)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return nil, err
	}
	size := uint64(fi.Size())
	if size < 8 {
		return nil, fmt.Errorf("%w: shorter than the offset field", ErrMalformed)
	}

	var metadataOffset uint64
	if err := binary.Read(in, binary.LittleEndian, &metadataOffset); err != nil {
		return nil, err
	}
	// An unpatched placeholder points the table into the offset field
	// itself; anything outside [8, size-4] cannot hold a valid table.
	if metadataOffset < 8 || metadataOffset+4 > size {
		return nil, fmt.Errorf("%w: metadata offset %d out of range", ErrMalformed, metadataOffset)
	}

	if _, err := in.Seek(int64(metadataOffset), io.SeekStart); err != nil {
		return nil, err
	}
	table, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	records, err := parseMetadata(table, metadataOffset)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func parseMetadata(table []byte, metadataOffset uint64) ([]Record, error) {
	cur := &cursor{data: table}
	count := cur.u32()
	records := make([]Record, 0, count)
	for i := uint32(0); i < count; i++ {
		var rec Record
		rec.Name = string(cur.bytes(cur.u32()))
		rec.Size = cur.u64()
		rec.Offset = cur.u64()
		rec.Compressed = cur.u8() != 0
		rec.Mode = cur.u32()
		rec.Ctime = cur.u64()
		rec.Mtime = cur.u64()
		rec.Atime = cur.u64()
		rec.Kind = types.EntryKind(cur.u16())
		rec.SymlinkTarget = string(cur.bytes(cur.u32()))
		if cur.failed {
			return nil, fmt.Errorf("%w: truncated record %d", ErrMalformed, i)
		}
		if rec.Name == "" {
			return nil, fmt.Errorf("%w: empty name in record %d", ErrMalformed, i)
		}
		if rec.Kind == types.KindRegular && rec.Offset+rec.Size > metadataOffset {
			return nil, fmt.Errorf("%w: record %d content overlaps metadata", ErrMalformed, i)
		}
		if rec.Kind == types.KindSymlink && rec.SymlinkTarget == "" {
			return nil, fmt.Errorf("%w: symlink record %d without target", ErrMalformed, i)
		}
		records = append(records, rec)
	}
	return records, nil
}

// cursor is a bounds-checked little-endian reader over the metadata table.
type cursor struct {
	data   []byte
	pos    int
	failed bool
}

func (c *cursor) bytes(n uint32) []byte {
	if c.failed || c.pos+int(n) > len(c.data) {
		c.failed = true
		return nil
	}
	b := c.data[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return b
}

func (c *cursor) u8() uint8 {
	b := c.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) u16() uint16 {
	b := c.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *cursor) u32() uint32 {
	b := c.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) u64() uint64 {
	b := c.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// Unpack materializes every entry of the package at inputPath under
// outputDir and reapplies the recorded metadata.
func Unpack(inputPath, outputDir string, log logging.Logger) error {
	records, err := ReadMetadata(inputPath)
	if err != nil {
		return err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("pack: create output dir: %w", err)
	}

	materialized := make([]bool, len(records))
	for i, rec := range records {
		target := filepath.Join(outputDir, filepath.FromSlash(rec.Name))
		if parent := filepath.Dir(target); parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return fmt.Errorf("pack: create parent of %s: %w", target, err)
			}
		}

		switch rec.Kind {
		case types.KindRegular:
			if err := extractRegular(in, rec, target); err != nil {
				return err
			}
		case types.KindDirectory:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("pack: create dir %s: %w", target, err)
			}
		case types.KindSymlink:
			// Remove whatever occupies the target; os.Symlink refuses to
			// overwrite.
			_ = os.Remove(target)
			if err := os.Symlink(rec.SymlinkTarget, target); err != nil {
				return fmt.Errorf("pack: create symlink %s: %w", target, err)
			}
		case types.KindFifo:
			if !lib.FifoSupported {
				log.Warn(fmt.Sprintf("skipping fifo %s: unsupported on this platform", rec.Name))
				continue
			}
			if err := lib.Mkfifo(target, rec.Mode&0o7777); err != nil {
				return fmt.Errorf("pack: create fifo %s: %w", target, err)
			}
		default:
			log.Warn(fmt.Sprintf("skipping %s entry %s", rec.Kind, rec.Name))
			continue
		}
		materialized[i] = true
	}

	// Metadata is reapplied in reverse record order so that directory
	// timestamps land after their children have been created.
	for i := len(records) - 1; i >= 0; i-- {
		if !materialized[i] {
			continue
		}
		rec := records[i]
		target := filepath.Join(outputDir, filepath.FromSlash(rec.Name))
		lib.ApplyMetadata(target, lib.Metadata{
			Mode:  rec.Mode,
			Atime: rec.Atime,
			Mtime: rec.Mtime,
			Ctime: rec.Ctime,
			Kind:  rec.Kind,
		}, log)
	}
	return nil
}

func extractRegular(in *os.File, rec Record, target string) error {
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("pack: create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := in.Seek(int64(rec.Offset), io.SeekStart); err != nil {
		return err
	}
	if _, err := io.CopyN(out, in, int64(rec.Size)); err != nil {
		return fmt.Errorf("pack: extract %s: %w", rec.Name, err)
	}
	return out.Sync()
}
