package codec

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/bibin-skaria/jarslim/internal/types"
)

const (
	packedFormatVersion = "1"

	paxFormat       = "JARSLIM.format"
	paxMode         = "JARSLIM.mode"
	paxDeflateHint  = "JARSLIM.deflate_hint"
	paxSegmentLimit = "JARSLIM.segment_limit"
	paxComment      = "JARSLIM.comment"
	paxSegment      = "JARSLIM.segment"
	paxMethod       = "JARSLIM.method"

	modeEntries     = "entries"
	modeEmpty       = "empty"
	modePassthrough = "passthrough"

	passthroughName = "archive"
	manifestDir     = "META-INF/"
	manifestName    = "META-INF/MANIFEST.MF"
)

// JarCodec packs zip-based archives (jar, war, ear...) into a tar stream and
// back. It is safe for concurrent use.
type JarCodec struct {
	opts   types.CodecOptions
	filter *AttributeFilter
}

// NewJarCodec validates opts and returns a codec using them.
func NewJarCodec(opts types.CodecOptions) (*JarCodec, error) {
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}
	return &JarCodec{
		opts:   opts,
		filter: NewAttributeFilter(opts.StripAttributes, opts.FailOnUnknownAttribute),
	}, nil
}

// Options returns the options the codec was built with.
func (c *JarCodec) Options() types.CodecOptions {
	return c.opts
}

type packEntry struct {
	file    *zip.File
	name    string
	dir     bool
	modTime time.Time
	index   int
}

// Pack writes the packed form of the archive to packed.
func (c *JarCodec) Pack(archive io.ReaderAt, size int64, packed io.Writer) error {
	tw := tar.NewWriter(packed)

	global := map[string]string{
		paxFormat:       packedFormatVersion,
		paxDeflateHint:  c.opts.DeflateHint,
		paxSegmentLimit: strconv.FormatInt(c.opts.SegmentLimit, 10),
	}

	switch {
	case size == 0:
		global[paxMode] = modeEmpty
		if err := writeGlobalHeader(tw, global); err != nil {
			return err
		}
		return tw.Close()

	case c.opts.Effort == 0:
		global[paxMode] = modePassthrough
		if err := writeGlobalHeader(tw, global); err != nil {
			return err
		}
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     passthroughName,
			Mode:     0644,
			Size:     size,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := io.Copy(tw, io.NewSectionReader(archive, 0, size)); err != nil {
			return err
		}
		return tw.Close()
	}

	zr, err := zip.NewReader(archive, size)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	entries, err := c.collectEntries(zr)
	if err != nil {
		return err
	}

	global[paxMode] = modeEntries
	if zr.Comment != "" {
		global[paxComment] = zr.Comment
	}
	if err := writeGlobalHeader(tw, global); err != nil {
		return err
	}

	var segment, segmentBytes int64
	for i, entry := range entries {
		content, entrySize, err := c.entryContent(entry)
		if err != nil {
			return fmt.Errorf("entry %s: %w", entry.name, err)
		}

		segment, segmentBytes = c.nextSegment(i, segment, segmentBytes, entrySize)

		if err := c.writeEntry(tw, entry, content, entrySize, segment); err != nil {
			return fmt.Errorf("entry %s: %w", entry.name, err)
		}
	}

	return tw.Close()
}

// collectEntries reads the central directory, applies the ordering and
// modification time policies and rejects duplicate names.
func (c *JarCodec) collectEntries(zr *zip.Reader) ([]packEntry, error) {
	entries := make([]packEntry, 0, len(zr.File))
	seen := make(map[string]bool, len(zr.File))
	var latest time.Time

	for i, f := range zr.File {
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate entry %s", f.Name)
		}
		seen[f.Name] = true

		modTime := f.Modified.UTC().Truncate(time.Second)
		if modTime.After(latest) {
			latest = modTime
		}
		entries = append(entries, packEntry{
			file:    f,
			name:    f.Name,
			dir:     strings.HasSuffix(f.Name, "/"),
			modTime: modTime,
			index:   i,
		})
	}

	if c.opts.ModificationTime == ModificationTimeLatest {
		for i := range entries {
			entries[i].modTime = latest
		}
	}

	if !c.opts.KeepFileOrder {
		sort.SliceStable(entries, func(i, j int) bool {
			ri, rj := entryRank(entries[i].name), entryRank(entries[j].name)
			if ri != rj {
				return ri < rj
			}
			return entries[i].name < entries[j].name
		})
	}

	return entries, nil
}

// entryRank puts the manifest directory and the manifest ahead of everything
// else, where jar readers expect them.
func entryRank(name string) int {
	switch name {
	case manifestDir:
		return 0
	case manifestName:
		return 1
	default:
		return 2
	}
}

// entryContent returns a reader for the entry's packed content and its size.
// Class files are filtered in memory, everything else is streamed.
func (c *JarCodec) entryContent(entry packEntry) (io.Reader, int64, error) {
	if entry.dir {
		return nil, 0, nil
	}

	rc, err := entry.file.Open()
	if err != nil {
		return nil, 0, err
	}

	if !strings.HasSuffix(entry.name, ".class") {
		return &closingReader{rc: rc}, int64(entry.file.UncompressedSize64), nil
	}

	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, 0, err
	}
	data, err = c.filter.Filter(data)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// nextSegment returns the segment index of entry i. A limit of -1 keeps one
// segment, 0 gives every entry its own segment.
func (c *JarCodec) nextSegment(i int, segment, segmentBytes, size int64) (int64, int64) {
	limit := c.opts.SegmentLimit
	switch {
	case i == 0:
		return 0, size
	case limit < 0:
		return segment, segmentBytes + size
	case limit == 0:
		return segment + 1, size
	case segmentBytes+size > limit:
		return segment + 1, size
	default:
		return segment, segmentBytes + size
	}
}

func (c *JarCodec) writeEntry(tw *tar.Writer, entry packEntry, content io.Reader, size, segment int64) error {
	if cr, ok := content.(*closingReader); ok {
		defer cr.Close()
	}

	hdr := &tar.Header{
		Name:       entry.name,
		ModTime:    entry.modTime,
		PAXRecords: map[string]string{paxSegment: strconv.FormatInt(segment, 10)},
	}
	if c.opts.DeflateHint == DeflateHintKeep {
		hdr.PAXRecords[paxMethod] = strconv.Itoa(int(entry.file.Method))
	}

	if entry.dir {
		hdr.Typeflag = tar.TypeDir
		hdr.Mode = 0755
		return tw.WriteHeader(hdr)
	}

	hdr.Typeflag = tar.TypeReg
	hdr.Mode = 0644
	hdr.Size = size
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, content)
	return err
}

func writeGlobalHeader(tw *tar.Writer, records map[string]string) error {
	return tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: records,
	})
}

// Unpack reads a packed form and writes the normalized archive to archive.
func (c *JarCodec) Unpack(packed io.Reader, archive io.Writer) error {
	tr := tar.NewReader(packed)

	global, err := tr.Next()
	if err != nil {
		return fmt.Errorf("failed to read packed header: %w", err)
	}
	if global.Typeflag != tar.TypeXGlobalHeader || global.PAXRecords[paxFormat] != packedFormatVersion {
		return fmt.Errorf("not a packed archive (format %q)", global.PAXRecords[paxFormat])
	}

	switch mode := global.PAXRecords[paxMode]; mode {
	case modeEmpty:
		if _, err := tr.Next(); err != io.EOF {
			return fmt.Errorf("unexpected content after empty archive marker")
		}
		return nil

	case modePassthrough:
		hdr, err := tr.Next()
		if err != nil {
			return fmt.Errorf("failed to read passthrough entry: %w", err)
		}
		if hdr.Name != passthroughName {
			return fmt.Errorf("unexpected passthrough entry %s", hdr.Name)
		}
		_, err = io.Copy(archive, tr)
		return err

	case modeEntries:
		return unpackEntries(tr, global.PAXRecords, archive)

	default:
		return fmt.Errorf("unknown packed mode %q", mode)
	}
}

func unpackEntries(tr *tar.Reader, global map[string]string, archive io.Writer) error {
	hint := global[paxDeflateHint]
	switch hint {
	case DeflateHintTrue, DeflateHintFalse, DeflateHintKeep:
	default:
		return fmt.Errorf("unknown deflate hint %q", hint)
	}

	zw := zip.NewWriter(archive)
	if comment, ok := global[paxComment]; ok {
		if err := zw.SetComment(comment); err != nil {
			return err
		}
	}

	lastSegment := int64(-1)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read packed entry: %w", err)
		}

		segment, err := strconv.ParseInt(hdr.PAXRecords[paxSegment], 10, 64)
		if err != nil || segment < lastSegment {
			return fmt.Errorf("entry %s: invalid segment %q", hdr.Name, hdr.PAXRecords[paxSegment])
		}
		lastSegment = segment

		method, err := entryMethod(hint, hdr)
		if err != nil {
			return fmt.Errorf("entry %s: %w", hdr.Name, err)
		}

		fh := &zip.FileHeader{
			Name:     hdr.Name,
			Method:   method,
			Modified: hdr.ModTime.UTC(),
		}
		if hdr.Typeflag == tar.TypeDir {
			if !strings.HasSuffix(fh.Name, "/") {
				fh.Name += "/"
			}
			fh.Method = zip.Store
		}

		w, err := zw.CreateHeader(fh)
		if err != nil {
			return fmt.Errorf("entry %s: %w", hdr.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.Copy(w, tr); err != nil {
				return fmt.Errorf("entry %s: %w", hdr.Name, err)
			}
		}
	}

	return zw.Close()
}

func entryMethod(hint string, hdr *tar.Header) (uint16, error) {
	switch hint {
	case DeflateHintTrue:
		return zip.Deflate, nil
	case DeflateHintFalse:
		return zip.Store, nil
	}

	m, err := strconv.ParseUint(hdr.PAXRecords[paxMethod], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("missing compression method: %w", err)
	}
	switch uint16(m) {
	case zip.Store, zip.Deflate:
		return uint16(m), nil
	default:
		// methods other than store/deflate are re-encoded with deflate
		return zip.Deflate, nil
	}
}

// closingReader closes the underlying entry reader once the entry is written.
type closingReader struct {
	rc io.ReadCloser
}

func (r *closingReader) Read(p []byte) (int, error) {
	return r.rc.Read(p)
}

func (r *closingReader) Close() error {
	return r.rc.Close()
}
