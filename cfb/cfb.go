// Package cfb reads the Microsoft Compound File Binary File Format, the
// container that holds the Workbook stream of an .xls file.
package cfb

// https://docs.microsoft.com/en-us/openspecs/windows_protocols/ms-cfb/53989ce4-7b05-4f8d-829b-d08d6148375b
// Note for myself:
//   Storage = Directory
//   Stream = File

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf16"

	"github.com/pbnjay/biffcodec"
)

const (
	secFree       uint32 = 0xFFFFFFFF // FREESECT
	secEndOfChain uint32 = 0xFFFFFFFE // ENDOFCHAIN
	secFAT        uint32 = 0xFFFFFFFD // FATSECT
	secDIFAT      uint32 = 0xFFFFFFFC // DIFSECT
)

const signature = 0xe11ab1a1e011cfd0

const (
	headerSize   = 512
	dirEntrySize = 128
)

// Header of the Compound File MUST be at the beginning of the file (offset 0).
type header struct {
	Signature                    uint64    // MUST be 0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1.
	ClassID                      [2]uint64 // MUST be all zeroes (CLSID_NULL).
	MinorVersion                 uint16    // SHOULD be 0x003E.
	MajorVersion                 uint16    // 3 or 4
	ByteOrder                    uint16    // MUST be 0xFFFE (little-endian).
	SectorShift                  uint16    // 9 for version 3, 12 for version 4
	MiniSectorShift              uint16    // MUST be 6 (64 byte mini sectors)
	Reserved1                    [6]byte
	NumDirectorySectors          int32 // zero for version 3
	NumFATSectors                int32
	FirstDirectorySectorLocation uint32
	TransactionSignature         int32
	MiniStreamCutoffSize         int32 // MUST be 4096
	FirstMiniFATSectorLocation   uint32
	NumMiniFATSectors            int32
	FirstDIFATSectorLocation     uint32
	NumDIFATSectors              int32
	DIFAT                        [109]uint32 // the first 109 FAT sector locations
}

type objectType byte

const (
	typeUnknown     objectType = 0x00
	typeStorage     objectType = 0x01
	typeStream      objectType = 0x02
	typeRootStorage objectType = 0x05
)

type directory struct {
	Name                   [32]uint16 // 32 utf16 characters
	NameByteLen            int16      // length of Name in bytes, terminator included
	ObjectType             objectType
	ColorFlag              byte   // 0=red, 1=black
	LeftSiblingID          uint32 // stream ids
	RightSiblingID         uint32
	ChildID                uint32
	ClassID                [2]uint64 // GUID
	StateBits              uint32
	CreationTime           int64
	ModifiedTime           int64
	StartingSectorLocation uint32
	StreamSize             uint64
}

func (d *directory) String() string {
	if (d.NameByteLen&1) == 1 || d.NameByteLen < 2 || d.NameByteLen > 64 {
		return "<invalid utf16 string>"
	}
	r16 := utf16.Decode(d.Name[:int(d.NameByteLen)/2])
	// trim off null terminator
	return string(r16[:len(r16)-1])
}

func corrupt(format string, args ...interface{}) error {
	return biffcodec.WrapErr(fmt.Errorf("cfb: "+format, args...), biffcodec.ErrMalformed)
}

// Document is a Compound File Binary Format document loaded into memory.
type Document struct {
	data []byte

	header *header
	dir    []*directory

	// lookup tables for all the sectors
	fat     []uint32
	minifat []uint32

	// sectors of the mini stream, in order
	ministream [][]byte
}

// Open loads the compound document in filename.
func Open(filename string) (*Document, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load reads an entire compound document from r.
func Load(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	d := &Document{data: data}
	if err = d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// IsCompoundFile reports whether data starts with the compound file signature.
func IsCompoundFile(data []byte) bool {
	return len(data) >= 8 && binary.LittleEndian.Uint64(data) == signature
}

func (d *Document) sectorSize() int {
	return 1 << d.header.SectorShift
}

// sector returns the contents of regular sector sid.
func (d *Document) sector(sid uint32) ([]byte, error) {
	if sid > 0xFFFFFFFA {
		return nil, corrupt("invalid sector id %08x", sid)
	}
	size := d.sectorSize()
	offs := (int64(sid) + 1) << d.header.SectorShift
	if offs >= int64(len(d.data)) {
		return nil, corrupt("sector %d beyond end of file", sid)
	}
	end := offs + int64(size)
	if end > int64(len(d.data)) {
		// the final sector is sometimes truncated
		end = int64(len(d.data))
	}
	return d.data[offs:end], nil
}

// chain returns the sectors of the FAT chain starting at sid.
func (d *Document) chain(sid uint32) ([][]byte, error) {
	var res [][]byte
	for sid != secEndOfChain && sid != secFree {
		if len(res) > len(d.fat) {
			return nil, corrupt("sector chain loops")
		}
		sec, err := d.sector(sid)
		if err != nil {
			return nil, err
		}
		res = append(res, sec)
		if int(sid) >= len(d.fat) {
			return nil, corrupt("sector %d not in FAT", sid)
		}
		sid = d.fat[sid]
	}
	return res, nil
}

func (d *Document) load() error {
	if !IsCompoundFile(d.data) || len(d.data) < headerSize {
		return biffcodec.ErrNotInFormat
	}
	h := &header{}
	if err := binary.Read(bytes.NewReader(d.data), binary.LittleEndian, h); err != nil {
		return biffcodec.WrapErr(err, biffcodec.ErrNotInFormat)
	}
	if h.ByteOrder != 0xFFFE || h.ClassID[0] != 0 || h.ClassID[1] != 0 {
		return biffcodec.ErrNotInFormat
	}
	switch {
	case h.MajorVersion == 3 && h.SectorShift == 9:
	case h.MajorVersion == 4 && h.SectorShift == 12:
	default:
		return corrupt("unknown version %d with %d byte sectors", h.MajorVersion, 1<<(h.SectorShift&31))
	}
	if h.MinorVersion != 0x3E {
		biffcodec.Logger().WithField("component", "cfb").Warnf("minor version is 0x%02x, not 0x3E", h.MinorVersion)
	}
	if h.MiniSectorShift != 6 {
		return corrupt("invalid mini sector size")
	}
	if h.MiniStreamCutoffSize != 0x00001000 {
		return corrupt("invalid mini sector cutoff")
	}
	d.header = h

	// step 1: the FAT, whose sectors are listed in the header and DIFAT chain
	numFATentries := d.sectorSize() / 4
	le := binary.LittleEndian
	fatSectors := make([]uint32, 0, 109)
	for _, sid := range h.DIFAT {
		if sid == secFree {
			break
		}
		fatSectors = append(fatSectors, sid)
	}
	difat := h.FirstDIFATSectorLocation
	for n := 0; n < int(h.NumDIFATSectors) && difat != secEndOfChain && difat != secFree; n++ {
		sec, err := d.sector(difat)
		if err != nil {
			return err
		}
		if len(sec) < d.sectorSize() {
			return corrupt("truncated DIFAT sector")
		}
		for i := 0; i < numFATentries-1; i++ {
			sid := le.Uint32(sec[i*4:])
			if sid != secFree && sid != secEndOfChain {
				fatSectors = append(fatSectors, sid)
			}
		}
		// chain the next DIFAT sector
		difat = le.Uint32(sec[(numFATentries-1)*4:])
	}

	d.fat = make([]uint32, 0, numFATentries*len(fatSectors))
	for _, sid := range fatSectors {
		sec, err := d.sector(sid)
		if err != nil {
			return err
		}
		for j := 0; j+4 <= len(sec); j += 4 {
			d.fat = append(d.fat, le.Uint32(sec[j:]))
		}
	}

	// step 2: the mini FAT
	if h.NumMiniFATSectors > 0 {
		secs, err := d.chain(h.FirstMiniFATSectorLocation)
		if err != nil {
			return err
		}
		for _, sec := range secs {
			for j := 0; j+4 <= len(sec); j += 4 {
				d.minifat = append(d.minifat, le.Uint32(sec[j:]))
			}
		}
	}

	// step 3: the directory entries
	if err := d.buildDirs(); err != nil {
		return err
	}

	// step 4: the mini stream, stored in the root entry's chain
	for _, e := range d.dir {
		if e.ObjectType != typeRootStorage {
			continue
		}
		secs, err := d.chain(e.StartingSectorLocation)
		if err != nil {
			return err
		}
		d.ministream = secs
		break
	}
	return nil
}

func (d *Document) buildDirs() error {
	secs, err := d.chain(d.header.FirstDirectorySectorLocation)
	if err != nil {
		return err
	}
	for _, sec := range secs {
		br := bytes.NewReader(sec)
		for br.Len() >= dirEntrySize {
			dirent := &directory{}
			if err := binary.Read(br, binary.LittleEndian, dirent); err != nil {
				return corrupt("reading directory: %v", err)
			}
			if d.header.MajorVersion == 3 {
				// mask out upper 32bits
				dirent.StreamSize = dirent.StreamSize & 0xFFFFFFFF
			}
			if dirent.ObjectType == typeUnknown {
				continue
			}
			d.dir = append(d.dir, dirent)
		}
	}
	if len(d.dir) == 0 || d.dir[0].ObjectType != typeRootStorage {
		return corrupt("missing root directory entry")
	}
	return nil
}

// List returns the names of the streams contained in the document.
func (d *Document) List() ([]string, error) {
	var res []string
	for _, e := range d.dir {
		if e.ObjectType == typeStream {
			res = append(res, e.String())
		}
	}
	return res, nil
}

// ErrStreamNotFound is returned by Open for an unknown stream name.
var ErrStreamNotFound = errors.New("cfb: stream not found")

// Open returns a reader for the named stream contained in the document.
func (d *Document) Open(name string) (*SliceReader, error) {
	for _, e := range d.dir {
		if e.ObjectType != typeStream || e.String() != name {
			continue
		}
		if e.StreamSize < uint64(d.header.MiniStreamCutoffSize) {
			return d.getMiniStreamReader(e.StartingSectorLocation, e.StreamSize)
		}
		return d.getStreamReader(e.StartingSectorLocation, e.StreamSize)
	}
	return nil, biffcodec.WrapErr(fmt.Errorf("cfb: stream '%s' not found", name), ErrStreamNotFound)
}

// ReadStream returns the complete contents of the named stream.
func (d *Document) ReadStream(name string) ([]byte, error) {
	r, err := d.Open(name)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func (d *Document) getStreamReader(sid uint32, size uint64) (*SliceReader, error) {
	// NB streamData is a slice of slices of the raw data, so this is the
	// only allocation - for the (much smaller) list of sector slices
	secs, err := d.chain(sid)
	if err != nil {
		return nil, err
	}
	return trimSectors(secs, size)
}

func (d *Document) getMiniStreamReader(sid uint32, size uint64) (*SliceReader, error) {
	secSize := int64(d.sectorSize())
	miniSecSize := int64(1) << d.header.MiniSectorShift

	var secs [][]byte
	for sid != secEndOfChain && sid != secFree && uint64(len(secs))*uint64(miniSecSize) < size {
		if int(sid) >= len(d.minifat) || len(secs) > len(d.minifat) {
			return nil, corrupt("mini sector %d not in mini FAT", sid)
		}
		offs := int64(sid) << d.header.MiniSectorShift
		so, si := offs/secSize, offs%secSize
		if so >= int64(len(d.ministream)) || si+miniSecSize > int64(len(d.ministream[so])) {
			return nil, corrupt("mini sector %d beyond end of mini stream", sid)
		}
		secs = append(secs, d.ministream[so][si:si+miniSecSize])
		sid = d.minifat[sid]
	}
	return trimSectors(secs, size)
}

// trimSectors cuts a sector list down to size bytes.
func trimSectors(secs [][]byte, size uint64) (*SliceReader, error) {
	res := make([][]byte, 0, len(secs))
	for _, sec := range secs {
		if size == 0 {
			break
		}
		if size < uint64(len(sec)) {
			sec = sec[:size]
		}
		size -= uint64(len(sec))
		res = append(res, sec)
	}
	if size != 0 {
		return nil, corrupt("incomplete read")
	}
	return &SliceReader{Data: res}, nil
}
