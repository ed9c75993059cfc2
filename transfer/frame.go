/*Package transfer packs groups of particles into self-describing frames so
that they can be handed to whatever moves bytes between processes.

The binary format used for frames is as follows:
    |-- 1 --||-- ... 2 ... --|

    1 - (FrameHeader) Fixed size header written in the native byte order.
        Its first field is a flag giving that byte order so readers on
        other machines fail loudly instead of misreading the frame.
    2 - Count particles, each packed with particles.Particle.WriteData.

Frames are self-delimiting, so many of them can be written back to back on
a single stream.
*/
package transfer

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/phil-mansfield/particles/buffer"
)

const (
	littleEndianFlag int64 = -1
	bigEndianFlag    int64 = 0

	// NoProperties is the value of FrameHeader.Properties for frames whose
	// particles carry no properties.
	NoProperties int64 = -1
)

var (
	// ErrCorruptFrame is the cause of errors returned for frames whose
	// header or checksum does not check out.
	ErrCorruptFrame = errors.New("transfer: corrupt frame")
	// ErrLayout is the cause of errors returned when particles do not match
	// the dimensions or property layout of a Packer.
	ErrLayout = errors.New("transfer: particle layout mismatch")

	order      = binary.NativeEndian
	headerSize = binary.Size(FrameHeader{})
)

// FrameHeader describes the particles stored in a frame.
type FrameHeader struct {
	Endianness int64 // -1 for little endian, 0 for big endian.
	HeaderSize int64

	Dim, SpaceDim int64
	Properties    int64 // Properties per particle, or NoProperties.

	Count       int64  // Number of particles in the frame.
	PayloadSize int64  // Number of bytes following the header.
	Checksum    uint64 // xxhash64 of the payload.
}

// HeaderSize returns the size in bytes of an encoded FrameHeader.
func HeaderSize() int { return headerSize }

func nativeEndiannessFlag() int64 {
	if order.Uint16([]byte{1, 0}) == 1 { return littleEndianFlag }
	return bigEndianFlag
}

// putHeader encodes hd into the first HeaderSize() bytes of frame.
func putHeader(frame []byte, hd *FrameHeader) {
	if err := binary.Write(bytes.NewBuffer(frame[:0]), order, hd); err != nil {
		panic(err) // Writes to a bytes.Buffer cannot fail.
	}
}

// ReadHeader decodes and checks the header at the start of frame. It
// verifies the byte order, the header size, the payload length, that Count
// records fill the payload exactly and the checksum; whether the layout
// matches a Packer is checked by the caller.
func ReadHeader(frame []byte) (*FrameHeader, error) {
	if len(frame) < headerSize {
		return nil, errors.Wrapf(ErrCorruptFrame,
			"frame has %d bytes, less than a %d byte header",
			len(frame), headerSize)
	}

	hd := &FrameHeader{}
	if err := binary.Read(bytes.NewReader(frame), order, hd); err != nil {
		return nil, errors.Wrap(err, "transfer: reading frame header")
	}

	switch {
	case hd.Endianness != nativeEndiannessFlag():
		return nil, errors.Wrapf(ErrCorruptFrame,
			"endianness flag %d does not match this machine", hd.Endianness)
	case hd.HeaderSize != int64(headerSize):
		return nil, errors.Wrapf(ErrCorruptFrame,
			"expected header size of %d, found %d", headerSize, hd.HeaderSize)
	case hd.Count < 0 || hd.Dim < 0 || hd.SpaceDim < 0 ||
		hd.Properties < NoProperties:
		return nil, errors.Wrapf(ErrCorruptFrame,
			"negative sizes in header %+v", *hd)
	case hd.PayloadSize != int64(len(frame)-headerSize):
		return nil, errors.Wrapf(ErrCorruptFrame,
			"header gives a payload of %d bytes, but frame holds %d",
			hd.PayloadSize, len(frame)-headerSize)
	}

	if err := checkCount(hd); err != nil { return nil, err }

	if sum := xxhash.Sum64(frame[headerSize:]); sum != hd.Checksum {
		return nil, errors.Wrapf(ErrCorruptFrame,
			"checksum %016x does not match header checksum %016x",
			sum, hd.Checksum)
	}
	return hd, nil
}

// checkCount returns an error unless the payload holds exactly hd.Count
// records of the layout given by hd. Every record in a frame has the same
// size, so a header cannot claim more particles than its payload can hold.
func checkCount(hd *FrameHeader) error {
	if hd.Count == 0 {
		if hd.PayloadSize == 0 { return nil }
		return errors.Wrapf(ErrCorruptFrame,
			"empty frame has a %d byte payload", hd.PayloadSize)
	}

	props := hd.Properties
	if props == NoProperties { props = 0 }

	// Sizes are compared against the payload before they are added, so the
	// record size cannot overflow.
	size := int64(buffer.IndexSize)
	fits := size <= hd.PayloadSize
	for _, n := range []int64{hd.Dim, hd.SpaceDim, props} {
		if !fits { break }
		if n > (hd.PayloadSize-size)/buffer.Float64Size {
			fits = false
		} else {
			size += n * buffer.Float64Size
		}
	}

	if !fits || hd.PayloadSize%size != 0 || hd.PayloadSize/size != hd.Count {
		return errors.Wrapf(ErrCorruptFrame,
			"%d particles with (dim, spacedim, properties) = (%d, %d, %d) "+
				"do not fill a %d byte payload",
			hd.Count, hd.Dim, hd.SpaceDim, hd.Properties, hd.PayloadSize)
	}
	return nil
}

// WriteFrame writes frame to w.
func WriteFrame(w io.Writer, frame []byte) error {
	_, err := w.Write(frame)
	return errors.Wrap(err, "transfer: writing frame")
}

// ReadFrame reads the next frame from r. It returns io.EOF if r is
// exhausted exactly at a frame boundary, and an error wrapping
// ErrCorruptFrame if r ends partway through a payload. The frame's checksum is verified
// when it is unpacked, not here.
func ReadFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, headerSize)
	if _, err := io.ReadFull(r, head); err != nil {
		if err == io.EOF { return nil, io.EOF }
		return nil, errors.Wrap(err, "transfer: reading frame header")
	}

	hd := &FrameHeader{}
	if err := binary.Read(bytes.NewReader(head), order, hd); err != nil {
		return nil, errors.Wrap(err, "transfer: reading frame header")
	}
	if hd.HeaderSize != int64(headerSize) || hd.PayloadSize < 0 {
		return nil, errors.Wrapf(ErrCorruptFrame,
			"header size %d, payload size %d", hd.HeaderSize, hd.PayloadSize)
	}

	// The payload size has not been checked against anything yet, so the
	// frame only grows as payload bytes actually arrive.
	frame := bytes.NewBuffer(head)
	n, err := io.CopyN(frame, r, hd.PayloadSize)
	if err == io.EOF {
		return nil, errors.Wrapf(ErrCorruptFrame,
			"stream ended %d bytes into a %d byte payload", n, hd.PayloadSize)
	} else if err != nil {
		return nil, errors.Wrap(err, "transfer: reading frame payload")
	}
	return frame.Bytes(), nil
}
