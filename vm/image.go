package vm

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Compiled images
// ---------------------------------------------------------------------------

// ImageMagic prefixes every compiled image.
var ImageMagic = []byte("\x1bLuma")

// ImageVersion is the current image format version.
const ImageVersion = 1

// ErrNotImage is returned when data does not start with ImageMagic.
var ErrNotImage = errors.New("vm: not a compiled image")

// image is the serialized form of a compiled chunk.
type image struct {
	Version int        `cbor:"1,keyasint"`
	Main    *Prototype `cbor:"2,keyasint"`
}

// cborEncMode uses canonical encoding so equal prototypes produce equal
// bytes and equal hashes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalImage serializes a main prototype and its nested prototypes.
func MarshalImage(p *Prototype) ([]byte, error) {
	body, err := cborEncMode.Marshal(&image{Version: ImageVersion, Main: p})
	if err != nil {
		return nil, fmt.Errorf("vm: marshal image: %w", err)
	}
	return append(append([]byte(nil), ImageMagic...), body...), nil
}

// UnmarshalImage deserializes an image produced by MarshalImage.
func UnmarshalImage(data []byte) (*Prototype, error) {
	if !bytes.HasPrefix(data, ImageMagic) {
		return nil, ErrNotImage
	}
	var img image
	if err := cbor.Unmarshal(data[len(ImageMagic):], &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("vm: unsupported image version %d", img.Version)
	}
	if img.Main == nil {
		return nil, fmt.Errorf("vm: image has no main function")
	}
	return img.Main, nil
}

// Hash computes a content hash of p: the SHA-256 of its canonical
// encoding. Prototypes that differ only in debug information hash
// differently; hash p.Strip() to ignore it.
func Hash(p *Prototype) ([32]byte, error) {
	data, err := cborEncMode.Marshal(p)
	if err != nil {
		return [32]byte{}, fmt.Errorf("vm: hash prototype: %w", err)
	}
	return sha256.Sum256(data), nil
}
