package metadata

import (
	"bytes"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	exifundefined "github.com/dsoprea/go-exif/v3/undefined"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	"golang.org/x/text/encoding/unicode"
)

// writeJPEG merges the tags into the existing EXIF block, creating one when
// the file has none.
func writeJPEG(path, tags string) error {
	intfc, err := jpegstructure.NewJpegMediaParser().ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse jpeg: %w", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		rootIb, err = newRootBuilder()
		if err != nil {
			return err
		}
	}

	ifd0, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return fmt.Errorf("ifd0: %w", err)
	}
	if err := ifd0.SetStandardWithName("ImageDescription", tags); err != nil {
		return fmt.Errorf("set ImageDescription: %w", err)
	}

	exifIfd, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD/Exif")
	if err != nil {
		return fmt.Errorf("exif ifd: %w", err)
	}
	comment, err := userComment(tags)
	if err != nil {
		return err
	}
	if err := exifIfd.SetStandardWithName("UserComment", comment); err != nil {
		return fmt.Errorf("set UserComment: %w", err)
	}

	if err := sl.SetExif(rootIb); err != nil {
		return fmt.Errorf("set exif: %w", err)
	}

	var buf bytes.Buffer
	if err := sl.Write(&buf); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return replaceFile(path, buf.Bytes())
}

// userComment encodes tags as ASCII when possible, otherwise as UTF-16 with a
// byte order mark, since the codec does not follow the EXIF byte order.
func userComment(tags string) (exifundefined.Tag9286UserComment, error) {
	if isASCII(tags) {
		return exifundefined.Tag9286UserComment{
			EncodingType:  exifundefined.TagUndefinedType_9286_UserComment_Encoding_ASCII,
			EncodingBytes: []byte(tags),
		}, nil
	}
	encoded, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(tags))
	if err != nil {
		return exifundefined.Tag9286UserComment{}, fmt.Errorf("encode UserComment: %w", err)
	}
	return exifundefined.Tag9286UserComment{
		EncodingType:  exifundefined.TagUndefinedType_9286_UserComment_Encoding_UNICODE,
		EncodingBytes: encoded,
	}, nil
}

func newRootBuilder() (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("ifd mapping: %w", err)
	}
	ti := exif.NewTagIndex()
	return exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}
