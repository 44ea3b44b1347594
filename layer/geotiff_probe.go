package layer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TIFF and GeoTIFF constants used by the projection probe.
const (
	tiffMagic           = 42
	bigTIFFMagic        = 43
	tagGeoKeyDirectory  = 34735
	typeShort           = 3
	keyProjectedCSType  = 3072
	keyGeographicType   = 2048
	userDefinedGeoKey   = 32767
	ifdEntrySize        = 12
	geoKeyHeaderEntries = 4
)

var (
	// ErrNotTIFF is returned for data without a classic TIFF header.
	ErrNotTIFF = errors.New("layer: not a TIFF file")
	// ErrNoProjection is returned for a TIFF without an EPSG coded geokey.
	ErrNoProjection = errors.New("layer: no EPSG projection in GeoTIFF keys")
)

// ProbeProjection reads the EPSG code from a GeoTIFF's key directory. A
// projected CRS key is preferred over a geographic one.
func ProbeProjection(data []byte) (int, error) {
	if len(data) < 8 {
		return 0, ErrNotTIFF
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, ErrNotTIFF
	}
	switch order.Uint16(data[2:4]) {
	case tiffMagic:
	case bigTIFFMagic:
		return 0, fmt.Errorf("%w: BigTIFF is not supported", ErrNotTIFF)
	default:
		return 0, ErrNotTIFF
	}

	ifd := int(order.Uint32(data[4:8]))
	if ifd+2 > len(data) {
		return 0, fmt.Errorf("%w: IFD offset %d out of range", ErrNotTIFF, ifd)
	}
	count := int(order.Uint16(data[ifd : ifd+2]))
	for i := 0; i < count; i++ {
		at := ifd + 2 + i*ifdEntrySize
		if at+ifdEntrySize > len(data) {
			return 0, fmt.Errorf("%w: truncated IFD", ErrNotTIFF)
		}
		if order.Uint16(data[at:at+2]) != tagGeoKeyDirectory {
			continue
		}
		if order.Uint16(data[at+2:at+4]) != typeShort {
			return 0, fmt.Errorf("%w: geokey directory is not SHORT typed", ErrNotTIFF)
		}
		n := int(order.Uint32(data[at+4 : at+8]))
		var raw []byte
		if n*2 <= 4 {
			raw = data[at+8 : at+8+n*2]
		} else {
			off := int(order.Uint32(data[at+8 : at+12]))
			if off < 0 || off+n*2 > len(data) {
				return 0, fmt.Errorf("%w: geokey directory out of range", ErrNotTIFF)
			}
			raw = data[off : off+n*2]
		}
		return epsgFromGeoKeys(raw, order)
	}
	return 0, ErrNoProjection
}

func epsgFromGeoKeys(raw []byte, order binary.ByteOrder) (int, error) {
	shorts := make([]uint16, len(raw)/2)
	for i := range shorts {
		shorts[i] = order.Uint16(raw[i*2:])
	}
	if len(shorts) < geoKeyHeaderEntries {
		return 0, ErrNoProjection
	}
	keys := int(shorts[3])
	found := map[uint16]int{}
	for i := 0; i < keys; i++ {
		at := geoKeyHeaderEntries + i*4
		if at+4 > len(shorts) {
			break
		}
		id, location, value := shorts[at], shorts[at+1], shorts[at+3]
		// Location 0 means the value is stored inline.
		if location != 0 || value == 0 || value == userDefinedGeoKey {
			continue
		}
		found[id] = int(value)
	}
	if code, ok := found[keyProjectedCSType]; ok {
		return code, nil
	}
	if code, ok := found[keyGeographicType]; ok {
		return code, nil
	}
	return 0, ErrNoProjection
}
