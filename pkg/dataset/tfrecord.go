/*
 * Copyright (C) 2025-2026, IDLab, Ghent University - imec. All rights reserved.
 * See LICENSE for license information.
 */

package dataset

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	commonerrors "github.com/wiebe-vandendriessche/AIBoMGen/pkg/errors"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// TfrecordData summarizes a validated TFRecord dataset.
type TfrecordData struct {
	NumRecords  int
	FeatureKeys []string
}

// tfFeature is a decoded tf.train.Feature value.
type tfFeature struct {
	floats []float64
	ints   []int64
	bytes  [][]byte
}

func (f *tfFeature) length() int {
	return len(f.floats) + len(f.ints) + len(f.bytes)
}

// LoadTfrecord reads path and validates every record against the feature
// specs of def, which must be a tfrecord definition.
func LoadTfrecord(path string, def *Definition) (*TfrecordData, error) {
	if def.Type != KindTfrecord {
		return nil, commonerrors.NewBadRequest(
			fmt.Sprintf("dataset definition type is %s, expected %s", def.Type, KindTfrecord))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, commonerrors.NewInputMissing(fmt.Sprintf("failed to open %s", path)).WithError(err)
	}
	defer f.Close()

	data := &TfrecordData{FeatureKeys: def.FeatureColumns()}
	reader := bufio.NewReader(f)
	for {
		record, err := readRecord(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		features, err := parseExample(record)
		if err != nil {
			return nil, err
		}
		if err = validateRecord(features, def, data.NumRecords); err != nil {
			return nil, err
		}
		data.NumRecords++
	}
	if data.NumRecords == 0 {
		return nil, commonerrors.NewSchemaMismatch("dataset contains no records")
	}
	return data, nil
}

// readRecord reads one length-prefixed TFRecord frame and verifies both
// masked CRC32C checksums.
func readRecord(r io.Reader) ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, commonerrors.NewBadRequest("truncated TFRecord header").WithError(err)
	}
	length := binary.LittleEndian.Uint64(header[:8])
	lengthCrc := binary.LittleEndian.Uint32(header[8:12])
	if maskedCrc(header[:8]) != lengthCrc {
		return nil, commonerrors.NewBadRequest("TFRecord length checksum mismatch")
	}
	if length > MaxUncompressedEntrySize {
		return nil, commonerrors.NewRequestEntityTooLargeError("TFRecord entry exceeds the allowed size")
	}
	payload := make([]byte, length+4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, commonerrors.NewBadRequest("truncated TFRecord payload").WithError(err)
	}
	data := payload[:length]
	dataCrc := binary.LittleEndian.Uint32(payload[length:])
	if maskedCrc(data) != dataCrc {
		return nil, commonerrors.NewBadRequest("TFRecord data checksum mismatch")
	}
	return data, nil
}

// maskedCrc computes the masked CRC32C used by the TFRecord format.
func maskedCrc(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// parseExample decodes a serialized tf.train.Example into its feature map.
func parseExample(data []byte) (map[string]*tfFeature, error) {
	// Example has a single Features message in field 1, which in turn
	// holds a map<string, Feature> in field 1.
	featuresMsg, err := messageField(data, 1)
	if err != nil {
		return nil, err
	}
	features := map[string]*tfFeature{}
	for len(featuresMsg) > 0 {
		num, typ, n := protowire.ConsumeTag(featuresMsg)
		if n < 0 {
			return nil, badExample()
		}
		featuresMsg = featuresMsg[n:]
		if num != 1 || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, featuresMsg)
			if n < 0 {
				return nil, badExample()
			}
			featuresMsg = featuresMsg[n:]
			continue
		}
		entry, n := protowire.ConsumeBytes(featuresMsg)
		if n < 0 {
			return nil, badExample()
		}
		featuresMsg = featuresMsg[n:]
		key, feature, err := parseMapEntry(entry)
		if err != nil {
			return nil, err
		}
		features[key] = feature
	}
	return features, nil
}

func parseMapEntry(entry []byte) (string, *tfFeature, error) {
	var key string
	feature := &tfFeature{}
	for len(entry) > 0 {
		num, typ, n := protowire.ConsumeTag(entry)
		if n < 0 {
			return "", nil, badExample()
		}
		entry = entry[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(entry)
			if n < 0 {
				return "", nil, badExample()
			}
			entry = entry[n:]
			key = string(raw)
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(entry)
			if n < 0 {
				return "", nil, badExample()
			}
			entry = entry[n:]
			if err := parseFeature(raw, feature); err != nil {
				return "", nil, err
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, entry)
			if n < 0 {
				return "", nil, badExample()
			}
			entry = entry[n:]
		}
	}
	return key, feature, nil
}

// parseFeature decodes a tf.train.Feature: BytesList in field 1,
// FloatList in field 2, Int64List in field 3.
func parseFeature(data []byte, out *tfFeature) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 || typ != protowire.BytesType {
			return badExample()
		}
		data = data[n:]
		list, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return badExample()
		}
		data = data[n:]
		switch num {
		case 1:
			if err := parseBytesList(list, out); err != nil {
				return err
			}
		case 2:
			if err := parseFloatList(list, out); err != nil {
				return err
			}
		case 3:
			if err := parseInt64List(list, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseBytesList(data []byte, out *tfFeature) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 || num != 1 || typ != protowire.BytesType {
			return badExample()
		}
		data = data[n:]
		value, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return badExample()
		}
		data = data[n:]
		out.bytes = append(out.bytes, value)
	}
	return nil
}

func parseFloatList(data []byte, out *tfFeature) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 || num != 1 {
			return badExample()
		}
		data = data[n:]
		switch typ {
		case protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return badExample()
			}
			data = data[n:]
			for len(packed) >= 4 {
				bits := binary.LittleEndian.Uint32(packed[:4])
				out.floats = append(out.floats, float64(math.Float32frombits(bits)))
				packed = packed[4:]
			}
		case protowire.Fixed32Type:
			bits, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return badExample()
			}
			data = data[n:]
			out.floats = append(out.floats, float64(math.Float32frombits(bits)))
		default:
			return badExample()
		}
	}
	return nil
}

func parseInt64List(data []byte, out *tfFeature) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 || num != 1 {
			return badExample()
		}
		data = data[n:]
		switch typ {
		case protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return badExample()
			}
			data = data[n:]
			for len(packed) > 0 {
				value, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return badExample()
				}
				packed = packed[n:]
				out.ints = append(out.ints, int64(value))
			}
		case protowire.VarintType:
			value, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return badExample()
			}
			data = data[n:]
			out.ints = append(out.ints, int64(value))
		default:
			return badExample()
		}
	}
	return nil
}

// messageField extracts the first occurrence of a length-delimited field.
func messageField(data []byte, field protowire.Number) ([]byte, error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, badExample()
		}
		data = data[n:]
		if num == field && typ == protowire.BytesType {
			value, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, badExample()
			}
			return value, nil
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return nil, badExample()
		}
		data = data[n:]
	}
	return nil, nil
}

func badExample() error {
	return commonerrors.NewBadRequest("TFRecord entry is not a valid tf.Example")
}

// validateRecord checks a decoded example against the definition's
// feature specs and label.
func validateRecord(features map[string]*tfFeature, def *Definition, index int) error {
	for name, spec := range def.Features {
		feature, ok := features[name]
		if !ok {
			return commonerrors.NewSchemaMismatch(
				fmt.Sprintf("feature %q missing in record %d", name, index))
		}
		switch spec.DType {
		case "float":
			if len(feature.floats) == 0 {
				return commonerrors.NewSchemaMismatch(
					fmt.Sprintf("feature %q in record %d is not a float list", name, index))
			}
		case "int":
			if len(feature.ints) == 0 {
				return commonerrors.NewSchemaMismatch(
					fmt.Sprintf("feature %q in record %d is not an int64 list", name, index))
			}
		}
		if expected := shapeSize(spec.Shape); expected > 0 && feature.length() != expected {
			return commonerrors.NewSchemaMismatch(
				fmt.Sprintf("feature %q in record %d has %d values, expected %d",
					name, index, feature.length(), expected))
		}
	}
	if _, ok := features[def.Label]; !ok {
		return commonerrors.NewSchemaMismatch(
			fmt.Sprintf("label %q missing in record %d", def.Label, index))
	}
	return nil
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range shape {
		if dim <= 0 {
			return 0
		}
		size *= dim
	}
	return size
}
