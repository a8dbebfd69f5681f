// Package facts loads the static environment description a session is
// primed with: where each device is and how the rooms are laid out.
package facts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sitaware/internal/model"
)

// Field names used in configuration errors.
const (
	FieldDeviceLocations = "device_locations"
	FieldRoomSetup       = "room_setup"
)

// Facts is the read-only environment description. Values loaded from disk
// are kept as the raw document text so they reach the oracle verbatim.
type Facts struct {
	DeviceLocations any    `json:"device_locations" yaml:"device_locations"`
	RoomSetup       any    `json:"room_setup" yaml:"room_setup"`
	Hash            string `json:"hash" yaml:"-"`
}

// Load reads the device-location map and the room layout from JSON or YAML
// files. Each document must parse as structured data. The hash covers the
// raw bytes of both files.
func Load(devicesPath, roomsPath string) (*Facts, error) {
	devices, err := readDocument(devicesPath, FieldDeviceLocations)
	if err != nil {
		return nil, err
	}
	rooms, err := readDocument(roomsPath, FieldRoomSetup)
	if err != nil {
		return nil, err
	}
	return &Facts{
		DeviceLocations: devices,
		RoomSetup:       rooms,
		Hash:            hashOf(devices, rooms),
	}, nil
}

// FromValues builds facts from in-memory values (maps, lists or text).
func FromValues(devices, rooms any) (*Facts, error) {
	f := &Facts{DeviceLocations: devices, RoomSetup: rooms}
	d, r, err := f.Render()
	if err != nil {
		return nil, err
	}
	f.Hash = hashOf(d, r)
	return f, nil
}

// Render returns the query text of both documents.
func (f *Facts) Render() (devices, rooms string, err error) {
	if f == nil {
		return "", "", &model.ConfigError{Field: FieldDeviceLocations, Err: fmt.Errorf("no facts loaded")}
	}
	if devices, err = model.RenderValue(FieldDeviceLocations, f.DeviceLocations); err != nil {
		return "", "", err
	}
	if rooms, err = model.RenderValue(FieldRoomSetup, f.RoomSetup); err != nil {
		return "", "", err
	}
	return devices, rooms, nil
}

func readDocument(path, field string) (string, error) {
	if path == "" {
		return "", &model.ConfigError{Field: field, Err: fmt.Errorf("path is required")}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &model.ConfigError{Field: field, Err: fmt.Errorf("read %s: %w", path, err)}
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", &model.ConfigError{Field: field, Err: fmt.Errorf("parse %s: %w", path, err)}
	}
	switch doc.(type) {
	case map[string]any, []any:
	default:
		return "", &model.ConfigError{Field: field, Err: fmt.Errorf("%s: expected a mapping or list", path)}
	}
	return strings.TrimSpace(string(data)), nil
}

func hashOf(devices, rooms string) string {
	h := sha256.New()
	h.Write([]byte(devices))
	h.Write([]byte{0})
	h.Write([]byte(rooms))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
