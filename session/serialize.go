package session

import "encoding/json"

// Recording, snapshot and script files are meant to be read and edited by
// hand, so all file-facing marshalling is indented.

// MarshalRecording serialises a Recording to indented JSON.
func MarshalRecording(r *Recording) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// UnmarshalRecording deserialises a Recording from JSON.
func UnmarshalRecording(data []byte) (*Recording, error) {
	var r Recording
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// MarshalSnapshot serialises a Snapshot to indented JSON.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// UnmarshalSnapshot deserialises a Snapshot from JSON.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarshalScript serialises a Script to indented JSON.
func MarshalScript(s *Script) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// UnmarshalScript deserialises a Script from JSON.
func UnmarshalScript(data []byte) (*Script, error) {
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarshalMetadata serialises snapshot Metadata to indented JSON.
func MarshalMetadata(m *Metadata) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalMetadata deserialises snapshot Metadata from JSON.
func UnmarshalMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
