package storage

import (
	"encoding/json"
	"errors"

	"situsim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is the stamp new records are written with.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeSnapshot(s model.WorldSnapshot) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSnapshot(data []byte) (model.WorldSnapshot, error) {
	var snapshot model.WorldSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.WorldSnapshot{}, err
	}
	if err := checkVersion(snapshot.VersionedRecord); err != nil {
		return model.WorldSnapshot{}, err
	}
	return snapshot, nil
}

func EncodeRunSummary(s model.RunSummary) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeRunSummary(data []byte) (model.RunSummary, error) {
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return summary, nil
}

func EncodeAgentFailure(f model.AgentFailure) ([]byte, error) {
	return json.Marshal(f)
}

func DecodeAgentFailure(data []byte) (model.AgentFailure, error) {
	var failure model.AgentFailure
	if err := json.Unmarshal(data, &failure); err != nil {
		return model.AgentFailure{}, err
	}
	if err := checkVersion(failure.VersionedRecord); err != nil {
		return model.AgentFailure{}, err
	}
	return failure, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
