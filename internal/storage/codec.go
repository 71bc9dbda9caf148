package storage

import (
	"encoding/json"
	"errors"

	"agon/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeSessionRecord(r model.SessionRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeSessionRecord(data []byte) (model.SessionRecord, error) {
	var record model.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.SessionRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.SessionRecord{}, err
	}
	return record, nil
}

func EncodeGenerationHistory(history []model.GenerationRecord) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeGenerationHistory(data []byte) ([]model.GenerationRecord, error) {
	var history []model.GenerationRecord
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	for _, record := range history {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
