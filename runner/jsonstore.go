package runner

import "github.com/ethereum-optimism/infra/op-rerun/logging"

var _ JSONStore = (*jsonStore)(nil)

// jsonStore implements JSONStore on top of the FileLogger's RawJSONSink
type jsonStore struct {
	rawJSONSink *logging.RawJSONSink
}

// NewJSONStore creates a new JSON store. Without a file logger raw output is dropped.
func NewJSONStore(fileLogger *logging.FileLogger) JSONStore {
	store := &jsonStore{}
	if fileLogger != nil {
		store.rawJSONSink = fileLogger.RawJSON()
	}
	return store
}

// Store stores raw JSON output for a check
func (s *jsonStore) Store(checkID string, rawJSON []byte) error {
	if len(rawJSON) == 0 || s.rawJSONSink == nil {
		return nil
	}
	return s.rawJSONSink.StoreRawJSON(checkID, rawJSON)
}

// StoreFromFile copies raw JSON from an existing file path
func (s *jsonStore) StoreFromFile(checkID, path string) error {
	if s.rawJSONSink == nil {
		return nil
	}
	return s.rawJSONSink.StoreRawJSONFromFile(checkID, path)
}
