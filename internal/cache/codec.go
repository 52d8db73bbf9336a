package cache

import (
	"encoding/json"
	"errors"
	"fmt"
)

func encodeDocument(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("document required")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

func decodeDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}
