package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// ErrInvalidSeed is returned when a seed document cannot be imported.
var ErrInvalidSeed = errors.New("invalid inventory seed")

// seedDocument is the inventory export format: a list of shelfmarks, where
// film items carry a "film" key (any value) or an explicit type.
type seedDocument struct {
	Inventory []map[string]json.RawMessage `json:"inventory"`
}

// ImportSeed reads a seed document and returns fresh records in seed order.
func ImportSeed(r io.Reader) ([]Record, error) {
	var doc seedDocument
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if doc.Inventory == nil {
		return nil, fmt.Errorf("%w: missing inventory list", ErrInvalidSeed)
	}

	records := make([]Record, 0, len(doc.Inventory))
	seen := make(map[string]struct{}, len(doc.Inventory))
	for i, item := range doc.Inventory {
		identity, err := seedString(item, "shelfmark")
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidSeed, i, err)
		}
		identity = strings.TrimSpace(identity)
		if identity == "" {
			return nil, fmt.Errorf("%w: item %d has no shelfmark", ErrInvalidSeed, i)
		}
		if _, dup := seen[identity]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, identity)
		}
		seen[identity] = struct{}{}

		kind, err := seedKind(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSeed, identity, err)
		}
		records = append(records, Record{Identity: identity, ExpectedKind: kind})
	}
	return records, nil
}

func seedKind(item map[string]json.RawMessage) (types.AssetKind, error) {
	if _, ok := item["film"]; ok {
		return types.KindFilm, nil
	}
	if _, ok := item["type"]; ok {
		s, err := seedString(item, "type")
		if err != nil {
			return types.KindUnknown, err
		}
		return types.ParseKind(s)
	}
	return types.KindMag, nil
}

func seedString(item map[string]json.RawMessage, key string) (string, error) {
	raw, ok := item[key]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s is not a string", key)
	}
	return s, nil
}
