package dynamodb

import (
	"encoding/base64"
	"encoding/json"

	pkgerrors "locallens/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key attributes carried by a cursor for each access path.
var (
	activeKeyAttrs = []string{"PK", "SK", "GSI1PK", "GSI1SK"}
	gsi2KeyAttrs   = []string{"PK", "SK", "GSI2PK", "GSI2SK"}
)

// encodeCursor turns the key attributes of the last returned item into an
// opaque base64 JSON token usable as ExclusiveStartKey.
func encodeCursor(item map[string]types.AttributeValue, attrs []string) (string, error) {
	key := make(map[string]types.AttributeValue, len(attrs))
	for _, a := range attrs {
		if v, ok := item[a]; ok {
			key[a] = v
		}
	}
	var plain map[string]string
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", err
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// decodeCursor returns nil for an empty cursor.
func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, pkgerrors.InvalidCursor(err)
	}
	var plain map[string]string
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, pkgerrors.InvalidCursor(err)
	}
	key, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, pkgerrors.InvalidCursor(err)
	}
	return key, nil
}
