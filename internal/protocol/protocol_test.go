package protocol

import (
	"encoding/json"
	"testing"

	"github.com/existflow/collabtask/internal/model"
	"github.com/go-playground/assert/v2"
)

func TestEnvelopeShape(t *testing.T) {
	raw, err := json.Marshal(ItemDeleted(7))
	assert.Equal(t, err, nil)
	assert.Equal(t, string(raw), `{"type":"item-deleted","data":{"id":7}}`)

	raw, _ = json.Marshal(PresenceSnapshot(nil))
	assert.Equal(t, string(raw), `{"type":"presence-snapshot","data":[]}`)
}

func TestDecodeItemUpdate(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"type":"item-update","data":{"id":3,"title":"t","status":"done"}}`), &msg)
	assert.Equal(t, err, nil)
	assert.Equal(t, msg.Type, TypeItemUpdate)

	var item model.Item
	assert.Equal(t, msg.Decode(&item), nil)
	assert.Equal(t, item.ID, int64(3))
	assert.Equal(t, item.Status, model.StatusDone)
}

func TestDecodeMissingData(t *testing.T) {
	var req JoinRequest
	assert.NotEqual(t, Message{Type: TypeJoin}.Decode(&req), nil)
	assert.NotEqual(t, Message{Type: TypeJoin, Data: json.RawMessage(`"x"`)}.Decode(&req), nil)
}
