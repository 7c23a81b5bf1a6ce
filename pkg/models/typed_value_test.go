package models

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/spineio/spineweb.go/pkg/constants"
)

func TestTypeURL(t *testing.T) {
	u := TypeURL("type.spine.io/spine.web.test.Task")
	assert.Equal(t, "type.spine.io", u.Prefix())
	assert.Equal(t, "spine.web.test.Task", u.Name())
	require.NoError(t, u.Validate())

	for _, invalid := range []TypeURL{"", "no-slash", "/name", "prefix/", "a/b/c"} {
		assert.ErrorIs(t, invalid.Validate(), constants.ErrInvalidTypeURL, string(invalid))
	}
}

func TestTypedValuePack(t *testing.T) {
	packed, err := String("meeny").Pack()
	require.NoError(t, err)
	assert.Equal(t, string(StringType), packed.GetTypeUrl())

	var unpacked wrapperspb.StringValue
	require.NoError(t, Unpack(packed, &unpacked))
	assert.Equal(t, "meeny", unpacked.GetValue())
}

func TestTypedValuePackNilMessage(t *testing.T) {
	_, err := TypedValue{Type: StringType}.Pack()
	require.Error(t, err)
}

func TestNumericConstructorsFloor(t *testing.T) {
	assert.Equal(t, int32(2), Int32(2.9).Message.(*wrapperspb.Int32Value).GetValue())
	assert.Equal(t, int32(-3), Int32(-2.1).Message.(*wrapperspb.Int32Value).GetValue())
	assert.Equal(t, uint32(7), UInt32(7.5).Message.(*wrapperspb.UInt32Value).GetValue())
}

func TestNumericConstructorsSaturate(t *testing.T) {
	int32Of := func(v TypedValue) int32 { return v.Message.(*wrapperspb.Int32Value).GetValue() }
	uint32Of := func(v TypedValue) uint32 { return v.Message.(*wrapperspb.UInt32Value).GetValue() }

	assert.Equal(t, int32(math.MaxInt32), int32Of(Int32(1e30)))
	assert.Equal(t, int32(math.MinInt32), int32Of(Int32(-1e30)))
	assert.Equal(t, int32(math.MaxInt32), int32Of(Int32(math.Inf(1))))
	assert.Equal(t, int32(0), int32Of(Int32(math.NaN())))

	assert.Equal(t, uint32(math.MaxUint32), uint32Of(UInt32(float64(math.MaxUint32)+1)))
	assert.Equal(t, uint32(0), uint32Of(UInt32(-1)))
	assert.Equal(t, uint32(0), uint32Of(UInt32(math.NaN())))
}

func TestTypedValueJSON(t *testing.T) {
	data, err := json.Marshal(EntityID{ID: Int64(42)})
	require.NoError(t, err)

	var decoded struct {
		ID struct {
			TypeURL string `json:"typeUrl"`
			Value   []byte `json:"value"`
		} `json:"id"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, string(Int64Type), decoded.ID.TypeURL)
	assert.NotEmpty(t, decoded.ID.Value)
}

func TestTypedValueEqual(t *testing.T) {
	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, String("a").Equal(String("b")))
	assert.False(t, Int64(1).Equal(UInt64(1)))
}

func TestFieldMaskEmpty(t *testing.T) {
	var m *FieldMask
	assert.True(t, m.Empty())
	assert.True(t, (&FieldMask{}).Empty())
	assert.False(t, (&FieldMask{Paths: []string{"name"}}).Empty())
}
