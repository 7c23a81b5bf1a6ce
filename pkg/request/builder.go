package request

import (
	"fmt"
	"math"

	"github.com/spineio/spineweb.go/pkg/constants"
	"github.com/spineio/spineweb.go/pkg/filters"
	"github.com/spineio/spineweb.go/pkg/models"
)

// field holds a builder value that can be set once.
type field[T any] struct {
	value T
	set   bool
}

func (f *field[T]) assign(name string, v T) error {
	if f.set {
		return fmt.Errorf("%w: %s", constants.ErrDuplicateBuilderCall, name)
	}
	f.value, f.set = v, true
	return nil
}

// targetBuilder collects the target and field mask shared by query and topic
// builders. The first misuse is recorded and every later mutation is ignored.
type targetBuilder struct {
	typeURL models.TypeURL
	ids     field[[]models.TypedValue]
	filters field[[]*models.CompositeColumnFilter]
	mask    field[[]string]
	err     error
}

type idKind int

const (
	noKind idKind = iota
	stringKind
	numberKind
	typedKind
)

func (b *targetBuilder) byIDs(ids []any) {
	if b.err != nil {
		return
	}
	if b.ids.set {
		b.err = fmt.Errorf("%w: ByIDs", constants.ErrDuplicateBuilderCall)
		return
	}
	if len(ids) == 0 {
		b.err = b.ids.assign("ByIDs", nil)
		return
	}

	values := make([]models.TypedValue, 0, len(ids))
	kind := noKind
	for i, id := range ids {
		value, k, err := liftID(id)
		if err != nil {
			b.err = fmt.Errorf("id #%d: %w", i, err)
			return
		}
		if kind != noKind && k != kind {
			b.err = fmt.Errorf("%w: id #%d is %T", constants.ErrInconsistentIDType, i, id)
			return
		}
		kind = k
		values = append(values, value)
	}

	b.err = b.ids.assign("ByIDs", values)
}

// liftID wraps raw strings and numbers into canonical typed values. Numbers
// become Int64 ids; floats are floored first. Numbers outside the int64 range
// are rejected.
func liftID(id any) (models.TypedValue, idKind, error) {
	switch v := id.(type) {
	case string:
		return models.String(v), stringKind, nil
	case models.TypedValue:
		return v, typedKind, nil
	case int:
		return models.Int64(int64(v)), numberKind, nil
	case int8:
		return models.Int64(int64(v)), numberKind, nil
	case int16:
		return models.Int64(int64(v)), numberKind, nil
	case int32:
		return models.Int64(int64(v)), numberKind, nil
	case int64:
		return models.Int64(v), numberKind, nil
	case uint:
		return liftUint(uint64(v))
	case uint8:
		return models.Int64(int64(v)), numberKind, nil
	case uint16:
		return models.Int64(int64(v)), numberKind, nil
	case uint32:
		return models.Int64(int64(v)), numberKind, nil
	case uint64:
		return liftUint(v)
	case float32:
		return liftFloat(float64(v))
	case float64:
		return liftFloat(v)
	default:
		return models.TypedValue{}, noKind, fmt.Errorf("%w: %T", constants.ErrUnsupportedIDType, id)
	}
}

func liftUint(v uint64) (models.TypedValue, idKind, error) {
	if v > math.MaxInt64 {
		return models.TypedValue{}, noKind, fmt.Errorf("%w: %d overflows int64", constants.ErrUnsupportedIDType, v)
	}
	return models.Int64(int64(v)), numberKind, nil
}

func liftFloat(v float64) (models.TypedValue, idKind, error) {
	f := math.Floor(v)
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return models.TypedValue{}, noKind, fmt.Errorf("%w: %v is not an int64", constants.ErrUnsupportedIDType, v)
	}
	return models.Int64(int64(f)), numberKind, nil
}

func (b *targetBuilder) where(predicates []models.Predicate) {
	if b.err != nil {
		return
	}
	if b.filters.set {
		b.err = fmt.Errorf("%w: Where", constants.ErrDuplicateBuilderCall)
		return
	}
	if len(predicates) == 0 {
		b.err = b.filters.assign("Where", nil)
		return
	}

	var (
		leaves     []*models.ColumnFilter
		composites []*models.CompositeColumnFilter
	)
	for i, p := range predicates {
		switch v := p.(type) {
		case *models.ColumnFilter:
			leaves = append(leaves, v)
		case *models.CompositeColumnFilter:
			composites = append(composites, v)
		default:
			b.err = fmt.Errorf("%w: predicate #%d is %T", constants.ErrMixedFilterKind, i, p)
			return
		}
	}

	if len(leaves) > 0 && len(composites) > 0 {
		b.err = fmt.Errorf("%w: %d column filters and %d composite filters",
			constants.ErrMixedFilterKind, len(leaves), len(composites))
		return
	}
	if len(leaves) > 0 {
		composites = []*models.CompositeColumnFilter{filters.All(leaves...)}
	}

	b.err = b.filters.assign("Where", composites)
}

// withMask records the mask. An empty call leaves the resulting mask
// unrestricted.
func (b *targetBuilder) withMask(fields []string) {
	if b.err != nil {
		return
	}
	if fields == nil {
		fields = []string{}
	}
	b.err = b.mask.assign("WithMask", fields)
}

// Err returns the first misuse recorded by the builder.
func (b *targetBuilder) Err() error {
	return b.err
}

// Target derives the target from the current state. It fails with the first
// misuse recorded by the builder.
func (b *targetBuilder) Target() (*models.Target, error) {
	if b.err != nil {
		return nil, b.err
	}
	return filters.ComposeTarget(b.typeURL, b.ids.value, b.filters.value), nil
}

// Mask returns nil when no mask was set, and a mask with no paths when
// WithMask was called without fields. It fails like Target.
func (b *targetBuilder) Mask() (*models.FieldMask, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !b.mask.set {
		return nil, nil
	}
	return &models.FieldMask{Paths: append([]string{}, b.mask.value...)}, nil
}

// build validates the state and returns the target and mask to send. An
// empty mask is omitted.
func (b *targetBuilder) build() (*models.Target, *models.FieldMask, error) {
	if b.err != nil {
		return nil, nil, b.err
	}
	if err := b.typeURL.Validate(); err != nil {
		return nil, nil, err
	}
	target, err := b.Target()
	if err != nil {
		return nil, nil, err
	}
	mask, err := b.Mask()
	if err != nil {
		return nil, nil, err
	}
	if mask.Empty() {
		mask = nil
	}
	return target, mask, nil
}
