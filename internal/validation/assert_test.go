package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type service interface{ Do() }

type impl struct{}

func (*impl) Do() {}

func TestAssertNotNil(t *testing.T) {
	t.Parallel()

	var typedNil *impl
	var nilIface service
	var typedNilIface service = typedNil

	tests := []struct {
		name      string
		value     any
		wantPanic bool
	}{
		{name: "Should panic on untyped nil", value: nil, wantPanic: true},
		{name: "Should panic on nil pointer", value: typedNil, wantPanic: true},
		{name: "Should panic on nil interface", value: nilIface, wantPanic: true},
		{name: "Should panic on typed nil inside interface", value: typedNilIface, wantPanic: true},
		{name: "Should panic on nil map", value: map[string]int(nil), wantPanic: true},
		{name: "Should accept pointer", value: &impl{}},
		{name: "Should accept value", value: 42},
		{name: "Should accept empty string", value: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.wantPanic {
				assert.PanicsWithValue(t, "critical error: dep cannot be nil", func() {
					AssertNotNil(tt.value, "dep")
				})
				return
			}
			assert.NotPanics(t, func() { AssertNotNil(tt.value, "dep") })
		})
	}
}
