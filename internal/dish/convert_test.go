package dish

import (
	"testing"

	"google.golang.org/protobuf/reflect/protoreflect"
)

func enumDescriptor(t *testing.T, name string) protoreflect.EnumDescriptor {
	t.Helper()
	fd := testDescriptors(t).DishConfig.Fields().ByName(protoreflect.Name(name))
	if fd == nil || fd.Enum() == nil {
		t.Fatalf("no enum field %s", name)
	}
	return fd.Enum()
}

func TestParseEnum(t *testing.T) {
	snow := enumDescriptor(t, "snow_melt_mode")
	level := enumDescriptor(t, "level_mode")

	tests := []struct {
		name    string
		ed      protoreflect.EnumDescriptor
		value   any
		want    string
		wantErr bool
	}{
		{"exact", snow, "ALWAYS_ON", "ALWAYS_ON", false},
		{"lower case", snow, "auto", "AUTO", false},
		{"dash", snow, "always-off", "ALWAYS_OFF", false},
		{"space", snow, " always on ", "ALWAYS_ON", false},
		{"unique suffix", snow, "on", "ALWAYS_ON", false},
		{"number text", snow, "1", "ALWAYS_ON", false},
		{"number", snow, int64(2), "ALWAYS_OFF", false},
		{"unknown number", snow, "9", "", true},
		{"unknown int", snow, int64(9), "", true},
		{"unknown name", snow, "bogus", "", true},
		{"suffix", level, "low", "", true},
		{"suffix power ambiguous", level, "power", "", true},
		{"suffix auto", level, "auto", "LEVEL_AUTO", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := parseEnum(tt.ed, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseEnum(%v) = %s, want error", tt.value, ev.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEnum(%v) error = %v", tt.value, err)
			}
			if string(ev.Name()) != tt.want {
				t.Errorf("parseEnum(%v) = %s, want %s", tt.value, ev.Name(), tt.want)
			}
		})
	}
}

func TestConversionHelpers(t *testing.T) {
	if b, ok := toBool("ON"); !ok || !b {
		t.Error(`toBool("ON") failed`)
	}
	if b, ok := toBool(int64(0)); !ok || b {
		t.Error("toBool(0) failed")
	}
	if _, ok := toBool(int64(2)); ok {
		t.Error("toBool(2) accepted")
	}
	if n, ok := toInt64(" 42 "); !ok || n != 42 {
		t.Errorf("toInt64 = %d, %v", n, ok)
	}
	if _, ok := toInt64(4.5); ok {
		t.Error("toInt64(4.5) accepted")
	}
	if n, ok := toInt64(4.0); !ok || n != 4 {
		t.Errorf("toInt64(4.0) = %d, %v", n, ok)
	}
	if f, ok := toFloat64(int64(3)); !ok || f != 3 {
		t.Errorf("toFloat64 = %v, %v", f, ok)
	}
	if _, ok := toFloat64(true); ok {
		t.Error("toFloat64(true) accepted")
	}
}
