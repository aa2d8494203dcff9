package dish

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_FetchMergesStatusAndConfig(t *testing.T) {
	_, client, _ := startFakeDish(t)

	snap, err := client.Fetch(testContext(t))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	tests := []struct {
		path string
		want any
	}{
		{"device_state.uptime_s", uint64(86400)},
		{"pop_ping_latency_ms", float32(31.5)},
		{"is_snr_above_noise_floor", true},
		{"mobility_class", "NOMADIC"},
		{"eth_speed_mbps", int32(1000)},
		{"dish_config.snow_melt_mode", "AUTO"},
		{"dish_config.level_mode", "LEVEL_AUTO"},
		{"dish_config.power_save_duration_minutes", uint32(0)},
		{"dish_config.apply_snow_melt_mode", false},
	}
	for _, tt := range tests {
		got, ok := snap.Lookup(tt.path)
		if !ok || got != tt.want {
			t.Errorf("Lookup(%q) = %#v, %v; want %#v", tt.path, got, ok, tt.want)
		}
	}

	alerts, ok := snap.Lookup("alerts")
	if nested, isSnap := alerts.(telemetry.Snapshot); !ok || !isSnap || len(nested) != 0 {
		t.Errorf("unset message field = %#v, want empty snapshot", alerts)
	}

	paths := telemetry.Paths(telemetry.Flatten(snap, telemetry.NewFilter()))
	if len(paths) < 2 || paths[0] != "device_state.uptime_s" || paths[1] != "pop_ping_latency_ms" {
		t.Errorf("flattened order starts %v", paths)
	}
	for _, p := range paths {
		if p == "wedge_fraction_obstructed" || p == "dish_config.tags" {
			t.Errorf("repeated field %s was flattened", p)
		}
	}
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name      string
		statusErr error
		configErr error
		want      error
	}{
		{"status unavailable", status.Error(codes.Unavailable, "down"), nil, telemetry.ErrSourceUnavailable},
		{"status internal", status.Error(codes.Internal, "oops"), nil, telemetry.ErrSourceProtocol},
		{"config data loss", nil, status.Error(codes.DataLoss, "corrupt"), telemetry.ErrSourceProtocol},
		{"config timeout", nil, status.Error(codes.DeadlineExceeded, "slow"), telemetry.ErrSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, client, _ := startFakeDish(t)
			fake.statusErr = tt.statusErr
			fake.configErr = tt.configErr

			_, err := client.Fetch(testContext(t))
			if !errors.Is(err, tt.want) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_FetchWithoutConfigAccess(t *testing.T) {
	for _, code := range []codes.Code{codes.Unimplemented, codes.PermissionDenied} {
		fake, client, _ := startFakeDish(t)
		fake.configErr = status.Error(code, "nope")

		snap, err := client.Fetch(testContext(t))
		if err != nil {
			t.Fatalf("Fetch() with config %s error = %v", code, err)
		}
		if _, ok := snap.Lookup("dish_config.snow_melt_mode"); ok {
			t.Errorf("config present despite %s", code)
		}
		if _, ok := snap.Lookup("device_state.uptime_s"); !ok {
			t.Errorf("status missing with config %s", code)
		}
	}
}

func TestClient_FetchServerDown(t *testing.T) {
	_, client, srv := startFakeDish(t)
	srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := client.Fetch(ctx); !errors.Is(err, telemetry.ErrSourceUnavailable) {
		t.Errorf("Fetch() error = %v, want ErrSourceUnavailable", err)
	}
}

func configField(t *testing.T, m protoreflect.Message, name string) protoreflect.Value {
	t.Helper()
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		t.Fatalf("no field %s", name)
	}
	return m.Get(fd)
}

func TestClient_WriteEnum(t *testing.T) {
	tests := []struct {
		path    string
		value   any
		applied string
		number  protoreflect.EnumNumber
	}{
		{"dish_config.snow_melt_mode", "on", "ALWAYS_ON", 1},
		{"dish_config/snow_melt_mode", "off", "ALWAYS_OFF", 2},
		{"snow_melt_mode", "auto", "AUTO", 0},
		{"dish_config.snow_melt_mode", "always-on", "ALWAYS_ON", 1},
		{"dish_config.snow_melt_mode", "2", "ALWAYS_OFF", 2},
	}

	for _, tt := range tests {
		t.Run(tt.path+"="+tt.applied, func(t *testing.T) {
			fake, client, _ := startFakeDish(t)

			out, err := client.Write(testContext(t), tt.path, tt.value)
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if out.Path != "dish_config.snow_melt_mode" || out.Applied != tt.applied {
				t.Errorf("Write() = %+v", out)
			}

			sets := fake.Sets()
			if len(sets) != 1 {
				t.Fatalf("dish received %d set requests", len(sets))
			}
			if got := configField(t, sets[0], "snow_melt_mode").Enum(); got != tt.number {
				t.Errorf("snow_melt_mode = %d, want %d", got, tt.number)
			}
			if !configField(t, sets[0], "apply_snow_melt_mode").Bool() {
				t.Error("apply_snow_melt_mode not set")
			}
			if configField(t, sets[0], "apply_level_mode").Bool() {
				t.Error("unrelated apply flag set")
			}
		})
	}
}

func TestClient_WriteScalars(t *testing.T) {
	fake, client, _ := startFakeDish(t)
	ctx := testContext(t)

	out, err := client.Write(ctx, "dish_config.power_save_duration_minutes", int64(30))
	if err != nil || out.Applied != "30" {
		t.Fatalf("Write(uint32) = %+v, %v", out, err)
	}
	out, err = client.Write(ctx, "dish_config.reboot_enabled", "yes")
	if err != nil || out.Applied != "true" {
		t.Fatalf("Write(bool) = %+v, %v", out, err)
	}
	out, err = client.Write(ctx, "dish_config.location.lat", 51.5)
	if err != nil || out.Applied != "51.5" || out.Path != "dish_config.location.lat" {
		t.Fatalf("Write(nested) = %+v, %v", out, err)
	}

	sets := fake.Sets()
	if len(sets) != 3 {
		t.Fatalf("dish received %d set requests", len(sets))
	}
	if got := configField(t, sets[0], "power_save_duration_minutes").Uint(); got != 30 {
		t.Errorf("power_save_duration_minutes = %d", got)
	}
	if !configField(t, sets[0], "apply_power_save_duration_minutes").Bool() {
		t.Error("apply flag for power save not set")
	}
	if !configField(t, sets[1], "reboot_enabled").Bool() {
		t.Error("reboot_enabled not set")
	}
	loc := configField(t, sets[2], "location").Message()
	if got := configField(t, loc, "lat").Float(); got != 51.5 {
		t.Errorf("location.lat = %v", got)
	}
	if !configField(t, sets[2], "apply_location").Bool() {
		t.Error("apply_location not set")
	}
}

func TestClient_WriteRejectedLocally(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		value any
		want  error
	}{
		{"unknown field", "dish_config.nope", "1", telemetry.ErrFieldNotWritable},
		{"config root", "dish_config", "1", telemetry.ErrFieldNotWritable},
		{"empty", " / ", "1", telemetry.ErrFieldNotWritable},
		{"repeated leaf", "dish_config.tags", "a", telemetry.ErrFieldNotWritable},
		{"message leaf", "dish_config.location", "a", telemetry.ErrFieldNotWritable},
		{"through scalar", "dish_config.label.x", "a", telemetry.ErrFieldNotWritable},
		{"bad enum", "dish_config.snow_melt_mode", "bogus", telemetry.ErrInvalidValue},
		{"ambiguous enum", "dish_config.level_mode", "power", telemetry.ErrInvalidValue},
		{"negative unsigned", "dish_config.power_save_duration_minutes", int64(-1), telemetry.ErrInvalidValue},
		{"bad bool", "dish_config.reboot_enabled", "maybe", telemetry.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, client, _ := startFakeDish(t)

			_, err := client.Write(testContext(t), tt.path, tt.value)
			if !errors.Is(err, tt.want) {
				t.Errorf("Write() error = %v, want %v", err, tt.want)
			}
			if n := len(fake.Sets()); n != 0 {
				t.Errorf("dish received %d set requests, want 0", n)
			}
		})
	}
}

func TestClient_WriteDishRefuses(t *testing.T) {
	tests := []struct {
		code codes.Code
		want error
	}{
		{codes.PermissionDenied, telemetry.ErrPermissionDenied},
		{codes.Unauthenticated, telemetry.ErrPermissionDenied},
		{codes.InvalidArgument, telemetry.ErrInvalidValue},
		{codes.Unavailable, telemetry.ErrSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			fake, client, _ := startFakeDish(t)
			fake.setErr = status.Error(tt.code, "refused")

			_, err := client.Write(testContext(t), "dish_config.snow_melt_mode", "on")
			if !errors.Is(err, tt.want) {
				t.Errorf("Write() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConfig_Address(t *testing.T) {
	if got := (Config{Host: "192.168.100.1", Port: 9200}).Address(); got != "192.168.100.1:9200" {
		t.Errorf("Address() = %q", got)
	}
	if got := (Config{Host: "::1", Port: 9200}).Address(); got != "[::1]:9200" {
		t.Errorf("Address() = %q", got)
	}
}
