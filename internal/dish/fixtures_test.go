package dish

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const testPackage = ".SpaceX.API.Device."

func field(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String(testPackage + typeName)
	}
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func enum(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return e
}

// testFileSet returns a cut-down dish API good enough to exercise the client.
func testFileSet() *descriptorpb.FileDescriptorSet {
	const (
		tMsg    = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
		tEnum   = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		tBool   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
		tUint32 = descriptorpb.FieldDescriptorProto_TYPE_UINT32
		tUint64 = descriptorpb.FieldDescriptorProto_TYPE_UINT64
		tInt32  = descriptorpb.FieldDescriptorProto_TYPE_INT32
		tFloat  = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
		tDouble = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		tString = descriptorpb.FieldDescriptorProto_TYPE_STRING
	)

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("spacex/api/device/device.proto"),
		Package: proto.String("SpaceX.API.Device"),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			enum("SnowMeltMode", "AUTO", "ALWAYS_ON", "ALWAYS_OFF"),
			enum("LevelMode", "LEVEL_AUTO", "LOW_POWER", "HIGH_POWER"),
			enum("MobilityClass", "STATIONARY", "NOMADIC", "MOBILE"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("GetStatusRequest"),
			message("DishGetConfigRequest"),
			message("Location", field("lat", 1, tDouble, "")),
			message("DishConfig",
				field("snow_melt_mode", 1, tEnum, "SnowMeltMode"),
				field("power_save_duration_minutes", 2, tUint32, ""),
				field("level_mode", 3, tEnum, "LevelMode"),
				field("label", 4, tString, ""),
				field("location", 5, tMsg, "Location"),
				field("reboot_enabled", 6, tBool, ""),
				repeated(field("tags", 7, tString, "")),
				field("apply_snow_melt_mode", 1001, tBool, ""),
				field("apply_power_save_duration_minutes", 1002, tBool, ""),
				field("apply_level_mode", 1003, tBool, ""),
				field("apply_location", 1005, tBool, ""),
				field("apply_reboot_enabled", 1006, tBool, ""),
			),
			message("DishSetConfigRequest", field("dish_config", 1, tMsg, "DishConfig")),
			message("DeviceState", field("uptime_s", 1, tUint64, "")),
			message("DishAlerts", field("motors_stuck", 1, tBool, "")),
			message("DishGetStatusResponse",
				field("device_state", 1, tMsg, "DeviceState"),
				field("pop_ping_latency_ms", 2, tFloat, ""),
				field("is_snr_above_noise_floor", 3, tBool, ""),
				field("alerts", 4, tMsg, "DishAlerts"),
				repeated(field("wedge_fraction_obstructed", 5, tFloat, "")),
				field("mobility_class", 6, tEnum, "MobilityClass"),
				field("eth_speed_mbps", 7, tInt32, ""),
			),
			message("DishGetConfigResponse", field("dish_config", 1, tMsg, "DishConfig")),
			message("DishSetConfigResponse", field("dish_config", 1, tMsg, "DishConfig")),
			message("Request",
				field("id", 1, tUint64, ""),
				field("get_status", 1004, tMsg, "GetStatusRequest"),
				field("dish_get_config", 2011, tMsg, "DishGetConfigRequest"),
				field("dish_set_config", 2012, tMsg, "DishSetConfigRequest"),
			),
			message("Response",
				field("id", 1, tUint64, ""),
				field("dish_get_status", 2004, tMsg, "DishGetStatusResponse"),
				field("dish_get_config", 2011, tMsg, "DishGetConfigResponse"),
				field("dish_set_config", 2012, tMsg, "DishSetConfigResponse"),
			),
		},
	}
	return &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{file}}
}

func testDescriptors(t *testing.T) *Descriptors {
	t.Helper()
	files, err := protodesc.NewFiles(testFileSet())
	if err != nil {
		t.Fatalf("NewFiles() error = %v", err)
	}
	desc, err := NewDescriptors(files)
	if err != nil {
		t.Fatalf("NewDescriptors() error = %v", err)
	}
	return desc
}

// fakeDish serves the Handle method from dynamic messages.
type fakeDish struct {
	desc *Descriptors

	mu        sync.Mutex
	config    *dynamicpb.Message
	sets      []protoreflect.Message
	statusErr error
	configErr error
	setErr    error
}

func (f *fakeDish) handler(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	if method != HandleMethod {
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}

	req := dynamicpb.NewMessage(f.desc.Request)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	resp := dynamicpb.NewMessage(f.desc.Response)
	reqFields := f.desc.Request.Fields()
	respFields := f.desc.Response.Fields()

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case req.Has(reqFields.ByName("get_status")):
		if f.statusErr != nil {
			return f.statusErr
		}
		fillStatus(resp.Mutable(respFields.ByName("dish_get_status")).Message())

	case req.Has(reqFields.ByName("dish_get_config")):
		if f.configErr != nil {
			return f.configErr
		}
		sub := resp.Mutable(respFields.ByName("dish_get_config")).Message()
		sub.Set(sub.Descriptor().Fields().ByName("dish_config"), protoreflect.ValueOfMessage(f.config))

	case req.Has(reqFields.ByName("dish_set_config")):
		if f.setErr != nil {
			return f.setErr
		}
		setReq := req.Get(reqFields.ByName("dish_set_config")).Message()
		cfg := setReq.Get(setReq.Descriptor().Fields().ByName("dish_config")).Message()
		f.sets = append(f.sets, cfg)
		resp.Mutable(respFields.ByName("dish_set_config"))

	default:
		return status.Error(codes.InvalidArgument, "no request set")
	}
	return stream.SendMsg(resp)
}

func (f *fakeDish) Sets() []protoreflect.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protoreflect.Message, len(f.sets))
	copy(out, f.sets)
	return out
}

func fillStatus(m protoreflect.Message) {
	fields := m.Descriptor().Fields()

	ds := m.Mutable(fields.ByName("device_state")).Message()
	ds.Set(ds.Descriptor().Fields().ByName("uptime_s"), protoreflect.ValueOfUint64(86400))

	m.Set(fields.ByName("pop_ping_latency_ms"), protoreflect.ValueOfFloat32(31.5))
	m.Set(fields.ByName("is_snr_above_noise_floor"), protoreflect.ValueOfBool(true))

	wedges := m.Mutable(fields.ByName("wedge_fraction_obstructed")).List()
	wedges.Append(protoreflect.ValueOfFloat32(0.25))

	m.Set(fields.ByName("mobility_class"), protoreflect.ValueOfEnum(1))
	m.Set(fields.ByName("eth_speed_mbps"), protoreflect.ValueOfInt32(1000))
}

// startFakeDish serves a fakeDish over an in-memory listener and returns a
// client connected to it.
func startFakeDish(t *testing.T) (*fakeDish, *Client, *grpc.Server) {
	t.Helper()
	desc := testDescriptors(t)
	fake := &fakeDish{desc: desc, config: dynamicpb.NewMessage(desc.DishConfig)}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(fake.handler))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := New(Config{Host: "192.168.100.1", Port: 9200}, desc, nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return fake, client, srv
}
