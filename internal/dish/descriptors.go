package dish

import (
	"fmt"
	"os"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Fully-qualified names of the dish API.
const (
	RequestMessage  protoreflect.FullName = "SpaceX.API.Device.Request"
	ResponseMessage protoreflect.FullName = "SpaceX.API.Device.Response"
	HandleMethod                          = "/SpaceX.API.Device.Device/Handle"
)

// Descriptors holds the message descriptors the client needs.
type Descriptors struct {
	Request    protoreflect.MessageDescriptor
	Response   protoreflect.MessageDescriptor
	DishConfig protoreflect.MessageDescriptor
}

// LoadDescriptors reads a protoset file.
func LoadDescriptors(path string) (*Descriptors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading protoset: %w", err)
	}

	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: decoding protoset %s: %w", ErrDescriptors, path, err)
	}

	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("%w: building registry from %s: %w", ErrDescriptors, path, err)
	}
	return NewDescriptors(files)
}

// NewDescriptors looks up the dish API messages in files.
func NewDescriptors(files *protoregistry.Files) (*Descriptors, error) {
	request, err := findMessage(files, RequestMessage)
	if err != nil {
		return nil, err
	}
	response, err := findMessage(files, ResponseMessage)
	if err != nil {
		return nil, err
	}

	// DishConfig is reached through the set request so its package does not
	// matter.
	setReq, err := messageField(request, "dish_set_config")
	if err != nil {
		return nil, err
	}
	dishConfig, err := messageField(setReq, "dish_config")
	if err != nil {
		return nil, err
	}

	for _, name := range []protoreflect.Name{"get_status", "dish_get_config"} {
		if _, err := messageField(request, name); err != nil {
			return nil, err
		}
	}
	for _, name := range []protoreflect.Name{"dish_get_status", "dish_get_config"} {
		if _, err := messageField(response, name); err != nil {
			return nil, err
		}
	}

	return &Descriptors{Request: request, Response: response, DishConfig: dishConfig}, nil
}

func findMessage(files *protoregistry.Files, name protoreflect.FullName) (protoreflect.MessageDescriptor, error) {
	d, err := files.FindDescriptorByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDescriptors, name, err)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a message", ErrDescriptors, name)
	}
	return md, nil
}

// messageField returns the message type of a singular message field.
func messageField(md protoreflect.MessageDescriptor, name protoreflect.Name) (protoreflect.MessageDescriptor, error) {
	fd := md.Fields().ByName(name)
	if fd == nil || fd.Message() == nil || fd.IsList() || fd.IsMap() {
		return nil, fmt.Errorf("%w: %s has no message field %s", ErrDescriptors, md.FullName(), name)
	}
	return fd.Message(), nil
}
