package protov1

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	protoPackage = "fxgb.v1"
	protoFile    = "api/proto/v1/fxgb.proto"
)

// File is the resolved descriptor of fxgb.proto.
var File protoreflect.FileDescriptor

var (
	jobRequestDesc     protoreflect.MessageDescriptor
	envDesc            protoreflect.MessageDescriptor
	initRequestDesc    protoreflect.MessageDescriptor
	emptyDesc          protoreflect.MessageDescriptor
	workerResponseDesc protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(fileDescriptorProto(), new(protoregistry.Files))
	if err != nil {
		panic(fmt.Sprintf("protov1: invalid descriptor for %s: %v", protoFile, err))
	}
	File = fd

	msgs := fd.Messages()
	jobRequestDesc = msgs.ByName("JobRequest")
	envDesc = msgs.ByName("Env")
	initRequestDesc = msgs.ByName("InitRequest")
	emptyDesc = msgs.ByName("Empty")
	workerResponseDesc = msgs.ByName("WorkerResponse")
}

// fileDescriptorProto mirrors fxgb.proto. Keep both in sync.
func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	i32 := descriptorpb.FieldDescriptorProto_TYPE_INT32

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(protoFile),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/AltairaLabs/fxgb-worker/api/proto/v1;protov1"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("JobRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("cmd", 1, str),
					{
						Name:     proto.String("env"),
						Number:   proto.Int32(2),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
						Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
						TypeName: proto.String("." + protoPackage + ".JobRequest.EnvEntry"),
					},
					scalarField("password", 3, str),
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name: proto.String("EnvEntry"),
						Field: []*descriptorpb.FieldDescriptorProto{
							scalarField("key", 1, str),
							scalarField("value", 2, str),
						},
						Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
					},
				},
			},
			{
				Name: proto.String("Env"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("DMLC_TRACKER_URI", 1, str),
					scalarField("DMLC_TRACKER_PORT", 2, i32),
					scalarField("DMLC_ROLE", 3, str),
					scalarField("DMLC_NODE_HOST", 4, str),
					scalarField("DMLC_NUM_WORKER", 5, i32),
					scalarField("DMLC_NUM_SERVER", 6, i32),
				},
			},
			{
				Name: proto.String("InitRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     proto.String("env"),
						Number:   proto.Int32(1),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
						Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
						TypeName: proto.String("." + protoPackage + ".Env"),
					},
				},
			},
			{
				Name: proto.String("Empty"),
			},
			{
				Name: proto.String("WorkerResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("success", 1, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("FXGBWorker"),
				Method: []*descriptorpb.MethodDescriptorProto{
					rpcMethod("StartJob", "JobRequest"),
					rpcMethod("Init", "InitRequest"),
					rpcMethod("Train", "Empty"),
				},
			},
		},
	}
}

func scalarField(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func rpcMethod(name, input string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + protoPackage + "." + input),
		OutputType: proto.String("." + protoPackage + ".WorkerResponse"),
	}
}
