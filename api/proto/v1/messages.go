package protov1

import (
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// JobRequest asks the worker to run a command line against its local data.
type JobRequest struct {
	Cmd      string
	Env      map[string]string
	Password string
}

// Env carries the rabit tracker coordinates for a session.
type Env struct {
	TrackerURI  string
	TrackerPort int32
	Role        string
	NodeHost    string
	NumWorker   int32
	NumServer   int32
}

// InitRequest asks the worker to join a training session.
type InitRequest struct {
	Env *Env
}

// Empty is the request of Train.
type Empty struct{}

// WorkerResponse is the only response shape of the service.
type WorkerResponse struct {
	Success bool
}

// MarshalBinary encodes the request in protobuf wire format.
func (r *JobRequest) MarshalBinary() ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(r.toDynamic())
}

// UnmarshalBinary decodes a protobuf encoded JobRequest.
func (r *JobRequest) UnmarshalBinary(b []byte) error {
	m := dynamicpb.NewMessage(jobRequestDesc)
	if err := proto.Unmarshal(b, m); err != nil {
		return err
	}
	*r = *jobRequestFromDynamic(m)
	return nil
}

// MarshalBinary encodes the request in protobuf wire format.
func (r *InitRequest) MarshalBinary() ([]byte, error) {
	return proto.Marshal(r.toDynamic())
}

// UnmarshalBinary decodes a protobuf encoded InitRequest.
func (r *InitRequest) UnmarshalBinary(b []byte) error {
	m := dynamicpb.NewMessage(initRequestDesc)
	if err := proto.Unmarshal(b, m); err != nil {
		return err
	}
	*r = *initRequestFromDynamic(m)
	return nil
}

// MarshalBinary encodes the response in protobuf wire format.
func (r *WorkerResponse) MarshalBinary() ([]byte, error) {
	return proto.Marshal(r.toDynamic())
}

// UnmarshalBinary decodes a protobuf encoded WorkerResponse.
func (r *WorkerResponse) UnmarshalBinary(b []byte) error {
	m := dynamicpb.NewMessage(workerResponseDesc)
	if err := proto.Unmarshal(b, m); err != nil {
		return err
	}
	*r = *workerResponseFromDynamic(m)
	return nil
}

func field(md protoreflect.MessageDescriptor, name protoreflect.Name) protoreflect.FieldDescriptor {
	return md.Fields().ByName(name)
}

func setString(m protoreflect.Message, name protoreflect.Name, v string) {
	if v != "" {
		m.Set(field(m.Descriptor(), name), protoreflect.ValueOfString(v))
	}
}

func setInt32(m protoreflect.Message, name protoreflect.Name, v int32) {
	if v != 0 {
		m.Set(field(m.Descriptor(), name), protoreflect.ValueOfInt32(v))
	}
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	return m.Get(field(m.Descriptor(), name)).String()
}

func getInt32(m protoreflect.Message, name protoreflect.Name) int32 {
	return int32(m.Get(field(m.Descriptor(), name)).Int())
}

func (r *JobRequest) toDynamic() *dynamicpb.Message {
	m := dynamicpb.NewMessage(jobRequestDesc)
	if r == nil {
		return m
	}
	setString(m, "cmd", r.Cmd)
	setString(m, "password", r.Password)
	if len(r.Env) > 0 {
		keys := make([]string, 0, len(r.Env))
		for k := range r.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		env := m.Mutable(field(jobRequestDesc, "env")).Map()
		for _, k := range keys {
			env.Set(protoreflect.ValueOfString(k).MapKey(), protoreflect.ValueOfString(r.Env[k]))
		}
	}
	return m
}

func jobRequestFromDynamic(m protoreflect.Message) *JobRequest {
	r := &JobRequest{
		Cmd:      getString(m, "cmd"),
		Password: getString(m, "password"),
		Env:      make(map[string]string),
	}
	m.Get(field(m.Descriptor(), "env")).Map().Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		r.Env[k.String()] = v.String()
		return true
	})
	return r
}

func (e *Env) fill(m protoreflect.Message) {
	setString(m, "DMLC_TRACKER_URI", e.TrackerURI)
	setInt32(m, "DMLC_TRACKER_PORT", e.TrackerPort)
	setString(m, "DMLC_ROLE", e.Role)
	setString(m, "DMLC_NODE_HOST", e.NodeHost)
	setInt32(m, "DMLC_NUM_WORKER", e.NumWorker)
	setInt32(m, "DMLC_NUM_SERVER", e.NumServer)
}

func envFromMessage(m protoreflect.Message) *Env {
	return &Env{
		TrackerURI:  getString(m, "DMLC_TRACKER_URI"),
		TrackerPort: getInt32(m, "DMLC_TRACKER_PORT"),
		Role:        getString(m, "DMLC_ROLE"),
		NodeHost:    getString(m, "DMLC_NODE_HOST"),
		NumWorker:   getInt32(m, "DMLC_NUM_WORKER"),
		NumServer:   getInt32(m, "DMLC_NUM_SERVER"),
	}
}

func (r *InitRequest) toDynamic() *dynamicpb.Message {
	m := dynamicpb.NewMessage(initRequestDesc)
	if r == nil || r.Env == nil {
		return m
	}
	r.Env.fill(m.Mutable(field(initRequestDesc, "env")).Message())
	return m
}

func initRequestFromDynamic(m protoreflect.Message) *InitRequest {
	fd := field(m.Descriptor(), "env")
	if !m.Has(fd) {
		return &InitRequest{}
	}
	return &InitRequest{Env: envFromMessage(m.Get(fd).Message())}
}

func (r *WorkerResponse) toDynamic() *dynamicpb.Message {
	m := dynamicpb.NewMessage(workerResponseDesc)
	if r != nil && r.Success {
		m.Set(field(workerResponseDesc, "success"), protoreflect.ValueOfBool(true))
	}
	return m
}

func workerResponseFromDynamic(m protoreflect.Message) *WorkerResponse {
	return &WorkerResponse{Success: m.Get(field(m.Descriptor(), "success")).Bool()}
}
