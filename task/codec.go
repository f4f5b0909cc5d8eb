package task

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/steerkit/steerkit/errors"
)

func init() {
	// Composite payload types every backend produces. Callers register
	// their own concrete types on top of these.
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
	gob.Register(time.Time{})
}

// Encode serializes the record to its JSON envelope. Gob-serialized records
// carry their payloads as hex blobs in the raw fields. The record itself is
// not modified.
func (r *Result) Encode() ([]byte, error) {
	env := r.Clone()

	if env.Serialization == SerializationGob {
		if err := env.packPayloads(); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Serialization("task "+r.TaskID+" cannot be encoded", errors.WithCause(err), errors.WithTask(r.TaskID))
	}
	return data, nil
}

// Decode parses a JSON envelope back into a record, restoring gob payloads.
func Decode(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Serialization("malformed task envelope", errors.WithCause(err))
	}

	if r.Serialization == SerializationGob {
		if err := r.unpackPayloads(); err != nil {
			return nil, err
		}
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// packPayloads replaces Args, Kwargs and Value with their gob-encoded hex
// form. Nil payloads stay empty.
func (r *Result) packPayloads() error {
	if r.Args != nil {
		blob, err := gobEncode(r.Args)
		if err != nil {
			return errors.Serialization("args cannot be gob-encoded", errors.WithCause(err), errors.WithTask(r.TaskID))
		}
		r.RawArgs = blob
		r.Args = nil
	}

	if r.Kwargs != nil {
		blob, err := gobEncode(r.Kwargs)
		if err != nil {
			return errors.Serialization("kwargs cannot be gob-encoded", errors.WithCause(err), errors.WithTask(r.TaskID))
		}
		r.RawKwargs = blob
		r.Kwargs = nil
	}

	if r.Value != nil {
		blob, err := gobEncode(r.Value)
		if err != nil {
			return errors.Serialization("value cannot be gob-encoded", errors.WithCause(err), errors.WithTask(r.TaskID))
		}
		r.RawValue = blob
		r.Value = nil
	}

	return nil
}

// unpackPayloads restores Args, Kwargs and Value from their hex form.
func (r *Result) unpackPayloads() error {
	if r.RawArgs != "" {
		v, err := gobDecode(r.RawArgs)
		if err != nil {
			return errors.Serialization("args cannot be gob-decoded", errors.WithCause(err), errors.WithTask(r.TaskID))
		}
		args, ok := v.([]any)
		if !ok {
			return errors.Serialization("args payload is not a list", errors.WithTask(r.TaskID))
		}
		r.Args = args
		r.RawArgs = ""
	}

	if r.RawKwargs != "" {
		v, err := gobDecode(r.RawKwargs)
		if err != nil {
			return errors.Serialization("kwargs cannot be gob-decoded", errors.WithCause(err), errors.WithTask(r.TaskID))
		}
		kwargs, ok := v.(map[string]any)
		if !ok {
			return errors.Serialization("kwargs payload is not a map", errors.WithTask(r.TaskID))
		}
		r.Kwargs = kwargs
		r.RawKwargs = ""
	}

	if r.RawValue != "" {
		v, err := gobDecode(r.RawValue)
		if err != nil {
			return errors.Serialization("value cannot be gob-decoded", errors.WithCause(err), errors.WithTask(r.TaskID))
		}
		r.Value = v
		r.RawValue = ""
	}

	return nil
}

// gobEncode transmits v as an interface value so the concrete type name
// travels with the payload.
func gobEncode(v any) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func gobDecode(s string) (any, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}

	var v any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
