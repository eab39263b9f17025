// Package protocol defines the JSON messages exchanged between the
// broadcast controller and its observers. Every message is an object with a
// "type" tag and an optional payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"gitnext/internal/model"
)

// Type tags a message.
type Type string

// Sent by clients.
const (
	Hello    Type = "HELLO"
	LoadData Type = "LOAD_DATA"
)

// Sent by the server. Each pipeline phase has a starting and, where it
// produces something, a completed tag.
const (
	Welcome                  Type = "WELCOME"
	LoadingConfig            Type = "LOADING_CONFIG"
	LoadedConfig             Type = "LOADED_CONFIG"
	CreatedDefaultConfig     Type = "CREATED_DEFAULT_CONFIG"
	VerifyingUser            Type = "VERIFYING_USER"
	VerifiedUser             Type = "VERIFIED_USER"
	GettingToken             Type = "GETTING_TOKEN"
	GotToken                 Type = "GOT_TOKEN"
	LoadingStoredData        Type = "LOADING_STORED_DATA"
	LoadedStoredData         Type = "LOADED_STORED_DATA"
	LoadingUserData          Type = "LOADING_USER_DATA"
	LoadedUserData           Type = "LOADED_USER_DATA"
	LoadingOrgData           Type = "LOADING_ORG_DATA"
	LoadedOrgData            Type = "LOADED_ORG_DATA"
	PrioritizingPullRequests Type = "PRIORITIZING_PULL_REQUESTS"
	PrioritizedPullRequests  Type = "PRIORITIZED_PULL_REQUESTS"
	StoringData              Type = "STORING_DATA"
	StoredData               Type = "STORED_DATA"
	Error                    Type = "ERROR"
)

var clientTypes = map[Type]bool{
	Hello:    true,
	LoadData: true,
}

var serverTypes = map[Type]bool{
	Welcome:                  true,
	LoadingConfig:            true,
	LoadedConfig:             true,
	CreatedDefaultConfig:     true,
	VerifyingUser:            true,
	VerifiedUser:             true,
	GettingToken:             true,
	GotToken:                 true,
	LoadingStoredData:        true,
	LoadedStoredData:         true,
	LoadingUserData:          true,
	LoadedUserData:           true,
	LoadingOrgData:           true,
	LoadedOrgData:            true,
	PrioritizingPullRequests: true,
	PrioritizedPullRequests:  true,
	StoringData:              true,
	StoredData:               true,
	Error:                    true,
}

// ErrUnrecognized is returned when a message is not valid JSON or carries a
// type the receiving side does not understand.
var ErrUnrecognized = errors.New("unrecognized command")

// Message is a single protocol message. Data is only set on
// LOADED_STORED_DATA and STORED_DATA, Error only on ERROR.
type Message struct {
	Type  Type                           `json:"type"`
	Data  []model.PrioritizedPullRequest `json:"data,omitempty"`
	Error string                         `json:"error,omitempty"`
}

// Event returns a payload-less message of type t.
func Event(t Type) Message {
	return Message{Type: t}
}

// WithData returns a message of type t carrying prs. A nil list is sent as
// an empty one.
func WithData(t Type, prs []model.PrioritizedPullRequest) Message {
	if prs == nil {
		prs = []model.PrioritizedPullRequest{}
	}
	return Message{Type: t, Data: prs}
}

// Failure returns an ERROR message describing err.
func Failure(err error) Message {
	if err == nil {
		return Message{Type: Error, Error: "unknown error"}
	}
	return Message{Type: Error, Error: err.Error()}
}

// Terminal reports whether m ends a pipeline run.
func (m Message) Terminal() bool {
	return m.Type == StoredData || m.Type == Error
}

// MarshalJSON always writes data on LOADED_STORED_DATA and STORED_DATA, even
// when the list is empty.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Type != LoadedStoredData && m.Type != StoredData {
		return json.Marshal(plain(m))
	}
	data := m.Data
	if data == nil {
		data = []model.PrioritizedPullRequest{}
	}
	return json.Marshal(struct {
		Type  Type                           `json:"type"`
		Data  []model.PrioritizedPullRequest `json:"data"`
		Error string                         `json:"error,omitempty"`
	}{Type: m.Type, Data: data, Error: m.Error})
}

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Type, err)
	}
	return data, nil
}

// DecodeClient parses a message sent by a client.
func DecodeClient(data []byte) (Message, error) {
	return decode(data, clientTypes)
}

// DecodeServer parses a message sent by the server.
func DecodeServer(data []byte) (Message, error) {
	return decode(data, serverTypes)
}

func decode(data []byte, known map[Type]bool) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil || !known[m.Type] {
		return Message{}, fmt.Errorf("%w: %s", ErrUnrecognized, data)
	}
	return m, nil
}
