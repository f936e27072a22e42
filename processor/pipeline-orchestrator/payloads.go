package pipelineorchestrator

import (
	"encoding/json"
	"errors"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "pipeline",
		Category:    "trigger",
		Version:     "v1",
		Description: "Document-ready trigger that starts a pipeline execution",
		Factory:     func() any { return &TriggerPayload{} },
	})
	if err != nil {
		panic("failed to register TriggerPayload: " + err.Error())
	}

	err = component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "pipeline",
		Category:    "completion",
		Version:     "v1",
		Description: "Terminal outcome of a pipeline execution",
		Factory:     func() any { return &CompletionPayload{} },
	})
	if err != nil {
		panic("failed to register CompletionPayload: " + err.Error())
	}
}

// TriggerType is the message type for execution triggers.
var TriggerType = message.Type{Domain: "pipeline", Category: "trigger", Version: "v1"}

// CompletionType is the message type for completion events.
var CompletionType = message.Type{Domain: "pipeline", Category: "completion", Version: "v1"}

// TriggerPayload announces that a parsed document artifact is ready for
// ingestion.
type TriggerPayload struct {
	DocumentID     string `json:"documentId"`
	SourceLocation string `json:"sourceLocation"`
	CorrelationID  string `json:"correlationId"`
}

// Schema returns the message type for Payload interface.
func (p *TriggerPayload) Schema() message.Type { return TriggerType }

// Validate validates the payload for Payload interface.
func (p *TriggerPayload) Validate() error {
	if p.DocumentID == "" {
		return errors.New("documentId is required")
	}
	if p.SourceLocation == "" {
		return errors.New("sourceLocation is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *TriggerPayload) MarshalJSON() ([]byte, error) {
	type Alias TriggerPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *TriggerPayload) UnmarshalJSON(data []byte) error {
	type Alias TriggerPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// CompletionPayload summarizes a finished execution.
type CompletionPayload struct {
	DocumentID    string `json:"documentId"`
	CorrelationID string `json:"correlationId"`
	FinalStage    string `json:"finalStage"`
	Succeeded     bool   `json:"succeeded"`
	Warnings      int    `json:"warnings"`
}

// Schema returns the message type for Payload interface.
func (p *CompletionPayload) Schema() message.Type { return CompletionType }

// Validate validates the payload for Payload interface.
func (p *CompletionPayload) Validate() error {
	if p.DocumentID == "" {
		return errors.New("documentId is required")
	}
	if p.FinalStage == "" {
		return errors.New("finalStage is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *CompletionPayload) MarshalJSON() ([]byte, error) {
	type Alias CompletionPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *CompletionPayload) UnmarshalJSON(data []byte) error {
	type Alias CompletionPayload
	return json.Unmarshal(data, (*Alias)(p))
}
