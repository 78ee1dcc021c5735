// Package events defines the wire contracts for the three pipeline queues.
// Payloads are JSON, validated against a schema at the ingress boundary:
// unknown fields are ignored, missing required fields are a data error and
// must never be retried.
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/videonest/videonest/errors"
)

// Queue names. All three are declared durable, non-exclusive,
// non-auto-delete; messages are published with persistent delivery.
const (
	QueueUnprocessedVideoUploaded = "unprocessed_video_uploaded"
	QueueConvertVideoToHLS        = "convert_video_to_hls"
	QueueConfirmVideoHLSConverted = "confirm_video_hls_converting"
)

// UnprocessedVideoUploaded is emitted by the external uploader once a raw
// blob has landed in object storage.
type UnprocessedVideoUploaded struct {
	UserID    int64  `json:"user_id"`
	VideoPath string `json:"video_path"`
}

// ConvertVideoToHLS is the work command from the ingestion coordinator to
// the transcoder worker.
type ConvertVideoToHLS struct {
	UUID      uuid.UUID `json:"uuid"`
	VideoPath string    `json:"video_path"`
}

// ConfirmVideoHLSConverted is emitted by the worker once the full HLS tree
// is in object storage and the source blob is gone.
type ConfirmVideoHLSConverted struct {
	UUID uuid.UUID `json:"uuid"`
}

var inputSchemas = map[string]string{
	QueueUnprocessedVideoUploaded: unprocessedVideoUploadedSchema,
	QueueConvertVideoToHLS:        convertVideoToHLSSchema,
	QueueConfirmVideoHLSConverted: confirmVideoHLSConvertedSchema,
}

func compileJSONSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(inputSchemas))
	for name, text := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			// a broken schema is a programming error, fail at startup
			panic(err)
		}
		compiled[name] = schema
	}
	return compiled
}

// Run compile step on program start:
var inputSchemasCompiled = compileJSONSchemas()

func validate(queue string, payload []byte) error {
	result, err := inputSchemasCompiled[queue].Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		// not even JSON
		return errors.Unretriable(fmt.Errorf("invalid %s payload: %w", queue, err))
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return errors.Unretriable(fmt.Errorf("invalid %s payload: %s", queue, strings.Join(details, "; ")))
	}
	return nil
}

// ParseUnprocessedVideoUploaded validates and decodes an
// unprocessed_video_uploaded payload. Errors are unretriable.
func ParseUnprocessedVideoUploaded(payload []byte) (UnprocessedVideoUploaded, error) {
	var msg UnprocessedVideoUploaded
	if err := validate(QueueUnprocessedVideoUploaded, payload); err != nil {
		return msg, err
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, errors.Unretriable(fmt.Errorf("unmarshalling %s payload: %w", QueueUnprocessedVideoUploaded, err))
	}
	return msg, nil
}

// ParseConvertVideoToHLS validates and decodes a convert_video_to_hls
// payload. Errors are unretriable.
func ParseConvertVideoToHLS(payload []byte) (ConvertVideoToHLS, error) {
	var msg ConvertVideoToHLS
	if err := validate(QueueConvertVideoToHLS, payload); err != nil {
		return msg, err
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, errors.Unretriable(fmt.Errorf("unmarshalling %s payload: %w", QueueConvertVideoToHLS, err))
	}
	return msg, nil
}

// ParseConfirmVideoHLSConverted validates and decodes a
// confirm_video_hls_converting payload. Errors are unretriable.
func ParseConfirmVideoHLSConverted(payload []byte) (ConfirmVideoHLSConverted, error) {
	var msg ConfirmVideoHLSConverted
	if err := validate(QueueConfirmVideoHLSConverted, payload); err != nil {
		return msg, err
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, errors.Unretriable(fmt.Errorf("unmarshalling %s payload: %w", QueueConfirmVideoHLSConverted, err))
	}
	return msg, nil
}
